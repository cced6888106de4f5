package storageengine

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novadb/novadb/internal/value"
)

func usersSchema() value.Schema {
	return value.Schema{Columns: []value.ColumnInfo{
		{Name: "id", Type: value.ColInt, PrimaryKey: true},
		{Name: "name", Type: value.ColText},
	}}
}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), 16, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCreateTableRegistersPrimaryKeyIndex(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	infos := e.IndexesForTable("users")
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Unique)
	assert.Equal(t, "id", infos[0].Column)
}

func TestCreateTableDuplicateNameErrors(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	err := e.CreateTable("users", usersSchema())
	require.Error(t, err)
}

func TestCreateTableRejectsMultiplePrimaryKeys(t *testing.T) {
	e := openTestEngine(t)
	schema := value.Schema{Columns: []value.ColumnInfo{
		{Name: "a", Type: value.ColInt, PrimaryKey: true},
		{Name: "b", Type: value.ColInt, PrimaryKey: true},
	}}
	err := e.CreateTable("bad", schema)
	require.Error(t, err)
}

func TestInsertRowUniqueViolationLeavesNoPartialState(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	_, err := e.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)

	_, err = e.InsertRow("users", value.NewRow(value.Int(1), value.Text("duplicate")))
	require.Error(t, err)

	tbl, _ := e.Table("users")
	assert.Len(t, tbl.AllRecordIDs(), 1)
}

func TestUpdateRowAppliesAndMirrorsIndex(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	rid, err := e.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)

	err = e.UpdateRow("users", rid, value.NewRow(value.Int(2), value.Text("alice")))
	require.NoError(t, err)

	assert.Empty(t, e.Indexes().Search("pk_users_id", value.Int(1)))
	assert.Equal(t, []uint32{rid}, e.Indexes().Search("pk_users_id", value.Int(2)))
}

func TestUpdateRowRejectsUniqueViolation(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	_, err := e.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)
	rid2, err := e.InsertRow("users", value.NewRow(value.Int(2), value.Text("bob")))
	require.NoError(t, err)

	err = e.UpdateRow("users", rid2, value.NewRow(value.Int(1), value.Text("bob")))
	require.Error(t, err)
}

func TestDeleteRowRemovesFromIndex(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	rid, err := e.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)

	require.NoError(t, e.DeleteRow("users", rid))
	assert.Empty(t, e.Indexes().Search("pk_users_id", value.Int(1)))
	_, ok := e.Table("users")
	require.True(t, ok)
}

func TestCreateIndexBackfillsExistingRows(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	_, err := e.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)
	_, err = e.InsertRow("users", value.NewRow(value.Int(2), value.Text("bob")))
	require.NoError(t, err)

	require.NoError(t, e.CreateIndex("idx_name", "users", "name", false))
	ids := e.Indexes().Search("idx_name", value.Text("bob"))
	assert.Len(t, ids, 1)
}

func TestDropTableRemovesItsIndexes(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateTable("users", usersSchema()))
	require.NoError(t, e.DropTable("users"))
	assert.Empty(t, e.IndexesForTable("users"))
	_, ok := e.Table("users")
	assert.False(t, ok)
}
