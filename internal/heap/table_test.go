package heap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novadb/novadb/internal/storage"
	"github.com/novadb/novadb/internal/value"
)

func usersSchema() value.Schema {
	return value.Schema{Columns: []value.ColumnInfo{
		{Name: "id", Type: value.ColInt, PrimaryKey: true},
		{Name: "name", Type: value.ColText},
	}}
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	pm, err := storage.NewPageManager(path, 8, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	return NewTable("users", usersSchema(), pm, nil)
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	tbl := newTestTable(t)
	rid, err := tbl.Insert(value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)

	row, ok := tbl.Get(rid)
	require.True(t, ok)
	assert.Equal(t, value.Int(1), row.Values[0])
	assert.Equal(t, value.Text("alice"), row.Values[1])
}

func TestInsertRejectsWrongArity(t *testing.T) {
	tbl := newTestTable(t)
	_, err := tbl.Insert(value.NewRow(value.Int(1)))
	assert.Error(t, err)
}

func TestInsertRejectsNotNullViolation(t *testing.T) {
	tbl := newTestTable(t)
	schema := value.Schema{Columns: []value.ColumnInfo{
		{Name: "id", Type: value.ColInt, NotNull: true},
	}}
	tbl2 := NewTable("t", schema, tbl.pm, nil)
	_, err := tbl2.Insert(value.NewRow(value.Null()))
	assert.Error(t, err)
}

func TestDeleteRemovesRow(t *testing.T) {
	tbl := newTestTable(t)
	rid, err := tbl.Insert(value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)

	assert.True(t, tbl.Delete(rid))
	_, ok := tbl.Get(rid)
	assert.False(t, ok)
}

func TestDeleteMissingReturnsFalse(t *testing.T) {
	tbl := newTestTable(t)
	assert.False(t, tbl.Delete(999))
}

func TestUpdateInPlacePreservesRecordID(t *testing.T) {
	tbl := newTestTable(t)
	rid, err := tbl.Insert(value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)

	ok, err := tbl.Update(rid, value.NewRow(value.Int(1), value.Text("bob")))
	require.NoError(t, err)
	assert.True(t, ok)

	row, ok := tbl.Get(rid)
	require.True(t, ok)
	assert.Equal(t, value.Text("bob"), row.Values[1])
}

func TestUpdateGrowingPastPageCapacityRelocatesButKeepsRecordID(t *testing.T) {
	tbl := newTestTable(t)
	// A 2000-byte neighbour on the same page leaves too little room to grow
	// the record in place, while an empty page still holds the grown row.
	_, err := tbl.Insert(value.NewRow(value.Int(0), value.Text(string(make([]byte, 2000)))))
	require.NoError(t, err)
	rid, err := tbl.Insert(value.NewRow(value.Int(1), value.Text("a")))
	require.NoError(t, err)

	huge := make([]byte, 3000)
	for i := range huge {
		huge[i] = 'x'
	}
	ok, err := tbl.Update(rid, value.NewRow(value.Int(1), value.Text(string(huge))))
	require.NoError(t, err)
	assert.True(t, ok)

	row, ok := tbl.Get(rid)
	require.True(t, ok)
	assert.Equal(t, string(huge), row.Values[1].S)
	assert.Len(t, tbl.AllRecordIDs(), 2)
}

func TestUpdateMissingRecordReturnsFalse(t *testing.T) {
	tbl := newTestTable(t)
	ok, err := tbl.Update(999, value.NewRow(value.Int(1), value.Text("x")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllRecordIDsAreSortedAscending(t *testing.T) {
	tbl := newTestTable(t)
	var rids []uint32
	for i := 0; i < 5; i++ {
		rid, err := tbl.Insert(value.NewRow(value.Int(int64(i)), value.Text("x")))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	got := tbl.AllRecordIDs()
	assert.Equal(t, rids, got)
	assert.Equal(t, 5, tbl.RowCount())
}

func TestClosedTableRejectsMutation(t *testing.T) {
	tbl := newTestTable(t)
	require.NoError(t, tbl.Close())
	_, err := tbl.Insert(value.NewRow(value.Int(1), value.Text("x")))
	assert.Error(t, err)
}

func TestAdoptRowPreservesGivenRecordIDAndAdvancesCounter(t *testing.T) {
	tbl := newTestTable(t)
	require.NoError(t, tbl.AdoptRow(42, value.NewRow(value.Int(9), value.Text("z"))))

	row, ok := tbl.Get(42)
	require.True(t, ok)
	assert.Equal(t, value.Int(9), row.Values[0])

	next, err := tbl.Insert(value.NewRow(value.Int(10), value.Text("w")))
	require.NoError(t, err)
	assert.Greater(t, next, uint32(42))
}
