package exec

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/storageengine"
	"github.com/novadb/novadb/internal/value"
)

// fakeExecutor replays a fixed row set against a fixed schema, for testing
// operators that sit above a scan without needing real storage.
type fakeExecutor struct {
	schema value.Schema
	rows   []value.Row
	pos    int
}

func newFake(schema value.Schema, rows ...value.Row) *fakeExecutor {
	return &fakeExecutor{schema: schema, rows: rows}
}

func (f *fakeExecutor) Init() error { f.pos = 0; return nil }

func (f *fakeExecutor) Next() (value.Row, error) {
	if f.pos >= len(f.rows) {
		return value.Row{}, io.EOF
	}
	row := f.rows[f.pos]
	f.pos++
	return row, nil
}

func (f *fakeExecutor) OutputSchema() value.Schema { return f.schema }
func (f *fakeExecutor) Children() []Executor        { return nil }

func peopleSchema() value.Schema {
	return value.Schema{Columns: []value.ColumnInfo{
		{Name: "id", Type: value.ColInt},
		{Name: "age", Type: value.ColInt},
	}}
}

func TestFilterKeepsOnlyTruthy(t *testing.T) {
	schema := peopleSchema()
	src := newFake(schema,
		value.NewRow(value.Int(1), value.Int(30)),
		value.NewRow(value.Int(2), value.Int(10)),
	)
	pred := ast.BinaryExpr{Op: ast.OpGte, Left: ast.Identifier{Name: "age"}, Right: ast.Literal{Value: value.Int(18)}}
	rows, err := Execute(NewFilter(src, pred))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, value.Int(1), rows[0].Values[0])
}

func TestProjectExpandsStar(t *testing.T) {
	schema := peopleSchema()
	src := newFake(schema, value.NewRow(value.Int(1), value.Int(30)))
	p := NewProject(src, []ast.Expr{ast.Star{}})
	rows, err := Execute(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, len(p.OutputSchema().Columns))
	assert.Equal(t, value.Int(30), rows[0].Values[1])
}

func TestProjectSingleColumn(t *testing.T) {
	schema := peopleSchema()
	src := newFake(schema, value.NewRow(value.Int(1), value.Int(30)))
	p := NewProject(src, []ast.Expr{ast.Identifier{Name: "age"}})
	rows, err := Execute(p)
	require.NoError(t, err)
	assert.Equal(t, []value.ColumnInfo{{Name: "age", Type: value.ColInt}}, p.OutputSchema().Columns)
	assert.Equal(t, value.Int(30), rows[0].Values[0])
}

func TestNestedLoopJoinInner(t *testing.T) {
	left := newFake(value.Schema{Columns: []value.ColumnInfo{{Name: "id", Type: value.ColInt}}},
		value.NewRow(value.Int(1)), value.NewRow(value.Int(2)))
	right := newFake(value.Schema{Columns: []value.ColumnInfo{{Name: "user_id", Type: value.ColInt}}},
		value.NewRow(value.Int(1)))

	on := ast.BinaryExpr{Op: ast.OpEq, Left: ast.Identifier{Name: "id"}, Right: ast.Identifier{Name: "user_id"}}
	rows, err := Execute(NewNestedLoopJoin(left, right, ast.JoinInner, on))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, value.Int(1), rows[0].Values[0])
}

func TestNestedLoopJoinLeftPadsUnmatched(t *testing.T) {
	left := newFake(value.Schema{Columns: []value.ColumnInfo{{Name: "id", Type: value.ColInt}}},
		value.NewRow(value.Int(1)), value.NewRow(value.Int(2)))
	right := newFake(value.Schema{Columns: []value.ColumnInfo{{Name: "user_id", Type: value.ColInt}}},
		value.NewRow(value.Int(1)))

	on := ast.BinaryExpr{Op: ast.OpEq, Left: ast.Identifier{Name: "id"}, Right: ast.Identifier{Name: "user_id"}}
	rows, err := Execute(NewNestedLoopJoin(left, right, ast.JoinLeft, on))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[1].Values[1].IsNull())
}

func TestGroupByCountStar(t *testing.T) {
	schema := value.Schema{Columns: []value.ColumnInfo{{Name: "dept", Type: value.ColText}}}
	src := newFake(schema, value.NewRow(value.Text("eng")), value.NewRow(value.Text("eng")), value.NewRow(value.Text("sales")))
	selectExprs := []ast.Expr{
		ast.Identifier{Name: "dept"},
		ast.FunctionCall{Name: "COUNT", Args: []ast.Expr{ast.Star{}}},
	}
	gb := NewGroupBy(src, []ast.Expr{ast.Identifier{Name: "dept"}}, selectExprs)
	rows, err := Execute(gb)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	total := int64(0)
	for _, r := range rows {
		total += r.Values[1].I
	}
	assert.Equal(t, int64(3), total)
}

func TestOrderByDescending(t *testing.T) {
	schema := peopleSchema()
	src := newFake(schema,
		value.NewRow(value.Int(1), value.Int(10)),
		value.NewRow(value.Int(2), value.Int(30)),
		value.NewRow(value.Int(3), value.Int(20)),
	)
	ob := NewOrderBy(src, []ast.OrderItem{{Expr: ast.Identifier{Name: "age"}, Direction: ast.Desc}})
	rows, err := Execute(ob)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, value.Int(30), rows[0].Values[1])
	assert.Equal(t, value.Int(20), rows[1].Values[1])
	assert.Equal(t, value.Int(10), rows[2].Values[1])
}

func newTestEngine(t *testing.T) *storageengine.Engine {
	t.Helper()
	eng, err := storageengine.Open(t.TempDir(), 16, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func usersSchema() value.Schema {
	return value.Schema{Columns: []value.ColumnInfo{
		{Name: "id", Type: value.ColInt, PrimaryKey: true},
		{Name: "name", Type: value.ColText},
	}}
}

func TestSeqScanReturnsAllLiveRows(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.CreateTable("users", usersSchema()))
	_, err := eng.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)
	_, err = eng.InsertRow("users", value.NewRow(value.Int(2), value.Text("bob")))
	require.NoError(t, err)

	tbl, ok := eng.Table("users")
	require.True(t, ok)
	rows, err := Execute(NewSeqScan(tbl))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestIndexScanKeyLookup(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.CreateTable("users", usersSchema()))
	_, err := eng.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)
	_, err = eng.InsertRow("users", value.NewRow(value.Int(2), value.Text("bob")))
	require.NoError(t, err)

	tbl, _ := eng.Table("users")
	scan := NewIndexScanKey(tbl, eng.Indexes(), "pk_users_id", value.Int(2))
	rows, err := Execute(scan)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, value.Text("bob"), rows[0].Values[1])
}

func TestInsertExecutorByColumnList(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.CreateTable("users", usersSchema()))
	ins := NewInsertExecutor(eng, "users", usersSchema(), []string{"name", "id"},
		[][]ast.Expr{{ast.Literal{Value: value.Text("carol")}, ast.Literal{Value: value.Int(3)}}})
	rows, err := Execute(ins)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, value.Int(3), rows[0].Values[0])
	assert.Equal(t, value.Text("carol"), rows[0].Values[1])
}

func TestUpdateExecutorAppliesSetToMatches(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.CreateTable("users", usersSchema()))
	_, err := eng.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)

	where := ast.BinaryExpr{Op: ast.OpEq, Left: ast.Identifier{Name: "id"}, Right: ast.Literal{Value: value.Int(1)}}
	set := []ast.Assignment{{Column: "name", Value: ast.Literal{Value: value.Text("alicia")}}}
	upd := NewUpdateExecutor(eng, "users", usersSchema(), set, where)
	rows, err := Execute(upd)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, value.Text("alicia"), rows[0].Values[1])
}

func TestDeleteExecutorRemovesMatches(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.CreateTable("users", usersSchema()))
	_, err := eng.InsertRow("users", value.NewRow(value.Int(1), value.Text("alice")))
	require.NoError(t, err)
	_, err = eng.InsertRow("users", value.NewRow(value.Int(2), value.Text("bob")))
	require.NoError(t, err)

	where := ast.BinaryExpr{Op: ast.OpEq, Left: ast.Identifier{Name: "id"}, Right: ast.Literal{Value: value.Int(1)}}
	del := NewDeleteExecutor(eng, "users", usersSchema(), where)
	rows, err := Execute(del)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	tbl, _ := eng.Table("users")
	remaining, err := Execute(NewSeqScan(tbl))
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestDDLExecutorRunsOnce(t *testing.T) {
	calls := 0
	d := NewDDLExecutor(func() error { calls++; return nil })
	rows, err := Execute(d)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, calls)
}
