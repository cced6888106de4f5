package optimizer

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novadb/novadb/internal/catalog"
	"github.com/novadb/novadb/internal/exec"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/storageengine"
	"github.com/novadb/novadb/internal/value"
)

func usersSchema() value.Schema {
	return value.Schema{Columns: []value.ColumnInfo{
		{Name: "id", Type: value.ColInt, PrimaryKey: true},
		{Name: "name", Type: value.ColText},
	}}
}

func newTestSetup(t *testing.T) (*storageengine.Engine, *catalog.Catalog) {
	t.Helper()
	eng, err := storageengine.Open(t.TempDir(), 16, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, eng.CreateTable("users", usersSchema()))
	return eng, catalog.New(eng)
}

func TestIndexSelectionRewritesFilterOnIndexedColumn(t *testing.T) {
	eng, cat := newTestSetup(t)
	tbl, _ := eng.Table("users")

	scan := exec.NewSeqScan(tbl)
	pred := ast.BinaryExpr{Op: ast.OpEq, Left: ast.Identifier{Name: "id"}, Right: ast.Literal{Value: value.Int(5)}}
	root := exec.NewFilter(scan, pred)

	opt := New(cat, eng.Indexes(), slog.Default())
	rewritten, stats := opt.Optimize(root)

	_, isIndexScan := rewritten.(*exec.IndexScan)
	assert.True(t, isIndexScan)
	assert.Equal(t, 1, stats.Firings["IndexSelection"])
}

func TestIndexSelectionLeavesNonIndexedColumnAlone(t *testing.T) {
	eng, cat := newTestSetup(t)
	tbl, _ := eng.Table("users")

	scan := exec.NewSeqScan(tbl)
	pred := ast.BinaryExpr{Op: ast.OpEq, Left: ast.Identifier{Name: "name"}, Right: ast.Literal{Value: value.Text("alice")}}
	root := exec.NewFilter(scan, pred)

	opt := New(cat, eng.Indexes(), slog.Default())
	rewritten, stats := opt.Optimize(root)

	_, isFilter := rewritten.(*exec.Filter)
	assert.True(t, isFilter)
	assert.Equal(t, 0, stats.Firings["IndexSelection"])
}

func TestIndexSelectionRewritesThroughProject(t *testing.T) {
	eng, cat := newTestSetup(t)
	tbl, _ := eng.Table("users")

	scan := exec.NewSeqScan(tbl)
	pred := ast.BinaryExpr{Op: ast.OpGt, Left: ast.Identifier{Name: "id"}, Right: ast.Literal{Value: value.Int(1)}}
	filtered := exec.NewFilter(scan, pred)
	root := exec.NewProject(filtered, []ast.Expr{ast.Star{}})

	opt := New(cat, eng.Indexes(), slog.Default())
	rewritten, stats := opt.Optimize(root)

	proj, ok := rewritten.(*exec.Project)
	require.True(t, ok)
	_, isIndexScan := proj.Child.(*exec.IndexScan)
	assert.True(t, isIndexScan)
	assert.Equal(t, 1, stats.Firings["IndexSelection"])
}

func TestPredicatePushdownAndRedundantEliminationDoNotRewrite(t *testing.T) {
	eng, cat := newTestSetup(t)
	tbl, _ := eng.Table("users")

	scan := exec.NewSeqScan(tbl)
	pred := ast.BinaryExpr{Op: ast.OpEq, Left: ast.Identifier{Name: "name"}, Right: ast.Literal{Value: value.Text("x")}}
	filtered := exec.NewFilter(scan, pred)
	inner := exec.NewProject(filtered, []ast.Expr{ast.Star{}})
	outer := exec.NewProject(inner, []ast.Expr{ast.Star{}})

	opt := New(cat, eng.Indexes(), slog.Default())
	rewritten, stats := opt.Optimize(outer)

	// structural shape is unchanged: still Project(Project(Filter(SeqScan)))
	top, ok := rewritten.(*exec.Project)
	require.True(t, ok)
	mid, ok := top.Child.(*exec.Project)
	require.True(t, ok)
	_, stillFilter := mid.Child.(*exec.Filter)
	assert.True(t, stillFilter)
	assert.Zero(t, stats.Firings["PredicatePushdown"])
	assert.Zero(t, stats.Firings["RedundantOperationElimination"])
}
