package exec

import (
	"io"
	"strings"

	"github.com/novadb/novadb/internal/exprs"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/value"
)

// GroupBy drains its child on first Next, buckets rows by a pipe-concatenated
// group key, then emits one row per group. With an empty GroupExprs list,
// every row belongs to a single group; the mechanism bare aggregates use.
type GroupBy struct {
	Child       Executor
	GroupExprs  []ast.Expr
	SelectExprs []ast.Expr

	schema  value.Schema
	order   []string
	groups  map[string][]value.Row
	pos     int
	drained bool
}

func NewGroupBy(child Executor, groupExprs, selectExprs []ast.Expr) *GroupBy {
	cols := make([]value.ColumnInfo, len(selectExprs))
	for i, e := range selectExprs {
		cols[i] = value.ColumnInfo{Name: exprs.ColumnName(e), Type: value.ColDouble}
	}
	return &GroupBy{
		Child:       child,
		GroupExprs:  groupExprs,
		SelectExprs: selectExprs,
		schema:      value.Schema{Columns: cols},
	}
}

func (g *GroupBy) Init() error { return g.Child.Init() }

func (g *GroupBy) drain() error {
	schema := g.Child.OutputSchema()
	g.groups = make(map[string][]value.Row)
	for {
		row, err := g.Child.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		key, err := g.groupKey(row, schema)
		if err != nil {
			return err
		}
		if _, seen := g.groups[key]; !seen {
			g.order = append(g.order, key)
		}
		g.groups[key] = append(g.groups[key], row)
	}
	g.drained = true
	return nil
}

func (g *GroupBy) groupKey(row value.Row, schema value.Schema) (string, error) {
	if len(g.GroupExprs) == 0 {
		return "", nil
	}
	parts := make([]string, len(g.GroupExprs))
	for i, e := range g.GroupExprs {
		v, err := exprs.Eval(e, exprs.Row{Schema: schema, Values: row})
		if err != nil {
			return "", err
		}
		parts[i] = v.String()
	}
	return strings.Join(parts, "|"), nil
}

func (g *GroupBy) Next() (value.Row, error) {
	if !g.drained {
		if err := g.drain(); err != nil {
			return value.Row{}, err
		}
	}
	if g.pos >= len(g.order) {
		return value.Row{}, io.EOF
	}
	key := g.order[g.pos]
	g.pos++
	rows := g.groups[key]
	schema := g.Child.OutputSchema()
	representative := rows[0]

	out := make([]value.Value, len(g.SelectExprs))
	for i, e := range g.SelectExprs {
		if exprs.IsAggregate(e) {
			v, err := exprs.EvalAggregate(e.(ast.FunctionCall), schema, rows)
			if err != nil {
				return value.Row{}, err
			}
			out[i] = v
			continue
		}
		v, err := exprs.Eval(e, exprs.Row{Schema: schema, Values: representative})
		if err != nil {
			return value.Row{}, err
		}
		out[i] = v
	}
	return value.Row{Values: out}, nil
}

func (g *GroupBy) OutputSchema() value.Schema { return g.schema }
func (g *GroupBy) Children() []Executor       { return []Executor{g.Child} }
