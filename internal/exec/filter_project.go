package exec

import (
	"github.com/novadb/novadb/internal/exprs"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/value"
)

// Filter emits only the child's rows for which Pred evaluates truthy:
// nonzero Int, nonzero Double, nonempty Text.
type Filter struct {
	Child Executor
	Pred  ast.Expr
}

func NewFilter(child Executor, pred ast.Expr) *Filter { return &Filter{Child: child, Pred: pred} }

func (f *Filter) Init() error { return f.Child.Init() }

func (f *Filter) Next() (value.Row, error) {
	schema := f.Child.OutputSchema()
	for {
		row, err := f.Child.Next()
		if err != nil {
			return value.Row{}, err
		}
		v, err := exprs.Eval(f.Pred, exprs.Row{Schema: schema, Values: row})
		if err != nil {
			return value.Row{}, err
		}
		if v.Truthy() {
			return row, nil
		}
	}
}

func (f *Filter) OutputSchema() value.Schema { return f.Child.OutputSchema() }
func (f *Filter) Children() []Executor       { return []Executor{f.Child} }

// Project computes each expression in Exprs against the input row and
// emits them in order. Star expands to every input column at construction
// time, since output schema must be known before Init runs.
type Project struct {
	Child  Executor
	Exprs  []ast.Expr
	schema value.Schema
}

func NewProject(child Executor, exprList []ast.Expr) *Project {
	inputSchema := child.OutputSchema()
	var expanded []ast.Expr
	var cols []value.ColumnInfo
	for _, e := range exprList {
		if _, ok := e.(ast.Star); ok {
			expanded = append(expanded, expandStar(inputSchema)...)
			cols = append(cols, inputSchema.Columns...)
			continue
		}
		expanded = append(expanded, e)
		cols = append(cols, value.ColumnInfo{Name: exprs.ColumnName(e), Type: inferType(e, inputSchema)})
	}
	return &Project{Child: child, Exprs: expanded, schema: value.Schema{Columns: cols}}
}

func expandStar(schema value.Schema) []ast.Expr {
	out := make([]ast.Expr, len(schema.Columns))
	for i, c := range schema.Columns {
		out[i] = ast.Identifier{Name: c.Name}
	}
	return out
}

func inferType(e ast.Expr, schema value.Schema) value.ColumnType {
	if id, ok := e.(ast.Identifier); ok {
		if idx := schema.IndexOf(id.Name); idx >= 0 {
			return schema.Columns[idx].Type
		}
	}
	return value.ColDouble
}

func (p *Project) Init() error { return p.Child.Init() }

func (p *Project) Next() (value.Row, error) {
	row, err := p.Child.Next()
	if err != nil {
		return value.Row{}, err
	}
	inputSchema := p.Child.OutputSchema()
	out := make([]value.Value, len(p.Exprs))
	for i, e := range p.Exprs {
		v, err := exprs.Eval(e, exprs.Row{Schema: inputSchema, Values: row})
		if err != nil {
			return value.Row{}, err
		}
		out[i] = v
	}
	return value.Row{Values: out}, nil
}

func (p *Project) OutputSchema() value.Schema { return p.schema }
func (p *Project) Children() []Executor       { return []Executor{p.Child} }
