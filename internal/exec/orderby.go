package exec

import (
	"io"
	"sort"

	"github.com/novadb/novadb/internal/exprs"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/value"
)

// OrderBy drains its child on first Next and sorts by Items, comparing
// lexicographically across the list. Cross-type orderings are unspecified
// but deterministic: incomparable pairs sort as equal, leaving relative
// order to sort.SliceStable's input order.
type OrderBy struct {
	Child Executor
	Items []ast.OrderItem

	rows    []value.Row
	pos     int
	drained bool
}

func NewOrderBy(child Executor, items []ast.OrderItem) *OrderBy {
	return &OrderBy{Child: child, Items: items}
}

func (o *OrderBy) Init() error { return o.Child.Init() }

func (o *OrderBy) drain() error {
	schema := o.Child.OutputSchema()
	for {
		row, err := o.Child.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		o.rows = append(o.rows, row)
	}
	sort.SliceStable(o.rows, func(i, j int) bool {
		for _, item := range o.Items {
			vi, erri := exprs.Eval(item.Expr, exprs.Row{Schema: schema, Values: o.rows[i]})
			vj, errj := exprs.Eval(item.Expr, exprs.Row{Schema: schema, Values: o.rows[j]})
			if erri != nil || errj != nil {
				continue
			}
			cmp, ok := value.Compare(vi, vj)
			if !ok || cmp == 0 {
				continue
			}
			if item.Direction == ast.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	o.drained = true
	return nil
}

func (o *OrderBy) Next() (value.Row, error) {
	if !o.drained {
		if err := o.drain(); err != nil {
			return value.Row{}, err
		}
	}
	if o.pos >= len(o.rows) {
		return value.Row{}, io.EOF
	}
	row := o.rows[o.pos]
	o.pos++
	return row, nil
}

func (o *OrderBy) OutputSchema() value.Schema { return o.Child.OutputSchema() }
func (o *OrderBy) Children() []Executor       { return []Executor{o.Child} }
