package exec

import (
	"io"

	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/internal/exprs"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/storageengine"
	"github.com/novadb/novadb/internal/value"
)

// InsertExecutor evaluates each VALUES tuple to a Row and inserts it,
// surfacing type-mismatch or unique-violation errors per tuple.
type InsertExecutor struct {
	Engine  *storageengine.Engine
	Table   string
	Schema  value.Schema
	Columns []string
	Rows    [][]ast.Expr

	pos int
}

func NewInsertExecutor(engine *storageengine.Engine, table string, schema value.Schema, columns []string, rows [][]ast.Expr) *InsertExecutor {
	return &InsertExecutor{Engine: engine, Table: table, Schema: schema, Columns: columns, Rows: rows}
}

func (x *InsertExecutor) Init() error { return nil }

func (x *InsertExecutor) Next() (value.Row, error) {
	if x.pos >= len(x.Rows) {
		return value.Row{}, io.EOF
	}
	tuple := x.Rows[x.pos]
	x.pos++

	values := make([]value.Value, len(x.Schema.Columns))
	for i := range values {
		values[i] = value.Null()
	}

	if len(x.Columns) == 0 {
		if len(tuple) != len(x.Schema.Columns) {
			return value.Row{}, dberr.NewSemanticError(dberr.ColumnCountMismatch,
				"expected %d values, got %d", len(x.Schema.Columns), len(tuple))
		}
		for i, e := range tuple {
			v, err := exprs.Eval(e, exprs.Row{})
			if err != nil {
				return value.Row{}, err
			}
			values[i] = v
		}
	} else {
		if len(tuple) != len(x.Columns) {
			return value.Row{}, dberr.NewSemanticError(dberr.ColumnCountMismatch,
				"expected %d values, got %d", len(x.Columns), len(tuple))
		}
		for i, colName := range x.Columns {
			idx := x.Schema.IndexOf(colName)
			if idx < 0 {
				return value.Row{}, dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found", colName)
			}
			v, err := exprs.Eval(tuple[i], exprs.Row{})
			if err != nil {
				return value.Row{}, err
			}
			values[idx] = v
		}
	}

	row := value.Row{Values: values}
	if _, err := x.Engine.InsertRow(x.Table, row); err != nil {
		return value.Row{}, err
	}
	return row, nil
}

func (x *InsertExecutor) OutputSchema() value.Schema { return x.Schema }
func (x *InsertExecutor) Children() []Executor       { return nil }

// UpdateExecutor scans the table once, tests Where against each original
// row, and for matches applies Set over that original row. Record ids are
// stable across physical relocation (heap.Table preserves them), so the
// work list is simply the set of matching record ids.
type UpdateExecutor struct {
	Engine *storageengine.Engine
	Table  string
	Schema value.Schema
	Set    []ast.Assignment
	Where  ast.Expr

	rids     []uint32
	original map[uint32]value.Row
	pos      int
}

func NewUpdateExecutor(engine *storageengine.Engine, table string, schema value.Schema, set []ast.Assignment, where ast.Expr) *UpdateExecutor {
	return &UpdateExecutor{Engine: engine, Table: table, Schema: schema, Set: set, Where: where}
}

func (x *UpdateExecutor) Init() error {
	t, ok := x.Engine.Table(x.Table)
	if !ok {
		return dberr.NewStorageError(dberr.TableNotFound, "table %s not found", x.Table)
	}
	x.original = make(map[uint32]value.Row)
	for _, rid := range t.AllRecordIDs() {
		row, ok := t.Get(rid)
		if !ok {
			continue
		}
		if x.Where != nil {
			v, err := exprs.Eval(x.Where, exprs.Row{Schema: x.Schema, Values: row})
			if err != nil {
				return err
			}
			if !v.Truthy() {
				continue
			}
		}
		x.rids = append(x.rids, rid)
		x.original[rid] = row
	}
	return nil
}

func (x *UpdateExecutor) Next() (value.Row, error) {
	if x.pos >= len(x.rids) {
		return value.Row{}, io.EOF
	}
	rid := x.rids[x.pos]
	x.pos++
	original := x.original[rid]

	newValues := append([]value.Value(nil), original.Values...)
	for _, a := range x.Set {
		idx := x.Schema.IndexOf(a.Column)
		if idx < 0 {
			return value.Row{}, dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found", a.Column)
		}
		v, err := exprs.Eval(a.Value, exprs.Row{Schema: x.Schema, Values: original})
		if err != nil {
			return value.Row{}, err
		}
		newValues[idx] = v
	}
	newRow := value.Row{Values: newValues}
	if err := x.Engine.UpdateRow(x.Table, rid, newRow); err != nil {
		return value.Row{}, err
	}
	return newRow, nil
}

func (x *UpdateExecutor) OutputSchema() value.Schema { return x.Schema }
func (x *UpdateExecutor) Children() []Executor       { return nil }

// DeleteExecutor collects every matching record id once at Init, then
// deletes one per Next call, avoiding the quadratic re-scan-after-every-
// delete pattern.
type DeleteExecutor struct {
	Engine *storageengine.Engine
	Table  string
	Schema value.Schema
	Where  ast.Expr

	rids []uint32
	pos  int
}

func NewDeleteExecutor(engine *storageengine.Engine, table string, schema value.Schema, where ast.Expr) *DeleteExecutor {
	return &DeleteExecutor{Engine: engine, Table: table, Schema: schema, Where: where}
}

func (x *DeleteExecutor) Init() error {
	t, ok := x.Engine.Table(x.Table)
	if !ok {
		return dberr.NewStorageError(dberr.TableNotFound, "table %s not found", x.Table)
	}
	for _, rid := range t.AllRecordIDs() {
		row, ok := t.Get(rid)
		if !ok {
			continue
		}
		if x.Where != nil {
			v, err := exprs.Eval(x.Where, exprs.Row{Schema: x.Schema, Values: row})
			if err != nil {
				return err
			}
			if !v.Truthy() {
				continue
			}
		}
		x.rids = append(x.rids, rid)
	}
	return nil
}

func (x *DeleteExecutor) Next() (value.Row, error) {
	t, _ := x.Engine.Table(x.Table)
	for x.pos < len(x.rids) {
		rid := x.rids[x.pos]
		x.pos++
		row, ok := t.Get(rid)
		if !ok {
			continue
		}
		if err := x.Engine.DeleteRow(x.Table, rid); err != nil {
			return value.Row{}, err
		}
		return row, nil
	}
	return value.Row{}, io.EOF
}

func (x *DeleteExecutor) OutputSchema() value.Schema { return x.Schema }
func (x *DeleteExecutor) Children() []Executor       { return nil }

// DDLExecutor runs a single side-effecting action (CREATE/DROP TABLE/INDEX,
// CREATE/DROP/USE DATABASE) and produces no rows.
type DDLExecutor struct {
	Run func() error
	ran bool
}

func NewDDLExecutor(run func() error) *DDLExecutor { return &DDLExecutor{Run: run} }

func (x *DDLExecutor) Init() error { return nil }

func (x *DDLExecutor) Next() (value.Row, error) {
	if x.ran {
		return value.Row{}, io.EOF
	}
	x.ran = true
	if err := x.Run(); err != nil {
		return value.Row{}, err
	}
	return value.Row{}, io.EOF
}

func (x *DDLExecutor) OutputSchema() value.Schema { return value.Schema{} }
func (x *DDLExecutor) Children() []Executor       { return nil }
