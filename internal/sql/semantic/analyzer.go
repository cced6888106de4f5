// Package semantic checks a parsed statement against the catalog before
// it reaches planning: every table and column reference must resolve,
// types must agree where the grammar requires it, and an INSERT column
// list must not name a column twice.
package semantic

import (
	"github.com/novadb/novadb/internal/catalog"
	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/value"
)

// Analyzer runs structural and type checks against a Catalog snapshot.
type Analyzer struct {
	Catalog *catalog.Catalog
}

func New(cat *catalog.Catalog) *Analyzer { return &Analyzer{Catalog: cat} }

// Check dispatches on the statement's concrete type. CREATE TABLE and
// CREATE DATABASE never reach here; they define the schema the catalog
// doesn't yet have, so there's nothing to resolve against.
func (a *Analyzer) Check(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case ast.InsertStmt:
		return a.checkInsert(s)
	case ast.SelectStmt:
		return a.checkSelect(s)
	case ast.UpdateStmt:
		return a.checkUpdate(s)
	case ast.DeleteStmt:
		return a.checkDelete(s)
	case ast.DropTable:
		return a.checkDropTable(s)
	case ast.CreateIndex:
		return a.checkCreateIndex(s)
	case ast.DropIndex:
		return nil
	default:
		return nil
	}
}

func (a *Analyzer) requireTable(name string) (value.Schema, error) {
	if name == "" {
		return value.Schema{}, dberr.NewSemanticError(dberr.EmptyTableName, "table name is empty")
	}
	schema, ok := a.Catalog.TableSchema(name)
	if !ok {
		return value.Schema{}, dberr.NewSemanticError(dberr.TableNotExists, "table %s does not exist", name)
	}
	return schema, nil
}

func (a *Analyzer) checkDropTable(s ast.DropTable) error {
	if s.IfExists {
		return nil
	}
	_, err := a.requireTable(s.Table)
	return err
}

func (a *Analyzer) checkCreateIndex(s ast.CreateIndex) error {
	schema, err := a.requireTable(s.Table)
	if err != nil {
		return err
	}
	if schema.IndexOf(s.Column) < 0 {
		return dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found on table %s", s.Column, s.Table)
	}
	return nil
}

func (a *Analyzer) checkInsert(s ast.InsertStmt) error {
	schema, err := a.requireTable(s.Table)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, col := range s.Columns {
		if col == "" {
			return dberr.NewSemanticError(dberr.EmptyColumnName, "column name is empty")
		}
		if seen[col] {
			return dberr.NewSemanticError(dberr.DuplicateColumnName, "column %s specified twice", col)
		}
		seen[col] = true
		if schema.IndexOf(col) < 0 {
			return dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found on table %s", col, s.Table)
		}
	}
	targetCols := s.Columns
	if len(targetCols) == 0 {
		targetCols = make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			targetCols[i] = c.Name
		}
	}
	for _, tuple := range s.Rows {
		if len(tuple) != len(targetCols) {
			return dberr.NewSemanticError(dberr.ColumnCountMismatch,
				"expected %d values, got %d", len(targetCols), len(tuple))
		}
		for i, e := range tuple {
			lit, ok := e.(ast.Literal)
			if !ok {
				continue
			}
			idx := schema.IndexOf(targetCols[i])
			if idx < 0 {
				continue
			}
			if err := checkLiteralType(schema.Columns[idx], lit.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkLiteralType(col value.ColumnInfo, v value.Value) error {
	if v.IsNull() {
		if col.NotNull {
			return dberr.NewSemanticError(dberr.InvalidValue, "column %s cannot be NULL", col.Name)
		}
		return nil
	}
	switch col.Type {
	case value.ColInt, value.ColDouble:
		if v.Kind == value.KindText {
			return dberr.NewSemanticError(dberr.TypeMismatch, "column %s expects a number, got text", col.Name)
		}
	case value.ColText:
		if v.Kind != value.KindText {
			return dberr.NewSemanticError(dberr.TypeMismatch, "column %s expects text", col.Name)
		}
	}
	return nil
}

func (a *Analyzer) checkSelect(s ast.SelectStmt) error {
	schema, err := a.requireTable(s.From)
	if err != nil {
		return err
	}
	scope := newScope(s.From, schema)
	for _, j := range s.Joins {
		joinSchema, err := a.requireTable(j.Table)
		if err != nil {
			return err
		}
		scope.add(j.Table, joinSchema)
		if j.On != nil {
			if err := a.checkExpr(j.On, scope); err != nil {
				return err
			}
		}
	}
	for _, e := range s.Columns {
		if err := a.checkExpr(e, scope); err != nil {
			return err
		}
	}
	if s.Where != nil {
		if err := a.checkExpr(s.Where, scope); err != nil {
			return err
		}
	}
	for _, e := range s.GroupBy {
		if err := a.checkExpr(e, scope); err != nil {
			return err
		}
	}
	for _, item := range s.OrderBy {
		if err := a.checkExpr(item.Expr, scope); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) checkUpdate(s ast.UpdateStmt) error {
	schema, err := a.requireTable(s.Table)
	if err != nil {
		return err
	}
	scope := newScope(s.Table, schema)
	for _, asg := range s.Set {
		if schema.IndexOf(asg.Column) < 0 {
			return dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found on table %s", asg.Column, s.Table)
		}
		if err := a.checkExpr(asg.Value, scope); err != nil {
			return err
		}
	}
	if s.Where != nil {
		return a.checkExpr(s.Where, scope)
	}
	return nil
}

func (a *Analyzer) checkDelete(s ast.DeleteStmt) error {
	schema, err := a.requireTable(s.Table)
	if err != nil {
		return err
	}
	if s.Where == nil {
		return nil
	}
	return a.checkExpr(s.Where, newScope(s.Table, schema))
}

// scope resolves identifiers across one or more table schemas, detecting
// ambiguity when an unqualified name exists in more than one of them.
type scope struct {
	tables  []string
	schemas map[string]value.Schema
}

func newScope(table string, schema value.Schema) *scope {
	s := &scope{schemas: make(map[string]value.Schema)}
	s.add(table, schema)
	return s
}

func (s *scope) add(table string, schema value.Schema) {
	s.tables = append(s.tables, table)
	s.schemas[table] = schema
}

func (s *scope) resolve(id ast.Identifier) error {
	if id.Qualifier != "" {
		schema, ok := s.schemas[id.Qualifier]
		if !ok {
			return dberr.NewSemanticError(dberr.TableNotExists, "table %s not in scope", id.Qualifier)
		}
		if schema.IndexOf(id.Name) < 0 {
			return dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found on table %s", id.Name, id.Qualifier)
		}
		return nil
	}
	matches := 0
	for _, t := range s.tables {
		if s.schemas[t].IndexOf(id.Name) >= 0 {
			matches++
		}
	}
	switch matches {
	case 0:
		return dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found", id.Name)
	case 1:
		return nil
	default:
		return dberr.NewSemanticError(dberr.AmbiguousColumn, "column %s is ambiguous across joined tables", id.Name)
	}
}

var aggregateNames = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
}

func (a *Analyzer) checkExpr(e ast.Expr, scope *scope) error {
	switch ex := e.(type) {
	case ast.Literal, ast.Star:
		return nil
	case ast.Identifier:
		return scope.resolve(ex)
	case ast.BinaryExpr:
		if err := a.checkExpr(ex.Left, scope); err != nil {
			return err
		}
		return a.checkExpr(ex.Right, scope)
	case ast.UnaryExpr:
		return a.checkExpr(ex.Operand, scope)
	case ast.FunctionCall:
		if !aggregateNames[ex.Name] {
			return dberr.NewSemanticError(dberr.InvalidFunction, "unknown function %s", ex.Name)
		}
		for _, arg := range ex.Args {
			if _, isStar := arg.(ast.Star); isStar {
				continue
			}
			if err := a.checkExpr(arg, scope); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
