// Package exprs implements the single, consolidated expression evaluator
// used by every operator that inspects expressions (Filter, Project,
// join ON clauses, GroupBy, OrderBy, Update, Delete), so comparison and
// arithmetic rules cannot drift between operators.
package exprs

import (
	"fmt"
	"strings"

	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/value"
)

// Row pairs a Schema with its Values so identifiers can resolve by name.
type Row struct {
	Schema value.Schema
	Values value.Row
}

// Eval evaluates expr against a single row. Qualified identifiers
// (t.c) match only when left.Schema carries that table-qualification;
// since the engine stores unqualified schemas, the qualifier is accepted
// but not checked against a table name; join resolution disambiguates
// before evaluation happens (see EvalJoin).
func Eval(expr ast.Expr, row Row) (value.Value, error) {
	return eval(expr, row, nil, false)
}

// EvalJoin evaluates expr against a pair of rows (left, right), used by
// NestedLoopJoin's ON clause: unqualified identifiers are resolved against
// left first, then right.
func EvalJoin(expr ast.Expr, left, right Row) (value.Value, error) {
	return eval(expr, left, &right, true)
}

func eval(expr ast.Expr, left Row, right *Row, joinMode bool) (value.Value, error) {
	switch e := expr.(type) {
	case ast.Literal:
		return e.Value, nil

	case ast.Identifier:
		return resolveIdentifier(e, left, right, joinMode)

	case ast.UnaryExpr:
		v, err := eval(e.Operand, left, right, joinMode)
		if err != nil {
			return value.Value{}, err
		}
		switch e.Op {
		case ast.OpNot:
			if v.Truthy() {
				return value.Int(0), nil
			}
			return value.Int(1), nil
		case ast.OpNeg:
			return value.Sub(value.Int(0), v)
		}
		return value.Value{}, fmt.Errorf("exprs: unknown unary operator")

	case ast.BinaryExpr:
		return evalBinary(e, left, right, joinMode)

	case ast.FunctionCall:
		return value.Value{}, dberr.NewRuntimeError(dberr.TypeMismatchInExpression,
			"aggregate function %s cannot be evaluated outside GROUP BY", e.Name)

	case ast.Star:
		return value.Value{}, fmt.Errorf("exprs: '*' is not a scalar expression")

	default:
		return value.Value{}, fmt.Errorf("exprs: unknown expression node %T", expr)
	}
}

func resolveIdentifier(id ast.Identifier, left Row, right *Row, joinMode bool) (value.Value, error) {
	if !joinMode {
		idx := left.Schema.IndexOf(id.Name)
		if idx < 0 {
			return value.Value{}, dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found", id.Name)
		}
		return left.Values.Values[idx], nil
	}
	if idx := left.Schema.IndexOf(id.Name); idx >= 0 {
		return left.Values.Values[idx], nil
	}
	if right != nil {
		if idx := right.Schema.IndexOf(id.Name); idx >= 0 {
			return right.Values.Values[idx], nil
		}
	}
	return value.Value{}, dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not found in either side of join", id.Name)
}

func evalBinary(e ast.BinaryExpr, left Row, right *Row, joinMode bool) (value.Value, error) {
	switch e.Op {
	case ast.OpAnd:
		l, err := eval(e.Left, left, right, joinMode)
		if err != nil {
			return value.Value{}, err
		}
		if !l.Truthy() {
			return value.Int(0), nil
		}
		r, err := eval(e.Right, left, right, joinMode)
		if err != nil {
			return value.Value{}, err
		}
		return boolValue(r.Truthy()), nil
	case ast.OpOr:
		l, err := eval(e.Left, left, right, joinMode)
		if err != nil {
			return value.Value{}, err
		}
		if l.Truthy() {
			return value.Int(1), nil
		}
		r, err := eval(e.Right, left, right, joinMode)
		if err != nil {
			return value.Value{}, err
		}
		return boolValue(r.Truthy()), nil
	}

	lv, err := eval(e.Left, left, right, joinMode)
	if err != nil {
		return value.Value{}, err
	}
	rv, err := eval(e.Right, left, right, joinMode)
	if err != nil {
		return value.Value{}, err
	}

	if e.Op.IsComparison() {
		cmp, ok := value.Compare(lv, rv)
		if !ok {
			return value.Int(0), nil
		}
		switch e.Op {
		case ast.OpEq:
			return boolValue(cmp == 0), nil
		case ast.OpNeq:
			return boolValue(cmp != 0), nil
		case ast.OpLt:
			return boolValue(cmp < 0), nil
		case ast.OpLte:
			return boolValue(cmp <= 0), nil
		case ast.OpGt:
			return boolValue(cmp > 0), nil
		case ast.OpGte:
			return boolValue(cmp >= 0), nil
		}
	}

	switch e.Op {
	case ast.OpAdd:
		return value.Add(lv, rv)
	case ast.OpSub:
		return value.Sub(lv, rv)
	case ast.OpMul:
		return value.Mul(lv, rv)
	case ast.OpDiv:
		return value.Div(lv, rv)
	}
	return value.Value{}, fmt.Errorf("exprs: unknown binary operator %s", e.Op)
}

func boolValue(b bool) value.Value {
	if b {
		return value.Int(1)
	}
	return value.Int(0)
}

// ColumnName synthesizes the output column name Project uses when an
// expression has no explicit alias: identifiers use their own name,
// literals print their value, and compound expressions synthesize
// `left_op_right`-shaped names.
func ColumnName(expr ast.Expr) string {
	switch e := expr.(type) {
	case ast.Identifier:
		if e.Qualifier != "" {
			return e.Qualifier + "." + e.Name
		}
		return e.Name
	case ast.Literal:
		return e.Value.String()
	case ast.Star:
		return "*"
	case ast.FunctionCall:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = ColumnName(a)
		}
		return strings.ToLower(e.Name) + "(" + strings.Join(parts, ", ") + ")"
	case ast.UnaryExpr:
		if e.Op == ast.OpNot {
			return "not_" + ColumnName(e.Operand)
		}
		return "neg_" + ColumnName(e.Operand)
	case ast.BinaryExpr:
		return ColumnName(e.Left) + "_" + opWord(e.Op) + "_" + ColumnName(e.Right)
	default:
		return "expr"
	}
}

func opWord(op ast.BinaryOp) string {
	switch op {
	case ast.OpEq:
		return "eq"
	case ast.OpNeq:
		return "neq"
	case ast.OpLt:
		return "lt"
	case ast.OpLte:
		return "lte"
	case ast.OpGt:
		return "gt"
	case ast.OpGte:
		return "gte"
	case ast.OpAnd:
		return "and"
	case ast.OpOr:
		return "or"
	case ast.OpAdd:
		return "plus"
	case ast.OpSub:
		return "minus"
	case ast.OpMul:
		return "times"
	case ast.OpDiv:
		return "div"
	default:
		return "op"
	}
}

// IsAggregate reports whether expr is a recognized aggregate call.
func IsAggregate(expr ast.Expr) bool {
	fc, ok := expr.(ast.FunctionCall)
	if !ok {
		return false
	}
	switch fc.Name {
	case "COUNT", "SUM", "AVG", "MAX", "MIN":
		return true
	default:
		return false
	}
}

// EvalAggregate computes one aggregate function over a group of rows, all
// sharing schema.
func EvalAggregate(fc ast.FunctionCall, schema value.Schema, rows []value.Row) (value.Value, error) {
	if fc.Name == "COUNT" {
		if len(fc.Args) == 1 {
			if _, ok := fc.Args[0].(ast.Star); ok {
				return value.Int(int64(len(rows))), nil
			}
		}
		count := 0
		for _, r := range rows {
			v, err := Eval(fc.Args[0], Row{Schema: schema, Values: r})
			if err != nil {
				return value.Value{}, err
			}
			if !v.IsNull() {
				count++
			}
		}
		return value.Int(int64(count)), nil
	}

	if len(fc.Args) != 1 {
		return value.Value{}, dberr.NewSemanticError(dberr.InvalidFunction, "%s takes exactly one argument", fc.Name)
	}
	var nums []float64
	for _, r := range rows {
		v, err := Eval(fc.Args[0], Row{Schema: schema, Values: r})
		if err != nil {
			return value.Value{}, err
		}
		if f, ok := v.AsFloat(); ok {
			nums = append(nums, f)
		}
	}

	switch fc.Name {
	case "SUM":
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return value.Double(sum), nil
	case "AVG":
		if len(nums) == 0 {
			return value.Double(0), nil
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return value.Double(sum / float64(len(nums))), nil
	case "MAX":
		if len(nums) == 0 {
			return value.Null(), nil
		}
		max := nums[0]
		for _, n := range nums[1:] {
			if n > max {
				max = n
			}
		}
		return value.Double(max), nil
	case "MIN":
		if len(nums) == 0 {
			return value.Null(), nil
		}
		min := nums[0]
		for _, n := range nums[1:] {
			if n < min {
				min = n
			}
		}
		return value.Double(min), nil
	default:
		return value.Value{}, dberr.NewSemanticError(dberr.InvalidFunction, "unknown aggregate %s", fc.Name)
	}
}
