package exec

import (
	"io"

	"github.com/novadb/novadb/internal/exprs"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/value"
)

// NestedLoopJoin pairs rows from Left and Right under On, buffering Right
// entirely on Init. INNER/LEFT/RIGHT/FULL_OUTER all share this shape; the
// null-padding direction depends on Kind.
type NestedLoopJoin struct {
	Left  Executor
	Right Executor
	Kind  ast.JoinKind
	On    ast.Expr

	rightRows    []value.Row
	rightMatched []bool
	rightSchema  value.Schema
	leftSchema   value.Schema

	leftLoaded bool
	leftRow    value.Row
	leftDone   bool
	leftMatchedAny bool
	rightIdx   int

	drainingRight bool
	drainIdx      int
}

func NewNestedLoopJoin(left, right Executor, kind ast.JoinKind, on ast.Expr) *NestedLoopJoin {
	return &NestedLoopJoin{Left: left, Right: right, Kind: kind, On: on}
}

func (j *NestedLoopJoin) Init() error {
	if err := j.Left.Init(); err != nil {
		return err
	}
	if err := j.Right.Init(); err != nil {
		return err
	}
	j.rightSchema = j.Right.OutputSchema()
	j.leftSchema = j.Left.OutputSchema()
	j.rightRows = nil
	for {
		row, err := j.Right.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		j.rightRows = append(j.rightRows, row)
	}
	j.rightMatched = make([]bool, len(j.rightRows))
	return nil
}

func (j *NestedLoopJoin) nullRight() []value.Value {
	out := make([]value.Value, len(j.rightSchema.Columns))
	for i := range out {
		out[i] = value.Null()
	}
	return out
}

func (j *NestedLoopJoin) nullLeft() []value.Value {
	out := make([]value.Value, len(j.leftSchema.Columns))
	for i := range out {
		out[i] = value.Null()
	}
	return out
}

func combine(left, right []value.Value) value.Row {
	out := make([]value.Value, 0, len(left)+len(right))
	out = append(out, left...)
	out = append(out, right...)
	return value.Row{Values: out}
}

func (j *NestedLoopJoin) Next() (value.Row, error) {
	for {
		if j.drainingRight {
			for j.drainIdx < len(j.rightRows) {
				idx := j.drainIdx
				j.drainIdx++
				if !j.rightMatched[idx] {
					return combine(j.nullLeft(), j.rightRows[idx].Values), nil
				}
			}
			return value.Row{}, io.EOF
		}

		if !j.leftLoaded {
			row, err := j.Left.Next()
			if err == io.EOF {
				j.leftDone = true
				if j.Kind == ast.JoinRight || j.Kind == ast.JoinFullOuter {
					j.drainingRight = true
					j.drainIdx = 0
					continue
				}
				return value.Row{}, io.EOF
			}
			if err != nil {
				return value.Row{}, err
			}
			j.leftRow = row
			j.leftLoaded = true
			j.leftMatchedAny = false
			j.rightIdx = 0
		}

		for j.rightIdx < len(j.rightRows) {
			cand := j.rightRows[j.rightIdx]
			idx := j.rightIdx
			j.rightIdx++
			ok, err := evalJoinPred(j.On, j.leftSchema, j.leftRow, j.rightSchema, cand)
			if err != nil {
				return value.Row{}, err
			}
			if ok {
				j.leftMatchedAny = true
				j.rightMatched[idx] = true
				return combine(j.leftRow.Values, cand.Values), nil
			}
		}

		// right exhausted for this left row
		j.leftLoaded = false
		if !j.leftMatchedAny && (j.Kind == ast.JoinLeft || j.Kind == ast.JoinFullOuter) {
			return combine(j.leftRow.Values, j.nullRight()), nil
		}
	}
}

func evalJoinPred(on ast.Expr, leftSchema value.Schema, leftRow value.Row, rightSchema value.Schema, rightRow value.Row) (bool, error) {
	v, err := exprs.EvalJoin(on, exprs.Row{Schema: leftSchema, Values: leftRow}, exprs.Row{Schema: rightSchema, Values: rightRow})
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

func (j *NestedLoopJoin) OutputSchema() value.Schema {
	cols := make([]value.ColumnInfo, 0, len(j.Left.OutputSchema().Columns)+len(j.Right.OutputSchema().Columns))
	cols = append(cols, j.Left.OutputSchema().Columns...)
	cols = append(cols, j.Right.OutputSchema().Columns...)
	return value.Schema{Columns: cols}
}

func (j *NestedLoopJoin) Children() []Executor { return []Executor{j.Left, j.Right} }
