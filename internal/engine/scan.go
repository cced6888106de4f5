package engine

import (
	"github.com/novadb/novadb/internal/exec"
	"github.com/novadb/novadb/internal/heap"
	"github.com/novadb/novadb/internal/index"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/value"
)

// scanFromIndex builds the IndexScan matching a comparison operator against
// a literal, using the numeric boundary policy (StepInt/StepDouble) to turn
// strict inequalities into closed ranges.
func scanFromIndex(t *heap.Table, indexes *index.Manager, indexName string, op ast.BinaryOp, lit value.Value) exec.Executor {
	switch op {
	case ast.OpEq:
		return exec.NewIndexScanKey(t, indexes, indexName, lit)
	case ast.OpGt:
		return exec.NewIndexScanRange(t, indexes, indexName, step(lit, true), maxOf(lit))
	case ast.OpGte:
		return exec.NewIndexScanRange(t, indexes, indexName, lit, maxOf(lit))
	case ast.OpLt:
		return exec.NewIndexScanRange(t, indexes, indexName, minOf(lit), step(lit, false))
	case ast.OpLte:
		return exec.NewIndexScanRange(t, indexes, indexName, minOf(lit), lit)
	default:
		return exec.NewSeqScan(t)
	}
}

func step(v value.Value, up bool) value.Value {
	switch v.Kind {
	case value.KindInt:
		return value.StepInt(v, up)
	case value.KindDouble:
		return value.StepDouble(v, up)
	default:
		return v
	}
}

func maxOf(v value.Value) value.Value {
	switch v.Kind {
	case value.KindInt:
		return value.Int(1<<62 - 1)
	case value.KindDouble:
		return value.Double(1e308)
	default:
		return v
	}
}

func minOf(v value.Value) value.Value {
	switch v.Kind {
	case value.KindInt:
		return value.Int(-(1<<62 - 1))
	case value.KindDouble:
		return value.Double(-1e308)
	default:
		return v
	}
}
