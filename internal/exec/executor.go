// Package exec implements the Volcano-style pull iterators that execute a
// planned operator tree: each operator is a value exposing Init/Next over
// its exclusively-owned children, not a class hierarchy.
package exec

import (
	"io"

	"github.com/novadb/novadb/internal/value"
)

// Executor is the common contract every operator satisfies. Next returns
// io.EOF once exhausted; any other error short-circuits the statement.
type Executor interface {
	Init() error
	Next() (value.Row, error)
	OutputSchema() value.Schema
	Children() []Executor
}

// Execute drives init then repeatedly next until end-of-data, accumulating
// every row. It is the bulk convenience used for DDL/DML and for materializing
// a SELECT's final result set.
func Execute(x Executor) ([]value.Row, error) {
	if err := x.Init(); err != nil {
		return nil, err
	}
	var out []value.Row
	for {
		row, err := x.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
}
