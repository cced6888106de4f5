package value

import (
	"fmt"

	"github.com/novadb/novadb/internal/alias/bx"
)

// ColumnType enumerates the SQL types supported by the engine.
type ColumnType uint8

const (
	ColInt ColumnType = iota
	ColDouble
	ColText
)

func (t ColumnType) String() string {
	switch t {
	case ColInt:
		return "INT"
	case ColDouble:
		return "DOUBLE"
	case ColText:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PrimaryKey bool
}

// Schema is the ordered column list of a table.
type Schema struct {
	Columns []ColumnInfo
}

// IndexOf returns the position of name within the schema, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// PrimaryKeyIndex returns the position of the primary-key column, or -1.
func (s Schema) PrimaryKeyIndex() int {
	for i, c := range s.Columns {
		if c.PrimaryKey {
			return i
		}
	}
	return -1
}

// Row is an ordered sequence of Values, one per column of its table.
type Row struct {
	Values []Value
}

func NewRow(values ...Value) Row { return Row{Values: values} }

func (r Row) String() string {
	s := "("
	for i, v := range r.Values {
		if i > 0 {
			s += ", "
		}
		s += v.String()
	}
	return s + ")"
}

// Serialize produces the length-prefixed, typed-tag byte stream described by
// the on-disk format: a 4-byte field count followed by each encoded Value.
func (r Row) Serialize() []byte {
	buf := make([]byte, 4)
	bx.PutU32(buf, uint32(len(r.Values)))
	for _, v := range r.Values {
		buf = Encode(buf, v)
	}
	return buf
}

// DeserializeRow is the inverse of Serialize; it round-trips exactly,
// including zero-length text values.
func DeserializeRow(buf []byte) (Row, error) {
	if len(buf) < 4 {
		return Row{}, fmt.Errorf("row: truncated field count")
	}
	n := int(bx.U32(buf[:4]))
	off := 4
	values := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		v, consumed, err := Decode(buf[off:])
		if err != nil {
			return Row{}, fmt.Errorf("row: field %d: %w", i, err)
		}
		values = append(values, v)
		off += consumed
	}
	return Row{Values: values}, nil
}
