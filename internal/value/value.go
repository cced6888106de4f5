// Package value implements the engine's tagged scalar and row types.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/novadb/novadb/internal/alias/bx"
	"github.com/novadb/novadb/internal/dberr"
)

// Kind tags a Value's underlying type.
type Kind uint8

const (
	KindInt Kind = iota
	KindDouble
	KindText
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "INT"
	case KindDouble:
		return "DOUBLE"
	case KindText:
		return "STRING"
	case KindNull:
		return "NULL"
	default:
		return "UNKNOWN"
	}
}

// Value is a tagged scalar: Int, Double, Text, or Null.
type Value struct {
	Kind Kind
	I    int64
	D    float64
	S    string
}

func Int(i int64) Value       { return Value{Kind: KindInt, I: i} }
func Double(d float64) Value  { return Value{Kind: KindDouble, D: d} }
func Text(s string) Value     { return Value{Kind: KindText, S: s} }
func Null() Value             { return Value{Kind: KindNull} }
func (v Value) IsNull() bool  { return v.Kind == KindNull }

// Truthy implements the Filter operator's non-null, non-zero rule.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindInt:
		return v.I != 0
	case KindDouble:
		return v.D != 0
	case KindText:
		return v.S != ""
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindDouble:
		return strconv.FormatFloat(v.D, 'g', -1, 64)
	case KindText:
		return v.S
	default:
		return "null"
	}
}

// AsFloat widens Int/Double to a float64 for cross-type arithmetic/comparison.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I), true
	case KindDouble:
		return v.D, true
	default:
		return 0, false
	}
}

// Compare orders two values per the engine's comparison policy: same-type
// comparisons are native; Int vs Double widens to Double; any comparison
// touching Text against a non-Text value is undefined (reported via ok=false).
func Compare(a, b Value) (cmp int, ok bool) {
	if a.Kind == KindNull || b.Kind == KindNull {
		return 0, false
	}
	if a.Kind == KindText || b.Kind == KindText {
		if a.Kind != KindText || b.Kind != KindText {
			return 0, false
		}
		return strings.Compare(a.S, b.S), true
	}
	af, _ := a.AsFloat()
	bf, _ := b.AsFloat()
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

// Equal reports value equality within comparable types.
func Equal(a, b Value) bool {
	cmp, ok := Compare(a, b)
	return ok && cmp == 0
}

// Add, Sub, Mul, Div implement the arithmetic operators of the expression
// grammar. Text operands and division by zero are runtime errors.
func Add(a, b Value) (Value, error) { return arith(a, b, '+') }
func Sub(a, b Value) (Value, error) { return arith(a, b, '-') }
func Mul(a, b Value) (Value, error) { return arith(a, b, '*') }
func Div(a, b Value) (Value, error) { return arith(a, b, '/') }

func arith(a, b Value, op byte) (Value, error) {
	if a.Kind == KindText || b.Kind == KindText || a.Kind == KindNull || b.Kind == KindNull {
		return Value{}, dberr.NewRuntimeError(dberr.TypeMismatchInExpression, "arithmetic on non-numeric value")
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		switch op {
		case '+':
			return Int(a.I + b.I), nil
		case '-':
			return Int(a.I - b.I), nil
		case '*':
			return Int(a.I * b.I), nil
		case '/':
			if b.I == 0 {
				return Value{}, dberr.NewRuntimeError(dberr.DivisionByZero, "division by zero")
			}
			return Int(a.I / b.I), nil
		}
	}
	af, _ := a.AsFloat()
	bf, _ := b.AsFloat()
	switch op {
	case '+':
		return Double(af + bf), nil
	case '-':
		return Double(af - bf), nil
	case '*':
		return Double(af * bf), nil
	case '/':
		if bf == 0 {
			return Value{}, dberr.NewRuntimeError(dberr.DivisionByZero, "division by zero")
		}
		return Double(af / bf), nil
	}
	return Value{}, fmt.Errorf("unknown arithmetic operator %c", op)
}

// StepInt implements the numeric boundary policy for strict inequalities on
// integer keys: bound by one.
func StepInt(v Value, up bool) Value {
	if up {
		return Int(v.I + 1)
	}
	return Int(v.I - 1)
}

// Epsilon is the step StepDouble uses for the numeric boundary policy on
// strict inequalities over floating-point keys.
const Epsilon = 0.01

func StepDouble(v Value, up bool) Value {
	if up {
		return Double(v.D + Epsilon)
	}
	return Double(v.D - Epsilon)
}

// Encode appends the length-prefixed, typed-tag wire form of v to buf.
func Encode(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindNull:
		return append(buf, byte(KindNull))
	case KindInt:
		b := make([]byte, 9)
		b[0] = byte(KindInt)
		bx.PutU64(b[1:], uint64(v.I))
		return append(buf, b...)
	case KindDouble:
		b := make([]byte, 9)
		b[0] = byte(KindDouble)
		bx.PutU64(b[1:], math.Float64bits(v.D))
		return append(buf, b...)
	case KindText:
		s := []byte(v.S)
		hdr := make([]byte, 5)
		hdr[0] = byte(KindText)
		bx.PutU32(hdr[1:], uint32(len(s)))
		buf = append(buf, hdr...)
		return append(buf, s...)
	default:
		return append(buf, byte(KindNull))
	}
}

// Decode reads one Value from buf, returning the value and the number of
// bytes consumed.
func Decode(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, fmt.Errorf("value: empty buffer")
	}
	switch Kind(buf[0]) {
	case KindNull:
		return Null(), 1, nil
	case KindInt:
		if len(buf) < 9 {
			return Value{}, 0, fmt.Errorf("value: truncated int")
		}
		return Int(int64(bx.U64(buf[1:9]))), 9, nil
	case KindDouble:
		if len(buf) < 9 {
			return Value{}, 0, fmt.Errorf("value: truncated double")
		}
		return Double(math.Float64frombits(bx.U64(buf[1:9]))), 9, nil
	case KindText:
		if len(buf) < 5 {
			return Value{}, 0, fmt.Errorf("value: truncated text length")
		}
		n := int(bx.U32(buf[1:5]))
		if len(buf) < 5+n {
			return Value{}, 0, fmt.Errorf("value: truncated text body")
		}
		return Text(string(buf[5 : 5+n])), 5 + n, nil
	default:
		return Value{}, 0, fmt.Errorf("value: unknown tag %d", buf[0])
	}
}
