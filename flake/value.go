package flake

import (
	"fmt"
	"strconv"
	"time"
)

// ValueKind tags the representation stored in a Value.
type ValueKind uint8

// Value kinds, in cross-kind sort order.
const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindRef
)

// String returns the kind name for logs.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindRef:
		return "ref"
	default:
		return "unknown"
	}
}

// Value is the object position of a flake: either a literal or a
// reference to another subject. Values are immutable and comparable
// under a total order so they can key the object-first index.
type Value struct {
	Kind ValueKind
	Ref  ID
	Int  int64
	Flt  float64
	Str  string
	Tm   time.Time
}

// RefValue creates a reference to another subject.
func RefValue(id ID) Value { return Value{Kind: KindRef, Ref: id} }

// BoolValue creates a boolean literal.
func BoolValue(b bool) Value {
	v := Value{Kind: KindBool}
	if b {
		v.Int = 1
	}
	return v
}

// IntValue creates an integer literal.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue creates a floating point literal.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Flt: f} }

// StringValue creates a string literal.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// TimeValue creates a timestamp literal.
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Tm: t} }

// Bool reports the boolean literal.
func (v Value) Bool() bool { return v.Int != 0 }

// IsRef reports whether the value references another subject.
func (v Value) IsRef() bool { return v.Kind == KindRef }

// Native returns the Go representation of the value.
func (v Value) Native() any {
	switch v.Kind {
	case KindBool:
		return v.Bool()
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Flt
	case KindString:
		return v.Str
	case KindTime:
		return v.Tm
	case KindRef:
		return v.Ref
	default:
		return nil
	}
}

// String renders the value for logs.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	case KindTime:
		return v.Tm.Format(time.RFC3339Nano)
	case KindRef:
		return fmt.Sprintf("<%d>", v.Ref)
	default:
		return "?"
	}
}

// Compare orders two values. Values of different kinds order by kind;
// values of the same kind order by their natural ordering. The result
// is -1, 0, or 1.
func (v Value) Compare(o Value) int {
	if v.Kind != o.Kind {
		return cmpOrdered(v.Kind, o.Kind)
	}
	switch v.Kind {
	case KindNull:
		return 0
	case KindBool, KindInt:
		return cmpOrdered(v.Int, o.Int)
	case KindFloat:
		return cmpOrdered(v.Flt, o.Flt)
	case KindString:
		return cmpOrdered(v.Str, o.Str)
	case KindTime:
		return v.Tm.Compare(o.Tm)
	case KindRef:
		return cmpOrdered(v.Ref, o.Ref)
	default:
		return 0
	}
}

// Equal reports value equality under Compare.
func (v Value) Equal(o Value) bool { return v.Compare(o) == 0 }

func (v Value) size() int64 {
	switch v.Kind {
	case KindString:
		return int64(len(v.Str))
	case KindTime:
		return 24
	default:
		return 8
	}
}

type ordered interface {
	~int | ~int64 | ~uint8 | ~float64 | ~string
}

func cmpOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
