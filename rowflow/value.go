package rowflow

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies which arm of the Value variant is populated
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindBytes
)

func (k Kind) String() string {
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
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Numeric reports whether values of this kind compare as numbers
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// Value is a tagged variant holding one primitive field value.
// The zero Value is Null, which is also what an absent field reads as.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	t    time.Time
}

// Helper functions for creating typed values
func Null() Value            { return Value{} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.Round(0)} }
func Bytes(b []byte) Value   { return Value{kind: KindBytes, s: string(b)} }
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

// ValueOf converts a dynamically typed Go value supplied by a reader into a Value.
// Unsupported types are rendered with fmt and stored as strings.
func ValueOf(x any) Value {
	switch v := x.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case *Value:
		if v == nil {
			return Null()
		}
		return *v
	case bool:
		return Bool(v)
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		return Int(int64(v))
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return Float(float64(v))
		}
		return Int(int64(v))
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case string:
		return String(v)
	case []byte:
		return Bytes(v)
	case time.Time:
		return Time(v)
	case fmt.Stringer:
		return String(v.String())
	default:
		return String(fmt.Sprintf("%v", v))
	}
}

// Kind returns the populated arm
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is absent
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsInt() (int64, bool)      { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)  { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)  { return v.s, v.kind == KindString }
func (v Value) AsBool() (bool, bool)      { return v.i != 0, v.kind == KindBool }
func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindTime }

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return []byte(v.s), true
}

// Number returns the value as float64 for either numeric kind
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Any unwraps the value into its natural Go representation
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.i != 0
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindTime:
		return v.t
	case KindBytes:
		return []byte(v.s)
	}
	return nil
}

// Equal is structural equality: same kind and same payload
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool, KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString, KindBytes:
		return v.s == o.s
	case KindTime:
		return v.t.Equal(o.t)
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindBytes:
		return hex.EncodeToString([]byte(v.s))
	}
	return "?"
}
