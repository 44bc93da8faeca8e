package rowflow

import (
	"bytes"
	"cmp"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// kindRank orders kinds for the total order used by sorting.
// Int and Float share a rank because they compare numerically.
func kindRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindString:
		return 3
	case KindTime:
		return 4
	case KindBytes:
		return 5
	}
	return 6
}

// Compare is a total order over all values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Null sorts before everything. Values of different kinds order by kind,
// except Int and Float which compare numerically. Compare never coerces
// strings; filter semantics live in Evaluate.
func Compare(left, right Value) int {
	lr, rr := kindRank(left.kind), kindRank(right.kind)
	if lr != rr {
		return cmp.Compare(lr, rr)
	}
	return compareSameClass(left, right)
}

// compareSameClass compares values already known to share a kind class
func compareSameClass(left, right Value) int {
	switch left.kind {
	case KindNull:
		return 0
	case KindBool:
		return cmp.Compare(left.i, right.i)
	case KindInt:
		if right.kind == KindInt {
			return cmp.Compare(left.i, right.i)
		}
		return cmp.Compare(float64(left.i), right.f)
	case KindFloat:
		if right.kind == KindInt {
			return cmp.Compare(left.f, float64(right.i))
		}
		return cmp.Compare(left.f, right.f)
	case KindString:
		return strings.Compare(left.s, right.s)
	case KindTime:
		return left.t.Compare(right.t)
	case KindBytes:
		return bytes.Compare([]byte(left.s), []byte(right.s))
	}
	return 0
}

// SameClass reports whether two non-null values compare without coercion
func SameClass(a, b Value) bool {
	if a.kind == b.kind {
		return true
	}
	return a.kind.Numeric() && b.kind.Numeric()
}

// Coerce converts v to the requested kind. Only strings are converted into
// other kinds, and any value can be rendered as a string. The bool result is
// false when the conversion is not possible.
func Coerce(v Value, kind Kind) (Value, bool) {
	if v.kind == kind || (v.kind.Numeric() && kind.Numeric()) {
		return v, true
	}
	if v.kind == KindNull {
		return v, false
	}
	if kind == KindString {
		return String(v.String()), true
	}
	if v.kind != KindString {
		return v, false
	}
	switch kind {
	case KindInt:
		// cast truncates "2.5" to 2, so a fraction keeps the value a float
		f, ferr := cast.ToFloat64E(v.s)
		if ferr == nil && f != math.Trunc(f) {
			return Float(f), true
		}
		if i, err := cast.ToInt64E(v.s); err == nil {
			return Int(i), true
		}
		if ferr == nil {
			return Float(f), true
		}
	case KindFloat:
		if f, err := cast.ToFloat64E(v.s); err == nil {
			return Float(f), true
		}
	case KindBool:
		if b, err := cast.ToBoolE(v.s); err == nil {
			return Bool(b), true
		}
	case KindTime:
		if t, err := cast.ToTimeE(v.s); err == nil {
			return Time(t), true
		}
	case KindBytes:
		return Bytes([]byte(v.s)), true
	}
	return v, false
}

// Resolve brings two values to a common kind class for an ordering
// comparison, coercing a string operand into the other operand's kind.
func Resolve(a, b Value) (Value, Value, bool) {
	if a.IsNull() || b.IsNull() {
		return a, b, false
	}
	if SameClass(a, b) {
		return a, b, true
	}
	if a.kind == KindString {
		if ca, ok := Coerce(a, b.kind); ok {
			return ca, b, true
		}
		return a, b, false
	}
	if b.kind == KindString {
		if cb, ok := Coerce(b, a.kind); ok {
			return a, cb, true
		}
	}
	return a, b, false
}

// Evaluate applies op to two values with filter semantics:
//   - = and != are structural: values of unrelated kinds are never equal,
//     null equals null and nothing else
//   - equal kinds (or two numerics) compare by natural order
//   - ordering operators coerce a string operand into the other kind first
//     and evaluate to false when the kinds stay incompatible or either
//     operand is null
//
// This is the only comparison rule used for final row filtering, merge
// joins and range pushdown.
func Evaluate(op CompareOp, left, right Value) bool {
	switch op {
	case OpEQ, OpNE:
		eq := SameClass(left, right) && compareSameClass(left, right) == 0
		if op == OpEQ {
			return eq
		}
		return !eq
	}
	l, r, ok := Resolve(left, right)
	if !ok {
		return false
	}
	return op.Holds(compareSameClass(l, r))
}
