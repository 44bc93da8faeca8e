package query

import (
	"fmt"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// Range restricts a key expression to [Min, Max] (either end optional).
// It is produced only while rewriting a join's filter and is never
// persisted.
//
// Elem is the kind class the bounds were computed in. A key value of an
// unrelated kind cannot be decided by the bounds alone, so Match lets it
// through and leaves the decision to the final join filter. A Null key
// never satisfies a comparison and is rejected.
type Range struct {
	Key          ValueExpr
	Elem         rowflow.Kind
	Min          rowflow.Value
	Max          rowflow.Value
	HasMin       bool
	HasMax       bool
	MinInclusive bool
	MaxInclusive bool
}

func (r Range) Match(row *rowflow.Row) bool {
	return r.Contains(r.Key.Eval(row))
}

// Contains tests a single key value against the bounds
func (r Range) Contains(v rowflow.Value) bool {
	if v.IsNull() {
		return false
	}
	if !r.decidable(v) {
		return true
	}
	if r.HasMin {
		op := rowflow.OpGT
		if r.MinInclusive {
			op = rowflow.OpGTE
		}
		if !rowflow.Evaluate(op, v, r.Min) {
			return false
		}
	}
	if r.HasMax {
		op := rowflow.OpLT
		if r.MaxInclusive {
			op = rowflow.OpLTE
		}
		if !rowflow.Evaluate(op, v, r.Max) {
			return false
		}
	}
	return true
}

// decidable reports whether v shares the bounds' kind class
func (r Range) decidable(v rowflow.Value) bool {
	if v.Kind() == r.Elem {
		return true
	}
	return v.Kind().Numeric() && r.Elem.Numeric()
}

// Point reports whether the range pins the key to a single value
func (r Range) Point() bool {
	return r.HasMin && r.HasMax && r.MinInclusive && r.MaxInclusive && rowflow.Compare(r.Min, r.Max) == 0
}

func (r Range) Fields() []string { return r.Key.Fields() }

func (r Range) String() string {
	lo, hi := "(-inf", "+inf)"
	if r.HasMin {
		lo = "(" + r.Min.String()
		if r.MinInclusive {
			lo = "[" + r.Min.String()
		}
	}
	if r.HasMax {
		hi = r.Max.String() + ")"
		if r.MaxInclusive {
			hi = r.Max.String() + "]"
		}
	}
	return fmt.Sprintf("%s in %s, %s %s", r.Key, lo, hi, r.Elem)
}

// RangesOn collects the Range conjuncts of p that constrain the given field
func RangesOn(p Predicate, field string) []Range {
	var out []Range
	for _, c := range Conjuncts(p) {
		if r, ok := c.(Range); ok {
			if f, ok := r.Key.(Field); ok && f.Name == field {
				out = append(out, r)
			}
		}
	}
	return out
}
