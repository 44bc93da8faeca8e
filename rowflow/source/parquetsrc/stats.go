package parquetsrc

import (
	"github.com/parquet-go/parquet-go"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// excludes reports whether a top-level conjunct of filter cannot hold for
// any row of rg, judged by column chunk bounds. Only constraints in the
// column's own kind class are used, since other kinds may coerce.
func (s *Source) excludes(rg parquet.RowGroup, filter query.Predicate) bool {
	chunks := rg.ColumnChunks()
	for _, c := range query.Conjuncts(filter) {
		if query.IsFalse(c) {
			return true
		}
		field, lo, hi, ok := s.constraint(c)
		if !ok {
			continue
		}
		i := s.index[field]
		col := s.columns[i]
		// byte array bounds may be truncated
		if i >= len(chunks) || col.kind == rowflow.KindString || col.kind == rowflow.KindBytes {
			continue
		}
		fc, ok := chunks[i].(*parquet.FileColumnChunk)
		if !ok {
			continue
		}
		minV, maxV, ok := fc.Bounds()
		if !ok {
			continue
		}
		if lo.set && !lo.admits(col.value(maxV), true) {
			return true
		}
		if hi.set && !hi.admits(col.value(minV), false) {
			return true
		}
	}
	return false
}

// bound is one end of an interval constraint
type bound struct {
	set       bool
	v         rowflow.Value
	inclusive bool
}

// admits reports whether x can satisfy the bound: x at or above a lower
// bound, or at or below an upper one
func (b bound) admits(x rowflow.Value, lower bool) bool {
	if x.IsNull() || !rowflow.SameClass(x, b.v) {
		return true
	}
	c := rowflow.Compare(x, b.v)
	if c == 0 {
		return b.inclusive
	}
	if lower {
		return c > 0
	}
	return c < 0
}

// constraint extracts an interval on one of this source's columns from a
// range or a field/constant comparison in the column's kind class
func (s *Source) constraint(p query.Predicate) (string, bound, bound, bool) {
	var lo, hi bound
	switch p := p.(type) {
	case query.Range:
		f, ok := p.Key.(query.Field)
		if !ok || !s.sameClass(f.Name, p.Elem) {
			return "", lo, hi, false
		}
		if p.HasMin {
			lo = bound{set: true, v: p.Min, inclusive: p.MinInclusive}
		}
		if p.HasMax {
			hi = bound{set: true, v: p.Max, inclusive: p.MaxInclusive}
		}
		return f.Name, lo, hi, lo.set || hi.set

	case query.Comparison:
		f, ok := p.Left.(query.Field)
		k, kok := p.Right.(query.Const)
		op := p.Op
		if !ok || !kok {
			f, ok = p.Right.(query.Field)
			k, kok = p.Left.(query.Const)
			op = op.Flip()
		}
		if !ok || !kok || k.Value.IsNull() || !s.sameClass(f.Name, k.Value.Kind()) {
			return "", lo, hi, false
		}
		switch op {
		case rowflow.OpEQ:
			lo = bound{set: true, v: k.Value, inclusive: true}
			hi = lo
		case rowflow.OpGT, rowflow.OpGTE:
			lo = bound{set: true, v: k.Value, inclusive: op == rowflow.OpGTE}
		case rowflow.OpLT, rowflow.OpLTE:
			hi = bound{set: true, v: k.Value, inclusive: op == rowflow.OpLTE}
		default:
			return "", lo, hi, false
		}
		return f.Name, lo, hi, true
	}
	return "", lo, hi, false
}

func (s *Source) sameClass(field string, k rowflow.Kind) bool {
	i, ok := s.index[field]
	if !ok {
		return false
	}
	ck := s.columns[i].kind
	return ck == k || (ck.Numeric() && k.Numeric())
}
