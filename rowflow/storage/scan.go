package storage

import (
	"bytes"
	"slices"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/codec"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// span is a half-open interval [lo, hi) of encoded index values
type span struct {
	lo, hi []byte
}

// scanPlan is how a table is read for one filter: either the whole primary
// keyspace or a set of disjoint spans over one column index
type scanPlan struct {
	column string // empty for a full scan
	spans  []span
	rank   int
}

func (p scanPlan) access() string {
	if p.column == "" {
		return "scan"
	}
	return "index:" + p.column
}

// Candidate ranks; higher is preferred
const (
	rankOpen    = 1 // one bound
	rankBounded = 2 // both bounds
	rankPoint   = 3 // equality
)

// planScan picks the most selective indexable conjunct of filter. Spans
// only ever widen what the conjunct accepts: the source still applies the
// whole filter to every row read.
func planScan(filter query.Predicate, alias string, indexed []string) scanPlan {
	best := scanPlan{}
	for _, col := range indexed {
		p, ok := planField(filter, alias+"."+col)
		if ok && p.rank > best.rank {
			p.column = col
			best = p
		}
	}
	return best
}

// planField picks the best conjunct of filter indexable on field
func planField(filter query.Predicate, field string) (scanPlan, bool) {
	best, found := scanPlan{}, false
	for _, c := range query.Conjuncts(filter) {
		p, ok := planConjunct(c, field)
		if ok && p.rank > best.rank {
			best, found = p, true
		}
	}
	return best, found
}

func planConjunct(c query.Predicate, field string) (scanPlan, bool) {
	switch c := c.(type) {
	case query.Or:
		// every branch must be indexable on the same column
		var spans []span
		rank := rankPoint
		for _, d := range c.Terms {
			p, ok := planField(d, field)
			if !ok {
				return scanPlan{}, false
			}
			spans = append(spans, p.spans...)
			rank = min(rank, p.rank)
		}
		return scanPlan{spans: unionSpans(spans), rank: rank}, true

	case query.Range:
		if f, ok := c.Key.(query.Field); !ok || f.Name != field {
			return scanPlan{}, false
		}
		if !c.HasMin && !c.HasMax {
			return scanPlan{}, false
		}
		var lo, hi []byte
		if c.HasMin {
			lo = codec.AppendKey(nil, c.Min)
		}
		if c.HasMax {
			hi = codec.AppendKey(nil, c.Max)
		}
		return classSpans(c.Elem, lo, hi), true

	case query.Comparison:
		v, op, ok := fieldAgainstConst(c, field)
		if !ok {
			return scanPlan{}, false
		}
		if v.IsNull() {
			// only = null selects anything: the null keys
			if op != rowflow.OpEQ {
				return scanPlan{}, false
			}
			nulls := span{lo: codec.KindStart(rowflow.KindNull), hi: codec.KindEnd(rowflow.KindNull)}
			return scanPlan{spans: []span{nulls}, rank: rankPoint}, true
		}
		key := codec.AppendKey(nil, v)
		switch op {
		case rowflow.OpEQ:
			return scanPlan{spans: []span{{lo: key, hi: codec.PrefixEnd(key)}}, rank: rankPoint}, true
		case rowflow.OpGT, rowflow.OpGTE:
			return classSpans(v.Kind(), key, nil), true
		case rowflow.OpLT, rowflow.OpLTE:
			return classSpans(v.Kind(), nil, key), true
		}
	}
	return scanPlan{}, false
}

// fieldAgainstConst orients field OP const, flipping const OP field
func fieldAgainstConst(c query.Comparison, field string) (rowflow.Value, rowflow.CompareOp, bool) {
	if f, ok := c.Left.(query.Field); ok && f.Name == field {
		if k, ok := c.Right.(query.Const); ok {
			return k.Value, c.Op, true
		}
	}
	if f, ok := c.Right.(query.Field); ok && f.Name == field {
		if k, ok := c.Left.(query.Const); ok {
			return k.Value, c.Op.Flip(), true
		}
	}
	return rowflow.Value{}, "", false
}

// classSpans covers the values of elem's class between lo and hi (both
// inclusive, nil for unbounded) plus every other non-null class, since
// ordering comparisons coerce strings and ranges pass values of other
// kinds through. Null keys never satisfy a bound and are skipped.
func classSpans(elem rowflow.Kind, lo, hi []byte) scanPlan {
	first, last := codec.KindStart(rowflow.KindBool), codec.KindEnd(rowflow.KindBytes)
	start, end := codec.KindStart(elem), codec.KindEnd(elem)

	rank := rankOpen
	if lo != nil && hi != nil {
		rank = rankBounded
	}
	if lo == nil {
		lo = start
	}
	if hi == nil {
		hi = end
	} else {
		hi = codec.PrefixEnd(hi)
	}

	var spans []span
	add := func(lo, hi []byte) {
		if bytes.Compare(lo, hi) < 0 {
			spans = append(spans, span{lo: lo, hi: hi})
		}
	}
	add(first, start)
	add(lo, hi)
	add(end, last)
	return scanPlan{spans: spans, rank: rank}
}

// unionSpans sorts spans and merges those that overlap or touch, so no
// index entry is read twice
func unionSpans(spans []span) []span {
	slices.SortFunc(spans, func(a, b span) int { return bytes.Compare(a.lo, b.lo) })
	var out []span
	for _, s := range spans {
		if n := len(out); n > 0 && bytes.Compare(s.lo, out[n-1].hi) <= 0 {
			if bytes.Compare(s.hi, out[n-1].hi) > 0 {
				out[n-1].hi = s.hi
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
