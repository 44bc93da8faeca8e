// Package pushdown narrows what the right side of a join must fetch. From
// the join predicate and the already materialized left rows it derives a
// value range per right-hand key and rewrites the right side's filter with
// them.
//
// The rewritten filter only ever widens: every right row that can join with
// some left row still satisfies it, so final join filtering is unaffected.
package pushdown

import (
	"context"
	"time"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/annotations"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// Analyzer rewrites join predicates into right-side filters
type Analyzer struct {
	// Disabled turns every rewrite into a pass-through true filter
	Disabled bool
}

// Result is the outcome of one rewrite
type Result struct {
	// Filter references right aliases only
	Filter query.Predicate

	// Empty means no right row can join, so the right side need not be
	// fetched at all
	Empty bool

	// Ranges lists the bounds that were derived
	Ranges []query.Range
}

// Rewrite derives the right side's filter for pred. leftAliases name the
// fields available in left; rightAliases those of the side being narrowed.
func (a Analyzer) Rewrite(ctx context.Context, ec *executor.Context, pred query.Predicate,
	left materialize.Collection, leftAliases, rightAliases []string) (Result, error) {
	start := time.Now()
	if left.Count() == 0 {
		ec.Annotate(annotations.PushdownEmptyLHS, start, map[string]any{"predicate": pred.String()})
		ec.Logger().Debug("pushdown: empty left side", "predicate", pred.String())
		return Result{Filter: query.False, Empty: true}, nil
	}
	if a.Disabled {
		ec.Annotate(annotations.PushdownSkipped, start, map[string]any{"predicate": pred.String()})
		return Result{Filter: query.True}, nil
	}

	an := &analysis{
		left:  query.AliasSet(leftAliases),
		right: query.AliasSet(rightAliases),
		stats: map[string]*keyStats{},
		tests: map[string]*leftTest{},
	}
	an.collect(pred)
	if err := an.scan(ctx, left); err != nil {
		return Result{}, err
	}

	filter := an.rewrite(pred)
	res := Result{Filter: filter, Empty: query.IsFalse(filter), Ranges: an.ranges}
	ec.Annotate(annotations.PushdownRewrite, start, map[string]any{
		"predicate": pred.String(),
		"filter":    filter.String(),
		"left.rows": left.Count(),
	})
	ec.Logger().Debug("pushdown: rewrote right filter",
		"predicate", pred.String(), "filter", filter.String(), "ranges", len(an.ranges))
	return res, nil
}

// keyStats tracks the spread of one left-side expression over the left rows
type keyStats struct {
	expr     query.ValueExpr
	min, max rowflow.Value
	seen     bool
	mixed    bool
	null     bool
}

func (s *keyStats) add(v rowflow.Value) {
	if v.IsNull() {
		s.null = true
		return
	}
	if !s.seen {
		s.min, s.max, s.seen = v, v, true
		return
	}
	if !rowflow.SameClass(s.min, v) {
		s.mixed = true
		return
	}
	if rowflow.Compare(v, s.min) < 0 {
		s.min = v
	}
	if rowflow.Compare(v, s.max) > 0 {
		s.max = v
	}
}

// leftTest records whether some left row satisfies a left-only condition
type leftTest struct {
	pred query.Predicate
	hit  bool
}

// analysis holds the state of one rewrite
type analysis struct {
	left, right map[string]bool
	stats       map[string]*keyStats
	tests       map[string]*leftTest
	ranges      []query.Range
}

// side classifies a set of field references
type side int

const (
	sideNone side = iota
	sideLeft
	sideRight
	sideMixed
)

func (an *analysis) sideOf(fields []string) side {
	s := sideNone
	for _, f := range fields {
		var this side
		alias := query.AliasOf(f)
		switch {
		case an.right[alias]:
			this = sideRight
		case an.left[alias]:
			this = sideLeft
		default:
			// neither side knows the field
			return sideMixed
		}
		if s == sideNone {
			s = this
		} else if s != this {
			return sideMixed
		}
	}
	return s
}

// bound is a comparison oriented as rightKey OP leftExpr
type bound struct {
	key  query.ValueExpr
	op   rowflow.CompareOp
	expr query.ValueExpr
}

func (an *analysis) orient(c query.Comparison) (bound, bool) {
	ls, rs := an.sideOf(c.Left.Fields()), an.sideOf(c.Right.Fields())
	switch {
	case ls == sideRight && rs == sideLeft:
		return bound{key: c.Left, op: c.Op, expr: c.Right}, true
	case ls == sideLeft && rs == sideRight:
		return bound{key: c.Right, op: c.Op.Flip(), expr: c.Left}, true
	}
	return bound{}, false
}

// collect registers every left expression and left-only condition the
// rewrite will need, so the left rows are scanned only once
func (an *analysis) collect(p query.Predicate) {
	switch v := p.(type) {
	case query.And:
		for _, t := range v.Terms {
			an.collect(t)
		}
		return
	case query.Or:
		for _, t := range v.Terms {
			an.collect(t)
		}
		return
	}
	switch an.sideOf(p.Fields()) {
	case sideLeft:
		an.tests[p.String()] = &leftTest{pred: p}
	case sideMixed:
		if c, ok := p.(query.Comparison); ok {
			if b, ok := an.orient(c); ok && b.op != rowflow.OpNE {
				an.stats[b.expr.String()] = &keyStats{expr: b.expr}
			}
		}
	}
}

func (an *analysis) scan(ctx context.Context, left materialize.Collection) error {
	if len(an.stats) == 0 && len(an.tests) == 0 {
		return nil
	}
	return enumerator.ForEach[*rowflow.Row](ctx, left, func(row *rowflow.Row) error {
		for _, s := range an.stats {
			s.add(s.expr.Eval(row))
		}
		for _, t := range an.tests {
			if !t.hit && t.pred.Match(row) {
				t.hit = true
			}
		}
		return nil
	})
}

// rewrite maps p to a right-only predicate implied by p for every left row
func (an *analysis) rewrite(p query.Predicate) query.Predicate {
	switch v := p.(type) {
	case query.And:
		terms := make([]query.Predicate, len(v.Terms))
		for i, t := range v.Terms {
			terms[i] = an.rewrite(t)
		}
		return query.AndOf(terms...)
	case query.Or:
		terms := make([]query.Predicate, len(v.Terms))
		for i, t := range v.Terms {
			terms[i] = an.rewrite(t)
		}
		return query.OrOf(terms...)
	}

	switch an.sideOf(p.Fields()) {
	case sideNone, sideRight:
		return p
	case sideLeft:
		return query.Bool(an.tests[p.String()].hit)
	}

	c, ok := p.(query.Comparison)
	if !ok {
		return query.True
	}
	b, ok := an.orient(c)
	if !ok || b.op == rowflow.OpNE {
		return query.True
	}
	s := an.stats[b.expr.String()]
	// a null left value orders against nothing but equals a null key
	nulls := query.Predicate(query.False)
	if b.op == rowflow.OpEQ && s.null {
		nulls = query.Comparison{Left: b.key, Op: rowflow.OpEQ, Right: query.Const{Value: rowflow.Null()}}
	}
	switch {
	case !s.seen:
		return nulls
	case s.mixed:
		return query.True
	}

	r := query.Range{Key: b.key, Elem: s.min.Kind()}
	switch b.op {
	case rowflow.OpEQ:
		r.Min, r.HasMin, r.MinInclusive = s.min, true, true
		r.Max, r.HasMax, r.MaxInclusive = s.max, true, true
	case rowflow.OpGT, rowflow.OpGTE:
		r.Min, r.HasMin, r.MinInclusive = s.min, true, b.op == rowflow.OpGTE
	case rowflow.OpLT, rowflow.OpLTE:
		r.Max, r.HasMax, r.MaxInclusive = s.max, true, b.op == rowflow.OpLTE
	}
	an.ranges = append(an.ranges, r)
	return query.OrOf(r, nulls)
}
