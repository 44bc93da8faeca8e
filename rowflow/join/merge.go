package join

import (
	"context"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// mergeKey is one branch's merge condition oriented as leftExpr OP rightExpr
type mergeKey struct {
	left  query.ValueExpr
	op    rowflow.CompareOp
	right query.ValueExpr
}

// descending reports the sort direction both sides need for the operator
func (k mergeKey) descending() bool {
	return k.op == rowflow.OpGT || k.op == rowflow.OpGTE
}

// branch is one OR-branch of the join condition
type branch struct {
	pred     query.Predicate
	key      *mergeKey
	residual query.Predicate
}

// branches splits the condition into OR-branches and picks a merge key in
// each: an equality if there is one, else any ordering comparison between
// the two sides. A branch without one runs as a nested loop.
func (n *Node) branches(on query.Predicate) []branch {
	var out []branch
	for _, d := range query.Disjuncts(on) {
		b := branch{pred: d, residual: d}
		conj := query.Conjuncts(d)
		pick := -1
		for i, c := range conj {
			k, ok := n.orient(c)
			if !ok || k.op == rowflow.OpNE {
				continue
			}
			if pick < 0 || (k.op == rowflow.OpEQ && b.key.op != rowflow.OpEQ) {
				pick, b.key = i, &k
			}
		}
		if pick >= 0 {
			rest := slices.Delete(slices.Clone(conj), pick, pick+1)
			b.residual = query.AndOf(rest...)
		}
		out = append(out, b)
	}
	return out
}

func (n *Node) orient(p query.Predicate) (mergeKey, bool) {
	c, ok := p.(query.Comparison)
	if !ok {
		return mergeKey{}, false
	}
	lf, rf := c.Left.Fields(), c.Right.Fields()
	if len(lf) == 0 || len(rf) == 0 {
		return mergeKey{}, false
	}
	switch {
	case onlyIn(lf, n.leftAliases) && onlyIn(rf, n.rightAliases):
		return mergeKey{left: c.Left, op: c.Op, right: c.Right}, true
	case onlyIn(lf, n.rightAliases) && onlyIn(rf, n.leftAliases):
		return mergeKey{left: c.Right, op: c.Op.Flip(), right: c.Left}, true
	}
	return mergeKey{}, false
}

func onlyIn(fields, aliases []string) bool {
	set := query.AliasSet(aliases)
	for _, f := range fields {
		if !set[query.AliasOf(f)] {
			return false
		}
	}
	return true
}

// merge runs inner and left joins. Each OR-branch is joined on its own and
// the branches are unioned by row id. Left joins then add every left row no
// branch matched, paired with an absent right side.
func (r *run) merge(ctx context.Context) (enumerator.Enumerable[*rowflow.Row], error) {
	left, err := r.fetchLeft(ctx)
	if err != nil {
		return nil, err
	}

	on := r.node.spec.On
	pushed := on
	if r.kind() == Inner {
		pushed = query.AndOf(on, r.plan.correlated)
	}
	rq, empty, err := r.narrowRight(ctx, pushed, left)
	if err != nil {
		return nil, err
	}
	if empty {
		if r.kind() == Left {
			return r.pad(left), nil
		}
		return enumerator.Empty[*rowflow.Row](), nil
	}
	right, err := r.fetchRight(ctx, rq)
	if err != nil {
		return nil, err
	}

	var matched *matchSet
	if r.kind() == Left {
		if matched, err = newMatchSet(ctx, left); err != nil {
			return nil, err
		}
	}

	branches := r.node.branches(on)
	parts := make([]enumerator.Enumerable[*rowflow.Row], len(branches))
	for i, b := range branches {
		parts[i] = r.branch(b, left, right, matched)
	}
	var rows enumerator.Enumerable[*rowflow.Row]
	if len(parts) == 1 {
		rows = parts[0]
	} else {
		rows = enumerator.UnionBy(func(row *rowflow.Row) rowflow.RowID { return row.ID() }, parts...)
	}
	if matched == nil {
		return rows, nil
	}
	unmatched := enumerator.Defer(func(context.Context) (enumerator.Enumerable[*rowflow.Row], error) {
		return r.pad(enumerator.Where[*rowflow.Row](left, func(l *rowflow.Row) bool {
			return !matched.contains(l)
		})), nil
	})
	return enumerator.Concat(rows, unmatched), nil
}

// branch joins one OR-branch. Setup is deferred so that branches sorting the
// shared collections run one after another.
func (r *run) branch(b branch, left, right materialize.Collection, matched *matchSet) enumerator.Enumerable[*rowflow.Row] {
	return enumerator.Defer(func(ctx context.Context) (enumerator.Enumerable[*rowflow.Row], error) {
		if b.key != nil {
			ok, err := mergeable(ctx, *b.key, left, right)
			if err != nil {
				return nil, err
			}
			if ok {
				return r.sortMerge(ctx, b, left, right, matched)
			}
			r.ec.Logger().Debug("join: mixed key kinds, using nested loop", "key", b.pred.String())
		}
		return r.nestedLoop(b.pred, left, right, matched), nil
	})
}

// mergeable reports whether every non-null key on both sides shares one
// kind class. Only then does the sort order agree with filter semantics.
func mergeable(ctx context.Context, k mergeKey, left, right materialize.Collection) (bool, error) {
	var first rowflow.Value
	ok := true
	check := func(expr query.ValueExpr) func(*rowflow.Row) error {
		return func(row *rowflow.Row) error {
			v := expr.Eval(row)
			switch {
			case v.IsNull():
			case first.IsNull():
				first = v
			case !rowflow.SameClass(first, v):
				ok = false
			}
			return nil
		}
	}
	if err := enumerator.ForEach[*rowflow.Row](ctx, left, check(k.left)); err != nil {
		return false, err
	}
	if err := enumerator.ForEach[*rowflow.Row](ctx, right, check(k.right)); err != nil {
		return false, err
	}
	return ok, nil
}

// span is the run of sorted right rows matching one left row
type span struct {
	start, count int
}

// sortMerge sorts both sides on the branch key and walks them with two
// cursors. Equality emits the m x n product of each run of equal keys;
// ordering operators emit the qualifying suffix of the right side.
func (r *run) sortMerge(ctx context.Context, b branch, left, right materialize.Collection, matched *matchSet) (enumerator.Enumerable[*rowflow.Row], error) {
	k := *b.key
	if err := left.Sort(keyOrder(k.left, k.descending())); err != nil {
		return nil, err
	}
	if err := right.Sort(keyOrder(k.right, k.descending())); err != nil {
		return nil, err
	}
	lkeys, err := keys(ctx, left, k.left)
	if err != nil {
		return nil, err
	}
	rkeys, err := keys(ctx, right, k.right)
	if err != nil {
		return nil, err
	}
	spans := mergeSpans(k.op, lkeys, rkeys)

	return enumerator.Func[*rowflow.Row](func() enumerator.Enumerator[*rowflow.Row] {
		i := -1
		return enumerator.SelectMany[*rowflow.Row, *rowflow.Row](left, func(l *rowflow.Row) enumerator.Enumerable[*rowflow.Row] {
			i++
			s := spans[i]
			if s.count == 0 {
				return enumerator.Empty[*rowflow.Row]()
			}
			rows := enumerator.Take(right.EnumerateFrom(s.start), s.count)
			return r.emit(l, rows, b.residual, matched)
		}).Enumerate()
	}), nil
}

// emit combines l with each candidate right row, keeps those passing the
// branch residual and records the match
func (r *run) emit(l *rowflow.Row, candidates enumerator.Enumerable[*rowflow.Row], residual query.Predicate, matched *matchSet) enumerator.Enumerable[*rowflow.Row] {
	rows := enumerator.Select(candidates, func(rr *rowflow.Row) *rowflow.Row { return r.combine(l, rr) })
	if !query.IsTrue(residual) {
		rows = enumerator.Where(rows, residual.Match)
	}
	if matched == nil {
		return rows
	}
	return enumerator.Select(rows, func(row *rowflow.Row) *rowflow.Row {
		matched.add(l)
		return row
	})
}

// nestedLoop tests every pair against the branch predicate
func (r *run) nestedLoop(pred query.Predicate, left, right materialize.Collection, matched *matchSet) enumerator.Enumerable[*rowflow.Row] {
	return enumerator.SelectMany[*rowflow.Row, *rowflow.Row](left, func(l *rowflow.Row) enumerator.Enumerable[*rowflow.Row] {
		return r.emit(l, right, pred, matched)
	})
}

func keyOrder(expr query.ValueExpr, descending bool) func(a, b *rowflow.Row) int {
	return func(a, b *rowflow.Row) int {
		c := rowflow.Compare(expr.Eval(a), expr.Eval(b))
		if descending {
			return -c
		}
		return c
	}
}

func keys(ctx context.Context, c materialize.Collection, expr query.ValueExpr) ([]rowflow.Value, error) {
	out := make([]rowflow.Value, 0, c.Count())
	err := enumerator.ForEach[*rowflow.Row](ctx, c, func(row *rowflow.Row) error {
		out = append(out, expr.Eval(row))
		return nil
	})
	return out, err
}

// mergeSpans computes, for each left key, the span of right keys satisfying
// left OP right. Both key lists are sorted ascending for = < <= and
// descending for > >=, nulls first when ascending and last when descending.
// A null key matches only the null right keys, and only under equality.
func mergeSpans(op rowflow.CompareOp, lkeys, rkeys []rowflow.Value) []span {
	spans := make([]span, len(lkeys))
	// right keys are non-null in [lo, hi)
	lo, hi := 0, len(rkeys)
	for lo < hi && rkeys[lo].IsNull() {
		lo++
	}
	for hi > lo && rkeys[hi-1].IsNull() {
		hi--
	}

	j := lo
	for i, lk := range lkeys {
		if lk.IsNull() {
			if op == rowflow.OpEQ {
				spans[i] = span{0, lo}
			}
			continue
		}
		switch op {
		case rowflow.OpEQ:
			for j < hi && rowflow.Compare(rkeys[j], lk) < 0 {
				j++
			}
			end := j
			for end < hi && rowflow.Compare(rkeys[end], lk) == 0 {
				end++
			}
			spans[i] = span{j, end - j}
		case rowflow.OpLT, rowflow.OpLTE, rowflow.OpGT, rowflow.OpGTE:
			// ascending for < <=, descending for > >=: skip right keys that
			// do not yet satisfy lk OP rk; every later one does
			for j < hi && !op.Holds(rowflow.Compare(lk, rkeys[j])) {
				j++
			}
			spans[i] = span{j, hi - j}
		}
	}
	return spans
}

// matchSet tracks which left rows matched, by position in the original
// left order
type matchSet struct {
	pos  map[rowflow.RowID]uint32
	bits *roaring.Bitmap
}

func newMatchSet(ctx context.Context, left materialize.Collection) (*matchSet, error) {
	m := &matchSet{pos: make(map[rowflow.RowID]uint32, left.Count()), bits: roaring.New()}
	var i uint32
	err := enumerator.ForEach[*rowflow.Row](ctx, left, func(row *rowflow.Row) error {
		m.pos[row.ID()] = i
		i++
		return nil
	})
	return m, err
}

func (m *matchSet) add(l *rowflow.Row) { m.bits.Add(m.pos[l.ID()]) }

func (m *matchSet) contains(l *rowflow.Row) bool { return m.bits.Contains(m.pos[l.ID()]) }
