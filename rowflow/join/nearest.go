package join

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// nearestKeys extracts the key pair of a nearest join, written as a single
// equality between a left and a right expression
func (n *Node) nearestKeys() (mergeKey, error) {
	conj := query.Conjuncts(n.spec.On)
	if len(conj) != 1 {
		return mergeKey{}, fmt.Errorf("%w: nearest join needs a single key comparison", ErrInvalidSpec)
	}
	k, ok := n.orient(conj[0])
	if !ok || k.op != rowflow.OpEQ {
		return mergeKey{}, fmt.Errorf("%w: nearest join key must be left = right, got %s", ErrInvalidSpec, conj[0])
	}
	return k, nil
}

// nearest pairs every left row with the right rows holding the nearest key.
// Several right rows sharing that key all match. Left rows without a
// candidate keep an absent right side.
func (r *run) nearest(ctx context.Context) (enumerator.Enumerable[*rowflow.Row], error) {
	k, err := r.node.nearestKeys()
	if err != nil {
		return nil, err
	}
	left, err := r.fetchLeft(ctx)
	if err != nil {
		return nil, err
	}

	rq := r.plan.right
	if r.node.spec.Nearest == NearestBackward {
		// right keys above every left key can never be chosen
		var empty bool
		bound := query.Comparison{Op: rowflow.OpGTE, Left: k.left, Right: k.right}
		rq, empty, err = r.narrowRight(ctx, bound, left)
		if err != nil {
			return nil, err
		}
		if empty {
			return r.pad(left), nil
		}
	}
	right, err := r.fetchRight(ctx, rq)
	if err != nil {
		return nil, err
	}
	if err := right.Sort(keyOrder(k.right, false)); err != nil {
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
	if err := checkNearestKeys(lkeys, rkeys); err != nil {
		return nil, err
	}

	lo := 0
	for lo < len(rkeys) && rkeys[lo].IsNull() {
		lo++
	}
	m := nearestMatcher{keys: rkeys[lo:], offset: lo, mode: r.node.spec.Nearest}

	return enumerator.Func[*rowflow.Row](func() enumerator.Enumerator[*rowflow.Row] {
		i := -1
		return enumerator.SelectMany[*rowflow.Row, *rowflow.Row](left, func(l *rowflow.Row) enumerator.Enumerable[*rowflow.Row] {
			i++
			s, ok := m.match(lkeys[i])
			if !ok {
				return enumerator.Of(r.combine(l, nil))
			}
			return enumerator.Select(enumerator.Take(right.EnumerateFrom(s.start), s.count), func(rr *rowflow.Row) *rowflow.Row {
				return r.combine(l, rr)
			})
		}).Enumerate()
	}), nil
}

// checkNearestKeys requires every non-null key to be numeric, or every one
// to be a time
func checkNearestKeys(sets ...[]rowflow.Value) error {
	var first rowflow.Value
	for _, set := range sets {
		for _, v := range set {
			switch {
			case v.IsNull():
				continue
			case !v.Kind().Numeric() && v.Kind() != rowflow.KindTime:
				return fmt.Errorf("%w: got %s key %s", ErrNearestUnsupportedKey, v.Kind(), v)
			case first.IsNull():
				first = v
			case !rowflow.SameClass(first, v):
				return fmt.Errorf("%w: mixed %s and %s keys", ErrNearestUnsupportedKey, first.Kind(), v.Kind())
			}
		}
	}
	return nil
}

// nearestMatcher searches ascending non-null right keys
type nearestMatcher struct {
	keys   []rowflow.Value
	offset int
	mode   NearestMode
}

// match returns the span of right rows holding the key nearest to lk
func (m nearestMatcher) match(lk rowflow.Value) (span, bool) {
	if lk.IsNull() || len(m.keys) == 0 {
		return span{}, false
	}
	// first key above lk
	above := sort.Search(len(m.keys), func(i int) bool { return rowflow.Compare(m.keys[i], lk) > 0 })
	below := above - 1

	pick := below
	if m.mode == NearestAbsolute {
		switch {
		case below < 0:
			pick = above
		case above < len(m.keys) && closer(lk, m.keys[above], m.keys[below]):
			pick = above
		}
	}
	if pick < 0 || pick >= len(m.keys) {
		return span{}, false
	}

	v := m.keys[pick]
	start := sort.Search(len(m.keys), func(i int) bool { return rowflow.Compare(m.keys[i], v) >= 0 })
	end := sort.Search(len(m.keys), func(i int) bool { return rowflow.Compare(m.keys[i], v) > 0 })
	return span{start: m.offset + start, count: end - start}, true
}

// closer reports whether a is strictly nearer to k than b
func closer(k, a, b rowflow.Value) bool {
	if kt, ok := k.AsTime(); ok {
		at, _ := a.AsTime()
		bt, _ := b.AsTime()
		return absDuration(at.Sub(kt)) < absDuration(bt.Sub(kt))
	}
	kf, _ := k.Number()
	af, _ := a.Number()
	bf, _ := b.Number()
	return math.Abs(af-kf) < math.Abs(bf-kf)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
