package join

import (
	"context"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// apply runs correlated cross and outer apply. With a factory each left row
// gets its own right source; otherwise one materialized right side is fanned
// across every left row. Outer apply keeps left rows without right rows,
// paired with an absent right side.
func (r *run) apply(ctx context.Context) (enumerator.Enumerable[*rowflow.Row], error) {
	left, err := r.fetchLeft(ctx)
	if err != nil {
		return nil, err
	}
	if r.node.spec.Factory != nil {
		return r.correlated(ctx, left)
	}

	rq := r.plan.right
	if r.kind() == CrossApply {
		var empty bool
		rq, empty, err = r.narrowRight(ctx, query.AndOf(r.on(), r.plan.correlated), left)
		if err != nil {
			return nil, err
		}
		if empty {
			return enumerator.Empty[*rowflow.Row](), nil
		}
	}
	right, err := r.fetchRight(ctx, rq)
	if err != nil {
		return nil, err
	}
	return enumerator.SelectMany[*rowflow.Row, *rowflow.Row](left, func(l *rowflow.Row) enumerator.Enumerable[*rowflow.Row] {
		return r.applyRow(l, right)
	}), nil
}

func (r *run) on() query.Predicate {
	if r.node.spec.On == nil {
		return query.True
	}
	return r.node.spec.On
}

// applyRow pairs one left row with its right rows
func (r *run) applyRow(l *rowflow.Row, right enumerator.Enumerable[*rowflow.Row]) enumerator.Enumerable[*rowflow.Row] {
	rows := enumerator.Select(right, func(rr *rowflow.Row) *rowflow.Row { return r.combine(l, rr) })
	if on := r.on(); !query.IsTrue(on) {
		rows = enumerator.Where(rows, on.Match)
	}
	if r.kind() == OuterApply {
		rows = enumerator.DefaultIfEmpty(rows, r.combine(l, nil))
	}
	return rows
}

func (r *run) parallelism() int {
	if p := r.node.spec.Parallelism; p > 0 {
		return p
	}
	return r.ec.ApplyParallelism()
}

// correlated builds and fetches one right source per left row. With
// parallelism above one the right sides are prefetched concurrently, still
// emitted in left order.
func (r *run) correlated(ctx context.Context, left materialize.Collection) (enumerator.Enumerable[*rowflow.Row], error) {
	factory := r.node.spec.Factory
	rq := r.plan.right
	r.rightRows = 0

	if workers := r.parallelism(); workers > 1 {
		lefts, err := materialize.Rows(ctx, left)
		if err != nil {
			return nil, err
		}
		rights, err := executor.ParallelMap(ctx, workers, lefts, func(ctx context.Context, l *rowflow.Row) ([]*rowflow.Row, error) {
			return enumerator.ToSlice(ctx, factory(l).Rows(r.ec, rq))
		})
		if err != nil {
			return nil, err
		}
		for _, rs := range rights {
			r.rightRows += len(rs)
		}
		r.ec.Logger().Debug("join: prefetched correlated right sides", "left_rows", len(lefts), "workers", workers)

		idx := make([]int, len(lefts))
		for i := range idx {
			idx[i] = i
		}
		return enumerator.SelectMany(enumerator.FromSlice(idx), func(i int) enumerator.Enumerable[*rowflow.Row] {
			return r.applyRow(lefts[i], enumerator.FromSlice(rights[i]))
		}), nil
	}

	return enumerator.SelectMany[*rowflow.Row, *rowflow.Row](left, func(l *rowflow.Row) enumerator.Enumerable[*rowflow.Row] {
		right := enumerator.Select(factory(l).Rows(r.ec, rq), func(rr *rowflow.Row) *rowflow.Row {
			r.rightRows++
			return rr
		})
		return r.applyRow(l, right)
	}), nil
}
