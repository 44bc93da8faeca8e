package join

import (
	"context"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
)

// cross produces the full pairwise product. Result-filter comparisons that
// span both sides still narrow the right fetch.
func (r *run) cross(ctx context.Context) (enumerator.Enumerable[*rowflow.Row], error) {
	left, err := r.fetchLeft(ctx)
	if err != nil {
		return nil, err
	}
	rq, empty, err := r.narrowRight(ctx, r.plan.correlated, left)
	if err != nil {
		return nil, err
	}
	if empty {
		return enumerator.Empty[*rowflow.Row](), nil
	}
	right, err := r.fetchRight(ctx, rq)
	if err != nil {
		return nil, err
	}
	return r.product(left, right), nil
}

func (r *run) product(left, right materialize.Collection) enumerator.Enumerable[*rowflow.Row] {
	return enumerator.SelectMany[*rowflow.Row, *rowflow.Row](left, func(l *rowflow.Row) enumerator.Enumerable[*rowflow.Row] {
		return enumerator.Select[*rowflow.Row, *rowflow.Row](right, func(rr *rowflow.Row) *rowflow.Row {
			return r.combine(l, rr)
		})
	})
}
