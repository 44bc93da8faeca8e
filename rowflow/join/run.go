package join

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/annotations"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
	"github.com/wbrown/janus-rowflow/rowflow/pushdown"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// run is the state of one enumeration of a join
type run struct {
	node  *Node
	ec    *executor.Context
	plan  plan
	start time.Time

	// side sizes for diagnostics; -1 while unknown
	leftRows  int
	rightRows int

	held   []materialize.Collection
	failed bool
}

func newRun(n *Node, ec *executor.Context, p plan) *run {
	return &run{node: n, ec: ec, plan: p, leftRows: -1, rightRows: -1}
}

func (r *run) kind() Kind { return r.node.spec.Kind }

func (r *run) predicate() string {
	if r.node.spec.On == nil {
		return "true"
	}
	return r.node.spec.On.String()
}

// build runs on the first NextBatch and returns the combined rows before
// the residual filter
func (r *run) build(ctx context.Context) (enumerator.Enumerable[*rowflow.Row], error) {
	r.start = time.Now()
	r.ec.Annotate(annotations.JoinBegin, r.start, map[string]any{
		"join.kind": r.kind().String(),
		"predicate": r.predicate(),
	})
	r.ec.Logger().Debug("join: begin", "kind", r.kind().String(), "on", r.predicate(),
		"left", r.plan.left.String(), "right", r.plan.right.String())

	switch r.kind() {
	case Inner, Left:
		return r.merge(ctx)
	case Cross:
		return r.cross(ctx)
	case CrossApply, OuterApply:
		return r.apply(ctx)
	case Sequential, LeftSequential:
		return r.zip(), nil
	case Nearest:
		return r.nearest(ctx)
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidSpec, int(r.kind()))
}

// materialize fetches one side into a collection owned by this run
func (r *run) materialize(ctx context.Context, side string, rows enumerator.Enumerable[*rowflow.Row]) (materialize.Collection, error) {
	start := time.Now()
	c, err := r.ec.Policy().Materialize(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("%s join: fetch %s side: %w", r.kind(), side, err)
	}
	r.held = append(r.held, c)
	r.ec.Annotate(annotations.MaterializeComplete, start, map[string]any{
		"rows":   c.Count(),
		"policy": r.ec.Policy().Name(),
		"side":   side,
	})
	return c, nil
}

func (r *run) fetchLeft(ctx context.Context) (materialize.Collection, error) {
	left, err := r.materialize(ctx, "left", r.node.spec.Left.Rows(r.ec, r.plan.left))
	if err != nil {
		return nil, err
	}
	r.leftRows = left.Count()
	return left, nil
}

// narrowRight runs the pushdown analyzer over pred and returns the right
// descriptor to fetch with. empty reports that no right row can match.
func (r *run) narrowRight(ctx context.Context, pred query.Predicate, left materialize.Collection) (rq query.PushdownQuery, empty bool, err error) {
	analyzer := pushdown.Analyzer{Disabled: !r.ec.PushdownEnabled()}
	res, err := analyzer.Rewrite(ctx, r.ec, pred, left, r.node.leftAliases, r.node.rightAliases)
	if err != nil {
		return rq, false, fmt.Errorf("%s join: pushdown: %w", r.kind(), err)
	}
	if res.Empty {
		r.rightRows = 0
		return rq, true, nil
	}
	return r.plan.right.AndFilter(res.Filter), false, nil
}

func (r *run) fetchRight(ctx context.Context, rq query.PushdownQuery) (materialize.Collection, error) {
	right, err := r.materialize(ctx, "right", r.node.spec.Right.Rows(r.ec, rq))
	if err != nil {
		return nil, err
	}
	r.rightRows = right.Count()
	return right, nil
}

// pad pairs each row with an absent right side
func (r *run) pad(rows enumerator.Enumerable[*rowflow.Row]) enumerator.Enumerable[*rowflow.Row] {
	return enumerator.Select(rows, func(l *rowflow.Row) *rowflow.Row {
		return r.node.builder.Combine(l, nil)
	})
}

func (r *run) combine(l, rr *rowflow.Row) *rowflow.Row {
	return r.node.builder.Combine(l, rr)
}

// complete reports the row counts of a successful enumeration
func (r *run) complete(count int) {
	r.ec.Annotate(annotations.JoinComplete, r.start, map[string]any{
		"join.kind":   r.kind().String(),
		"predicate":   r.predicate(),
		"left.rows":   r.leftRows,
		"right.rows":  r.rightRows,
		"result.rows": count,
	})
	r.ec.Logger().Verbose("join complete",
		"kind", r.kind().String(),
		"left_rows", r.leftRows,
		"right_rows", r.rightRows,
		"rows", count,
		"elapsed", time.Since(r.start))
}

func (r *run) fail(err error) {
	if r.failed {
		return
	}
	r.failed = true
	r.ec.Annotate(annotations.JoinFailed, r.start, map[string]any{
		"join.kind": r.kind().String(),
		"error":     err.Error(),
	})
	r.ec.Logger().Debug("join failed", "kind", r.kind().String(), "error", err)
}

// release closes every collection materialized by this run
func (r *run) release() error {
	var errs []error
	for _, c := range r.held {
		errs = append(errs, c.Close())
	}
	r.held = nil
	return errors.Join(errs...)
}

// runEnum reports failures and releases the run's collections on Close
type runEnum struct {
	enumerator.Enumerator[*rowflow.Row]
	run *run
}

func (e *runEnum) NextBatch(ctx context.Context) (bool, error) {
	ok, err := e.Enumerator.NextBatch(ctx)
	if err != nil {
		e.run.fail(err)
	}
	return ok, err
}

func (e *runEnum) Close() error {
	err := e.Enumerator.Close()
	return errors.Join(err, e.run.release())
}
