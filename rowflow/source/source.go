// Package source defines the row source interface shared by readers and
// join nodes, and an in-memory source.
package source

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

// Source produces rows for a query descriptor. Fields are qualified by the
// source's aliases. Rows never begins fetching; enumeration does.
type Source interface {
	// Aliases are the source aliases whose fields this source produces
	Aliases() []string

	// Rows returns the rows matching q. Implementations must honor the
	// filter; they may honor order, limit and projection themselves or
	// leave them to Finish.
	Rows(ec *executor.Context, q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row]
}

// Filter keeps the rows matching q's filter
func Filter(rows enumerator.Enumerable[*rowflow.Row], q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row] {
	p := q.Filter()
	if query.IsTrue(p) {
		return rows
	}
	return enumerator.Where(rows, p.Match)
}

// Observe emits a SourceScan annotation with the row count once an
// enumeration of rows completes. Timing starts when the enumeration does.
func Observe(ec *executor.Context, rows enumerator.Enumerable[*rowflow.Row], name, access string, q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row] {
	if ec.Collector() == nil {
		return rows
	}
	return enumerator.Func[*rowflow.Row](func() enumerator.Enumerator[*rowflow.Row] {
		start := time.Now()
		return enumerator.OnComplete(rows, func(n int) {
			ec.Annotate(annotations.SourceScan, start, map[string]any{
				"source": name,
				"access": access,
				"filter": q.Filter().String(),
				"rows":   n,
			})
		}).Enumerate()
	})
}

// Finish applies q's order, limit and projection to already filtered rows.
// Ordering materializes through the context's policy.
func Finish(ec *executor.Context, b *rowflow.RowBuilder, rows enumerator.Enumerable[*rowflow.Row], q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row] {
	if order := q.OrderBy(); len(order) > 0 {
		rows = Sorted(ec, rows, query.RowComparer(order))
	}
	if n, ok := q.Limit(); ok {
		rows = enumerator.Take(rows, n)
	}
	if len(q.Fields()) > 0 || len(q.Wildcards()) > 0 {
		rows = enumerator.Select(rows, func(r *rowflow.Row) *rowflow.Row { return q.Project(b, r) })
	}
	return rows
}

// Sorted materializes rows with the context's policy, sorts the collection
// and replays it. The collection is closed when the enumeration is.
func Sorted(ec *executor.Context, rows enumerator.Enumerable[*rowflow.Row], cmp func(a, b *rowflow.Row) int) enumerator.Enumerable[*rowflow.Row] {
	return enumerator.Func[*rowflow.Row](func() enumerator.Enumerator[*rowflow.Row] {
		var coll materialize.Collection
		inner := enumerator.Defer(func(ctx context.Context) (enumerator.Enumerable[*rowflow.Row], error) {
			c, err := ec.Policy().Materialize(ctx, rows)
			if err != nil {
				return nil, err
			}
			coll = c
			if err := c.Sort(cmp); err != nil {
				return nil, err
			}
			return c, nil
		}).Enumerate()
		return &closing[*rowflow.Row]{Enumerator: inner, release: func() error {
			if coll == nil {
				return nil
			}
			return coll.Close()
		}}
	})
}

// closing runs release after closing the wrapped enumerator
type closing[T any] struct {
	enumerator.Enumerator[T]
	release func() error
}

func (c *closing[T]) Close() error {
	err := c.Enumerator.Close()
	if rerr := c.release(); err == nil {
		err = rerr
	}
	return err
}
