// Package materialize turns lazy row sequences into counted, randomly
// indexable, re-enumerable collections.
package materialize

import (
	"context"
	"errors"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
)

// ErrClosed is returned when a closed collection is used
var ErrClosed = errors.New("collection is closed")

// Collection is a fully materialized row sequence. Enumerating it from
// several goroutines at once is safe; Sort must not run concurrently with
// anything else.
type Collection interface {
	// Enumerate walks the rows in current order, so a collection can be
	// used anywhere a row sequence is expected
	enumerator.Enumerable[*rowflow.Row]

	// Count is exact and needs no further iteration
	Count() int

	// At returns the i-th row in current order
	At(i int) (*rowflow.Row, error)

	// EnumerateFrom starts at an arbitrary offset
	EnumerateFrom(offset int) enumerator.Enumerable[*rowflow.Row]

	// Sort reorders the collection in place with a stable sort
	Sort(cmp func(a, b *rowflow.Row) int) error

	// Close releases backing storage
	Close() error
}

// Policy materializes sequences. Materializing the same data twice yields
// collections with the same count, the same rows and the same order.
type Policy interface {
	Name() string
	Materialize(ctx context.Context, src enumerator.Enumerable[*rowflow.Row]) (Collection, error)
}

// Rows reads a whole collection into a slice
func Rows(ctx context.Context, c Collection) ([]*rowflow.Row, error) {
	return enumerator.ToSlice[*rowflow.Row](ctx, c)
}
