package materialize

import (
	"context"
	"fmt"
	"slices"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
)

// MemoryPolicy drains sources into a slice. It is the default policy.
type MemoryPolicy struct{}

func (MemoryPolicy) Name() string { return "memory" }

func (MemoryPolicy) Materialize(ctx context.Context, src enumerator.Enumerable[*rowflow.Row]) (Collection, error) {
	// rows of an already materialized collection are reused, but the slice
	// is copied so that Sort cannot reorder the original
	if mc, ok := src.(*MemoryCollection); ok {
		return NewMemoryCollection(slices.Clone(mc.rows)), nil
	}
	rows, err := enumerator.ToSlice(ctx, src)
	if err != nil {
		return nil, err
	}
	return NewMemoryCollection(rows), nil
}

// MemoryCollection is a slice-backed collection
type MemoryCollection struct {
	rows []*rowflow.Row
}

// NewMemoryCollection wraps rows without copying them
func NewMemoryCollection(rows []*rowflow.Row) *MemoryCollection {
	return &MemoryCollection{rows: rows}
}

func (c *MemoryCollection) Count() int { return len(c.rows) }

func (c *MemoryCollection) At(i int) (*rowflow.Row, error) {
	if i < 0 || i >= len(c.rows) {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, len(c.rows))
	}
	return c.rows[i], nil
}

func (c *MemoryCollection) Enumerate() enumerator.Enumerator[*rowflow.Row] {
	return enumerator.FromSlice(c.rows).Enumerate()
}

func (c *MemoryCollection) Rows() []*rowflow.Row { return c.rows }

func (c *MemoryCollection) Sort(cmp func(a, b *rowflow.Row) int) error {
	slices.SortStableFunc(c.rows, cmp)
	return nil
}

func (c *MemoryCollection) Close() error { return nil }

// EnumerateFrom starts at offset; offsets past the end yield nothing
func (c *MemoryCollection) EnumerateFrom(offset int) enumerator.Enumerable[*rowflow.Row] {
	offset = min(max(offset, 0), len(c.rows))
	return enumerator.FromSlice(c.rows[offset:])
}
