package enumerator

import (
	"context"
	"slices"
)

// OrderBy sorts the sequence with a stable sort. Nothing is produced until
// the whole source has been drained and sorted; that happens when the first
// batch is requested, and replay starts on the following MoveNext.
func OrderBy[T any](src Enumerable[T], c Comparer[T]) Enumerable[T] {
	return Defer(func(ctx context.Context) (Enumerable[T], error) {
		items, err := ToSlice(ctx, src)
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(items, c)
		return FromSlice(items), nil
	})
}

// OrderByDescending sorts in reverse order, keeping ties in source order
func OrderByDescending[T any](src Enumerable[T], c Comparer[T]) Enumerable[T] {
	return OrderBy(src, Reverse(c))
}
