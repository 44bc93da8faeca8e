package enumerator

import (
	"context"
	"slices"
)

// The operators in this file remember every key they have seen for the
// lifetime of an enumeration: memory grows with the number of distinct keys.

// Distinct drops repeated elements, keeping first occurrences in order
func Distinct[T comparable](src Enumerable[T]) Enumerable[T] {
	return DistinctBy(src, func(v T) T { return v })
}

// DistinctBy drops elements whose key was already produced
func DistinctBy[T any, K comparable](src Enumerable[T], key func(T) K) Enumerable[T] {
	return distinct(src, func() func(T) bool {
		seen := make(map[K]struct{})
		return func(v T) bool {
			k := key(v)
			if _, ok := seen[k]; ok {
				return false
			}
			seen[k] = struct{}{}
			return true
		}
	})
}

// DistinctFunc drops elements equal under c to one already produced
func DistinctFunc[T any](src Enumerable[T], c Comparer[T]) Enumerable[T] {
	return distinct(src, func() func(T) bool {
		var seen []T
		return func(v T) bool {
			i, found := slices.BinarySearchFunc(seen, v, c)
			if found {
				return false
			}
			seen = slices.Insert(seen, i, v)
			return true
		}
	})
}

// distinct filters with a first-occurrence test built fresh per enumeration
func distinct[T any](src Enumerable[T], newSeen func() func(T) bool) Enumerable[T] {
	return Func[T](func() Enumerator[T] {
		return &whereEnum[T]{passthrough: passthrough[T]{src.Enumerate()}, pred: newSeen()}
	})
}

// Union concatenates the sequences and drops repeated elements
func Union[T comparable](srcs ...Enumerable[T]) Enumerable[T] {
	return Distinct(Concat(srcs...))
}

// UnionBy concatenates the sequences and drops elements whose key was
// already produced
func UnionBy[T any, K comparable](key func(T) K, srcs ...Enumerable[T]) Enumerable[T] {
	return DistinctBy(Concat(srcs...), key)
}

// Group is one key with its elements in source order
type Group[K, T any] struct {
	Key   K
	Items []T
}

// GroupBy collects elements by key. Groups come out in order of first
// appearance. The whole source is drained when the first batch is requested.
func GroupBy[T any, K comparable](src Enumerable[T], key func(T) K) Enumerable[Group[K, T]] {
	return Defer(func(ctx context.Context) (Enumerable[Group[K, T]], error) {
		var groups []Group[K, T]
		index := make(map[K]int)
		err := ForEach(ctx, src, func(v T) error {
			k := key(v)
			i, ok := index[k]
			if !ok {
				i = len(groups)
				index[k] = i
				groups = append(groups, Group[K, T]{Key: k})
			}
			groups[i].Items = append(groups[i].Items, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return FromSlice(groups), nil
	})
}

// GroupByFunc is GroupBy with keys compared by c instead of ==
func GroupByFunc[T, K any](src Enumerable[T], key func(T) K, c Comparer[K]) Enumerable[Group[K, T]] {
	return Defer(func(ctx context.Context) (Enumerable[Group[K, T]], error) {
		var groups []Group[K, T]
		var index []groupSlot[K]
		byKey := func(s groupSlot[K], k K) int { return c(s.key, k) }
		err := ForEach(ctx, src, func(v T) error {
			k := key(v)
			i, found := slices.BinarySearchFunc(index, k, byKey)
			if !found {
				index = slices.Insert(index, i, groupSlot[K]{key: k, group: len(groups)})
				groups = append(groups, Group[K, T]{Key: k})
			}
			g := index[i].group
			groups[g].Items = append(groups[g].Items, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return FromSlice(groups), nil
	})
}

// groupSlot maps a key to its position in the group list
type groupSlot[K any] struct {
	key   K
	group int
}
