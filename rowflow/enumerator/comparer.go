package enumerator

import (
	"cmp"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// Comparer is a three-way comparison: negative, zero or positive
type Comparer[T any] func(a, b T) int

// Natural orders any ordered Go type
func Natural[T cmp.Ordered]() Comparer[T] { return cmp.Compare[T] }

// ValueComparer orders values by the engine's total value order
func ValueComparer() Comparer[rowflow.Value] { return rowflow.Compare }

// Reverse inverts a comparer
func Reverse[T any](c Comparer[T]) Comparer[T] {
	return func(a, b T) int { return c(b, a) }
}

// Then uses the next comparer to break ties of the previous ones
func Then[T any](cmps ...Comparer[T]) Comparer[T] {
	return func(a, b T) int {
		for _, c := range cmps {
			if r := c(a, b); r != 0 {
				return r
			}
		}
		return 0
	}
}

// By orders elements by a key under the key comparer
func By[T, K any](key func(T) K, c Comparer[K]) Comparer[T] {
	return func(a, b T) int { return c(key(a), key(b)) }
}
