package enumerator

import (
	"context"
	"errors"
)

// errStop ends a ForEach early without reporting an error
var errStop = errors.New("stop")

// ForEach drives a fresh enumeration of src through the canonical loop,
// calling fn for every element. An error from fn or from a batch fetch
// aborts the loop and is returned. The enumerator is always closed; a close
// error is reported when nothing else failed.
func ForEach[T any](ctx context.Context, src Enumerable[T], fn func(T) error) (err error) {
	e := src.Enumerate()
	defer func() {
		if cerr := e.Close(); err == nil {
			err = cerr
		}
	}()
	return drain(ctx, e, fn)
}

// drain runs the canonical loop over an already started enumerator
func drain[T any](ctx context.Context, e Enumerator[T], fn func(T) error) error {
	for {
		for e.MoveNext() {
			if err := fn(e.Current()); err != nil {
				return err
			}
		}
		if e.IsSynchronous() {
			return nil
		}
		ok, err := e.NextBatch(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// ToSlice collects every element in order
func ToSlice[T any](ctx context.Context, src Enumerable[T]) ([]T, error) {
	var out []T
	err := ForEach(ctx, src, func(v T) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count counts the elements of a sequence
func Count[T any](ctx context.Context, src Enumerable[T]) (int, error) {
	n := 0
	err := ForEach(ctx, src, func(T) error {
		n++
		return nil
	})
	return n, err
}

// Any reports whether some element satisfies pred. It stops at the first
// match.
func Any[T any](ctx context.Context, src Enumerable[T], pred func(T) bool) (bool, error) {
	found := false
	err := ForEach(ctx, src, func(v T) error {
		if pred(v) {
			found = true
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, err
	}
	return found, nil
}

// First returns the first element or ErrNoElements
func First[T any](ctx context.Context, src Enumerable[T]) (T, error) {
	var first T
	found := false
	err := ForEach(ctx, src, func(v T) error {
		first, found = v, true
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		var zero T
		return zero, err
	}
	if !found {
		return first, ErrNoElements
	}
	return first, nil
}

// FirstOrDefault returns the first element, or def for an empty sequence
func FirstOrDefault[T any](ctx context.Context, src Enumerable[T], def T) (T, error) {
	v, err := First(ctx, src)
	if errors.Is(err, ErrNoElements) {
		return def, nil
	}
	return v, err
}

// Last returns the last element or ErrNoElements
func Last[T any](ctx context.Context, src Enumerable[T]) (T, error) {
	var last T
	found := false
	err := ForEach(ctx, src, func(v T) error {
		last, found = v, true
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if !found {
		return last, ErrNoElements
	}
	return last, nil
}

// LastOrDefault returns the last element, or def for an empty sequence
func LastOrDefault[T any](ctx context.Context, src Enumerable[T], def T) (T, error) {
	v, err := Last(ctx, src)
	if errors.Is(err, ErrNoElements) {
		return def, nil
	}
	return v, err
}
