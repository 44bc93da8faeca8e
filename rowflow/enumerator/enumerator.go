// Package enumerator implements the two-phase pull protocol every operator
// and join is built on, plus the lazy combinators composed over it.
//
// An Enumerator walks the currently loaded batch with MoveNext. When MoveNext
// returns false the batch is used up; the sequence is over only when
// IsSynchronous reports that no further batch can follow or NextBatch
// returns false. NextBatch is the only operation that may block. Every
// consumer drives an enumerator with the same loop:
//
//	for {
//		for e.MoveNext() {
//			use(e.Current())
//		}
//		if e.IsSynchronous() {
//			break
//		}
//		ok, err := e.NextBatch(ctx)
//		if err != nil || !ok {
//			break
//		}
//	}
//
// and releases it with Close on every exit path. ForEach and the other
// terminal helpers implement that loop.
package enumerator

import (
	"context"
	"errors"
)

// Enumerator is a single pass over a sequence, driven by one consumer
type Enumerator[T any] interface {
	// Current returns the element produced by the last successful MoveNext
	Current() T

	// MoveNext advances within the loaded batch. False means the batch is
	// used up, not necessarily the sequence.
	MoveNext() bool

	// IsSynchronous reports that no further batch can ever be needed
	IsSynchronous() bool

	// NextBatch loads the next batch. It is only called after MoveNext
	// returned false and IsSynchronous is false. False means the sequence
	// is exhausted.
	NextBatch(ctx context.Context) (bool, error)

	// Close releases any resource held by this enumeration
	Close() error
}

// Enumerable is a restartable sequence. Each Enumerate call starts an
// independent enumeration with fresh state; constructing an Enumerable
// never begins iteration.
type Enumerable[T any] interface {
	Enumerate() Enumerator[T]
}

// Func adapts a constructor function into an Enumerable
type Func[T any] func() Enumerator[T]

func (f Func[T]) Enumerate() Enumerator[T] { return f() }

// ErrNoElements is returned by First and Last style operators on an empty
// sequence
var ErrNoElements = errors.New("sequence contains no matching elements")

// sliceEnum walks a fully loaded slice; it never needs another batch
type sliceEnum[T any] struct {
	items []T
	pos   int
}

func (e *sliceEnum[T]) Current() T                              { return e.items[e.pos-1] }
func (e *sliceEnum[T]) IsSynchronous() bool                     { return true }
func (e *sliceEnum[T]) NextBatch(context.Context) (bool, error) { return false, nil }
func (e *sliceEnum[T]) Close() error                            { return nil }

func (e *sliceEnum[T]) MoveNext() bool {
	if e.pos >= len(e.items) {
		return false
	}
	e.pos++
	return true
}

// FromSlice enumerates items in order. The slice is not copied and must not
// be modified while enumerations are running.
func FromSlice[T any](items []T) Enumerable[T] {
	return Func[T](func() Enumerator[T] { return &sliceEnum[T]{items: items} })
}

// Of enumerates the given values
func Of[T any](items ...T) Enumerable[T] { return FromSlice(items) }

// Empty is a sequence with no elements
func Empty[T any]() Enumerable[T] { return FromSlice[T](nil) }

// Batcher produces the batches of one enumeration of a batched source
type Batcher[T any] interface {
	// Fetch loads the next batch. more reports whether another Fetch may
	// produce elements; an empty batch with more set is allowed.
	Fetch(ctx context.Context) (batch []T, more bool, err error)

	// Close releases the underlying resource
	Close() error
}

// BatchFunc adapts a fetch function with nothing to release into a Batcher
type BatchFunc[T any] func(ctx context.Context) ([]T, bool, error)

func (f BatchFunc[T]) Fetch(ctx context.Context) ([]T, bool, error) { return f(ctx) }
func (f BatchFunc[T]) Close() error                                 { return nil }

// FromBatches builds a batched sequence. open is called once per
// enumeration, before the first batch is requested.
func FromBatches[T any](open func() Batcher[T]) Enumerable[T] {
	return Func[T](func() Enumerator[T] { return &batchEnum[T]{open: open} })
}

type batchEnum[T any] struct {
	open      func() Batcher[T]
	batcher   Batcher[T]
	items     []T
	pos       int
	exhausted bool
}

func (e *batchEnum[T]) Current() T          { return e.items[e.pos-1] }
func (e *batchEnum[T]) IsSynchronous() bool { return e.exhausted }

func (e *batchEnum[T]) MoveNext() bool {
	if e.pos >= len(e.items) {
		return false
	}
	e.pos++
	return true
}

func (e *batchEnum[T]) NextBatch(ctx context.Context) (bool, error) {
	if e.exhausted {
		return false, nil
	}
	if e.batcher == nil {
		e.batcher = e.open()
	}
	batch, more, err := e.batcher.Fetch(ctx)
	if err != nil {
		return false, err
	}
	e.items, e.pos = batch, 0
	e.exhausted = !more
	if len(batch) == 0 && !more {
		return false, nil
	}
	return true, nil
}

func (e *batchEnum[T]) Close() error {
	e.items = nil
	if e.batcher == nil {
		return nil
	}
	b := e.batcher
	e.batcher = nil
	return b.Close()
}

// Defer postpones building a sequence until its first batch is requested,
// so setup work such as fetching and materializing a join's inputs happens
// inside NextBatch with the caller's context.
func Defer[T any](build func(ctx context.Context) (Enumerable[T], error)) Enumerable[T] {
	return Func[T](func() Enumerator[T] { return &deferEnum[T]{build: build} })
}

type deferEnum[T any] struct {
	build func(ctx context.Context) (Enumerable[T], error)
	inner Enumerator[T]
	built bool
}

func (e *deferEnum[T]) Current() T { return e.inner.Current() }

func (e *deferEnum[T]) MoveNext() bool {
	return e.inner != nil && e.inner.MoveNext()
}

func (e *deferEnum[T]) IsSynchronous() bool {
	if !e.built {
		return false
	}
	return e.inner == nil || e.inner.IsSynchronous()
}

func (e *deferEnum[T]) NextBatch(ctx context.Context) (bool, error) {
	if !e.built {
		e.built = true
		src, err := e.build(ctx)
		if err != nil {
			return false, err
		}
		if src == nil {
			return false, nil
		}
		e.inner = src.Enumerate()
		return true, nil
	}
	if e.inner == nil {
		return false, nil
	}
	return e.inner.NextBatch(ctx)
}

func (e *deferEnum[T]) Close() error {
	if e.inner == nil {
		return nil
	}
	return e.inner.Close()
}

// OnComplete reports the number of elements produced once the sequence has
// been fully and successfully consumed. Abandoned or failed enumerations
// never report.
func OnComplete[T any](src Enumerable[T], done func(count int)) Enumerable[T] {
	return Func[T](func() Enumerator[T] {
		return &completeEnum[T]{src: src.Enumerate(), done: done}
	})
}

type completeEnum[T any] struct {
	src      Enumerator[T]
	done     func(int)
	count    int
	reported bool
}

func (e *completeEnum[T]) Current() T { return e.src.Current() }

func (e *completeEnum[T]) MoveNext() bool {
	if e.src.MoveNext() {
		e.count++
		return true
	}
	if e.src.IsSynchronous() {
		e.report()
	}
	return false
}

func (e *completeEnum[T]) IsSynchronous() bool { return e.src.IsSynchronous() }

func (e *completeEnum[T]) NextBatch(ctx context.Context) (bool, error) {
	ok, err := e.src.NextBatch(ctx)
	if err == nil && !ok {
		e.report()
	}
	return ok, err
}

func (e *completeEnum[T]) report() {
	if !e.reported {
		e.reported = true
		e.done(e.count)
	}
}

func (e *completeEnum[T]) Close() error { return e.src.Close() }
