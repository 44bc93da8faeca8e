package enumerator

import (
	"context"
	"errors"
)

// passthrough forwards the batch half of the protocol to a source
type passthrough[T any] struct {
	src Enumerator[T]
}

func (p passthrough[T]) IsSynchronous() bool { return p.src.IsSynchronous() }
func (p passthrough[T]) Close() error        { return p.src.Close() }

func (p passthrough[T]) NextBatch(ctx context.Context) (bool, error) {
	return p.src.NextBatch(ctx)
}

// Where keeps the elements satisfying pred, preserving order
func Where[T any](src Enumerable[T], pred func(T) bool) Enumerable[T] {
	return Func[T](func() Enumerator[T] {
		e := src.Enumerate()
		return &whereEnum[T]{passthrough: passthrough[T]{e}, pred: pred}
	})
}

type whereEnum[T any] struct {
	passthrough[T]
	pred func(T) bool
	cur  T
}

func (e *whereEnum[T]) Current() T { return e.cur }

func (e *whereEnum[T]) MoveNext() bool {
	for e.src.MoveNext() {
		if v := e.src.Current(); e.pred(v) {
			e.cur = v
			return true
		}
	}
	return false
}

// Select maps every element through fn
func Select[T, U any](src Enumerable[T], fn func(T) U) Enumerable[U] {
	return Func[U](func() Enumerator[U] {
		return &selectEnum[T, U]{src: src.Enumerate(), fn: fn}
	})
}

type selectEnum[T, U any] struct {
	src Enumerator[T]
	fn  func(T) U
	cur U
}

func (e *selectEnum[T, U]) Current() U          { return e.cur }
func (e *selectEnum[T, U]) IsSynchronous() bool { return e.src.IsSynchronous() }
func (e *selectEnum[T, U]) Close() error        { return e.src.Close() }

func (e *selectEnum[T, U]) MoveNext() bool {
	if !e.src.MoveNext() {
		return false
	}
	e.cur = e.fn(e.src.Current())
	return true
}

func (e *selectEnum[T, U]) NextBatch(ctx context.Context) (bool, error) {
	return e.src.NextBatch(ctx)
}

// SelectMany maps every element to a sequence and flattens the results in
// order. Inner sequences may themselves be batched.
func SelectMany[T, U any](src Enumerable[T], fn func(T) Enumerable[U]) Enumerable[U] {
	return Func[U](func() Enumerator[U] {
		return &selectManyEnum[T, U]{outer: src.Enumerate(), fn: fn}
	})
}

type selectManyEnum[T, U any] struct {
	outer Enumerator[T]
	inner Enumerator[U]
	fn    func(T) Enumerable[U]
	err   error
}

func (e *selectManyEnum[T, U]) Current() U { return e.inner.Current() }

func (e *selectManyEnum[T, U]) MoveNext() bool {
	for {
		if e.inner != nil {
			if e.inner.MoveNext() {
				return true
			}
			if !e.inner.IsSynchronous() {
				return false
			}
			e.closeInner()
		}
		if !e.outer.MoveNext() {
			return false
		}
		e.inner = e.fn(e.outer.Current()).Enumerate()
	}
}

func (e *selectManyEnum[T, U]) IsSynchronous() bool {
	return e.err == nil && e.inner == nil && e.outer.IsSynchronous()
}

func (e *selectManyEnum[T, U]) NextBatch(ctx context.Context) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	if e.inner != nil {
		ok, err := e.inner.NextBatch(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			e.closeInner()
			if e.err != nil {
				return false, e.err
			}
		}
		return true, nil
	}
	return e.outer.NextBatch(ctx)
}

func (e *selectManyEnum[T, U]) closeInner() {
	if err := e.inner.Close(); err != nil && e.err == nil {
		e.err = err
	}
	e.inner = nil
}

func (e *selectManyEnum[T, U]) Close() error {
	var errs []error
	if e.inner != nil {
		errs = append(errs, e.inner.Close())
		e.inner = nil
	}
	errs = append(errs, e.outer.Close())
	return errors.Join(errs...)
}

// Take yields at most n elements, counted across batch boundaries
func Take[T any](src Enumerable[T], n int) Enumerable[T] {
	return Func[T](func() Enumerator[T] {
		return &takeEnum[T]{passthrough: passthrough[T]{src.Enumerate()}, left: n}
	})
}

type takeEnum[T any] struct {
	passthrough[T]
	left int
}

func (e *takeEnum[T]) Current() T { return e.src.Current() }

func (e *takeEnum[T]) MoveNext() bool {
	if e.left <= 0 || !e.src.MoveNext() {
		return false
	}
	e.left--
	return true
}

func (e *takeEnum[T]) IsSynchronous() bool { return e.left <= 0 || e.src.IsSynchronous() }

// DefaultIfEmpty yields def alone when src turns out to be empty
func DefaultIfEmpty[T any](src Enumerable[T], def T) Enumerable[T] {
	return Func[T](func() Enumerator[T] {
		return &defaultEnum[T]{passthrough: passthrough[T]{src.Enumerate()}, def: def}
	})
}

type defaultEnum[T any] struct {
	passthrough[T]
	def     T
	cur     T
	seen    bool // src produced an element
	pending bool // def is due on the next MoveNext
	emitted bool
}

func (e *defaultEnum[T]) Current() T { return e.cur }

func (e *defaultEnum[T]) MoveNext() bool {
	if e.pending {
		e.pending, e.emitted = false, true
		e.cur = e.def
		return true
	}
	if e.src.MoveNext() {
		e.seen = true
		e.cur = e.src.Current()
		return true
	}
	if !e.seen && !e.emitted && e.src.IsSynchronous() {
		e.emitted = true
		e.cur = e.def
		return true
	}
	return false
}

func (e *defaultEnum[T]) IsSynchronous() bool {
	return (e.seen || e.emitted) && e.src.IsSynchronous()
}

func (e *defaultEnum[T]) NextBatch(ctx context.Context) (bool, error) {
	if e.emitted {
		return false, nil
	}
	ok, err := e.src.NextBatch(ctx)
	if err != nil {
		return false, err
	}
	if !ok && !e.seen {
		e.pending = true
		return true, nil
	}
	return ok, nil
}

// Skip drops the first n elements, counted across batch boundaries
func Skip[T any](src Enumerable[T], n int) Enumerable[T] {
	return Func[T](func() Enumerator[T] {
		return &skipEnum[T]{passthrough: passthrough[T]{src.Enumerate()}, skip: n}
	})
}

type skipEnum[T any] struct {
	passthrough[T]
	skip int
}

func (e *skipEnum[T]) Current() T { return e.src.Current() }

func (e *skipEnum[T]) MoveNext() bool {
	for e.skip > 0 {
		if !e.src.MoveNext() {
			return false
		}
		e.skip--
	}
	return e.src.MoveNext()
}

// Batch groups consecutive elements into slices of size n; the last slice
// may be shorter. It panics when n is not positive.
func Batch[T any](src Enumerable[T], n int) Enumerable[[]T] {
	if n <= 0 {
		panic("enumerator: batch size must be positive")
	}
	return Func[[]T](func() Enumerator[[]T] {
		return &batchingEnum[T]{src: src.Enumerate(), size: n}
	})
}

type batchingEnum[T any] struct {
	src     Enumerator[T]
	size    int
	buf     []T
	cur     []T
	srcDone bool
}

func (e *batchingEnum[T]) Current() []T { return e.cur }
func (e *batchingEnum[T]) Close() error { return e.src.Close() }

func (e *batchingEnum[T]) MoveNext() bool {
	if !e.srcDone {
		for e.src.MoveNext() {
			e.buf = append(e.buf, e.src.Current())
			if len(e.buf) == e.size {
				return e.flush()
			}
		}
		if !e.src.IsSynchronous() {
			return false
		}
		e.srcDone = true
	}
	if len(e.buf) > 0 {
		return e.flush()
	}
	return false
}

func (e *batchingEnum[T]) flush() bool {
	e.cur = e.buf
	e.buf = make([]T, 0, e.size)
	return true
}

func (e *batchingEnum[T]) IsSynchronous() bool { return e.srcDone && len(e.buf) == 0 }

func (e *batchingEnum[T]) NextBatch(ctx context.Context) (bool, error) {
	if e.srcDone {
		return len(e.buf) > 0, nil
	}
	ok, err := e.src.NextBatch(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		e.srcDone = true
		return len(e.buf) > 0, nil
	}
	return true, nil
}

// Concat enumerates the sequences one after another
func Concat[T any](srcs ...Enumerable[T]) Enumerable[T] {
	return Func[T](func() Enumerator[T] { return &concatEnum[T]{srcs: srcs} })
}

type concatEnum[T any] struct {
	srcs []Enumerable[T]
	next int
	cur  Enumerator[T]
	done bool
	err  error
}

func (e *concatEnum[T]) Current() T { return e.cur.Current() }

// advance closes the current part and opens the next one
func (e *concatEnum[T]) advance() {
	if e.cur != nil {
		if err := e.cur.Close(); err != nil && e.err == nil {
			e.err = err
		}
		e.cur = nil
	}
	if e.next >= len(e.srcs) {
		e.done = true
		return
	}
	e.cur = e.srcs[e.next].Enumerate()
	e.next++
}

func (e *concatEnum[T]) MoveNext() bool {
	for !e.done && e.err == nil {
		if e.cur == nil {
			e.advance()
			continue
		}
		if e.cur.MoveNext() {
			return true
		}
		if !e.cur.IsSynchronous() {
			return false
		}
		e.advance()
	}
	return false
}

func (e *concatEnum[T]) IsSynchronous() bool { return e.done && e.err == nil }

func (e *concatEnum[T]) NextBatch(ctx context.Context) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	if e.done {
		return false, nil
	}
	if e.cur == nil {
		e.advance()
		return !e.done, nil
	}
	ok, err := e.cur.NextBatch(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		e.advance()
		if e.err != nil {
			return false, e.err
		}
		return !e.done, nil
	}
	return true, nil
}

func (e *concatEnum[T]) Close() error {
	if e.cur == nil {
		return nil
	}
	err := e.cur.Close()
	e.cur = nil
	return err
}
