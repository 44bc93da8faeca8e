package enumerator

import (
	"context"
	"errors"
)

// zipSide tracks one input of a zip
type zipSide[T any] struct {
	e    Enumerator[T]
	val  T
	have bool
	done bool
}

// pull tries to load the side's next value from its current batch
func (s *zipSide[T]) pull() {
	if s.have || s.done {
		return
	}
	if s.e.MoveNext() {
		s.val, s.have = s.e.Current(), true
		return
	}
	if s.e.IsSynchronous() {
		s.done = true
	}
}

// fetch loads another batch when the side is waiting for one
func (s *zipSide[T]) fetch(ctx context.Context) error {
	if s.have || s.done {
		return nil
	}
	ok, err := s.e.NextBatch(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.done = true
	}
	return nil
}

// take returns the held value, or the zero value when the side is done
func (s *zipSide[T]) take() T {
	v := s.val
	var zero T
	s.val, s.have = zero, false
	return v
}

func (s *zipSide[T]) exhausted() bool { return s.done && !s.have }

// Zip pairs the i-th elements of both sequences and stops at the end of the
// shorter one
func Zip[A, B, R any](a Enumerable[A], b Enumerable[B], fn func(A, B) R) Enumerable[R] {
	return Func[R](func() Enumerator[R] {
		return &zipEnum[A, B, R]{a: zipSide[A]{e: a.Enumerate()}, b: zipSide[B]{e: b.Enumerate()}, fn: fn}
	})
}

// ZipLongest pairs the i-th elements of both sequences up to the end of the
// longer one, padding the shorter side with zero values
func ZipLongest[A, B, R any](a Enumerable[A], b Enumerable[B], fn func(A, B) R) Enumerable[R] {
	return Func[R](func() Enumerator[R] {
		return &zipEnum[A, B, R]{a: zipSide[A]{e: a.Enumerate()}, b: zipSide[B]{e: b.Enumerate()}, fn: fn, pad: true}
	})
}

type zipEnum[A, B, R any] struct {
	a   zipSide[A]
	b   zipSide[B]
	fn  func(A, B) R
	pad bool
	cur R
}

func (e *zipEnum[A, B, R]) Current() R { return e.cur }

func (e *zipEnum[A, B, R]) MoveNext() bool {
	if e.IsSynchronous() {
		return false
	}
	e.a.pull()
	e.b.pull()
	ready := e.a.have && e.b.have
	if e.pad {
		ready = (e.a.have || e.a.done) && (e.b.have || e.b.done) && (e.a.have || e.b.have)
	}
	if !ready {
		return false
	}
	e.cur = e.fn(e.a.take(), e.b.take())
	return true
}

func (e *zipEnum[A, B, R]) IsSynchronous() bool {
	if e.pad {
		return e.a.exhausted() && e.b.exhausted()
	}
	return e.a.exhausted() || e.b.exhausted()
}

func (e *zipEnum[A, B, R]) NextBatch(ctx context.Context) (bool, error) {
	if err := e.a.fetch(ctx); err != nil {
		return false, err
	}
	if err := e.b.fetch(ctx); err != nil {
		return false, err
	}
	return !e.IsSynchronous(), nil
}

func (e *zipEnum[A, B, R]) Close() error {
	return errors.Join(e.a.e.Close(), e.b.e.Close())
}
