package enumerator

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batched serves items in batches of size n, counting fetches and closes
type batched[T any] struct {
	items   []T
	size    int
	fetches int
	closes  int
	opens   int
	failAt  int // fetch number that fails, 0 for never
}

func (b *batched[T]) Enumerable() Enumerable[T] {
	return FromBatches(func() Batcher[T] {
		b.opens++
		pos := 0
		fetch := 0
		return &testBatcher[T]{
			fetch: func(ctx context.Context) ([]T, bool, error) {
				fetch++
				b.fetches++
				if b.failAt > 0 && fetch == b.failAt {
					return nil, false, errFetch
				}
				end := min(pos+b.size, len(b.items))
				out := b.items[pos:end]
				pos = end
				return out, pos < len(b.items), nil
			},
			close: func() { b.closes++ },
		}
	})
}

type testBatcher[T any] struct {
	fetch func(ctx context.Context) ([]T, bool, error)
	close func()
}

func (t *testBatcher[T]) Fetch(ctx context.Context) ([]T, bool, error) { return t.fetch(ctx) }
func (t *testBatcher[T]) Close() error                                 { t.close(); return nil }

var errFetch = errors.New("fetch failed")

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func collect[T any](t *testing.T, src Enumerable[T]) []T {
	t.Helper()
	out, err := ToSlice(context.Background(), src)
	require.NoError(t, err)
	return out
}

func TestFromBatchesProtocol(t *testing.T) {
	b := &batched[int]{items: ints(7), size: 3}
	e := b.Enumerable().Enumerate()

	// nothing is loaded before the first batch
	assert.False(t, e.MoveNext())
	assert.False(t, e.IsSynchronous())
	assert.Equal(t, 0, b.opens)

	var got []int
	for {
		for e.MoveNext() {
			got = append(got, e.Current())
		}
		if e.IsSynchronous() {
			break
		}
		ok, err := e.NextBatch(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.NoError(t, e.Close())
	assert.Equal(t, ints(7), got)
	assert.Equal(t, 3, b.fetches)
	assert.Equal(t, 1, b.closes)
}

func TestEnumerationsAreIndependent(t *testing.T) {
	b := &batched[int]{items: ints(5), size: 2}
	src := Where(b.Enumerable(), func(v int) bool { return v%2 == 0 })

	e1 := src.Enumerate()
	e2 := src.Enumerate()
	assert.Equal(t, 0, b.opens, "constructing combinators must not start iteration")

	got1, err := ToSlice(context.Background(), Func[int](func() Enumerator[int] { return e1 }))
	require.NoError(t, err)
	got2, err := ToSlice(context.Background(), Func[int](func() Enumerator[int] { return e2 }))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, got1)
	assert.Equal(t, got1, got2)
	assert.Equal(t, 2, b.opens)
}

func TestWhereMatchesSliceFilter(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		items := make([]int, r.Intn(40))
		for i := range items {
			items[i] = r.Intn(100)
		}
		pred := func(v int) bool { return v%3 != 0 }
		want := slices.DeleteFunc(slices.Clone(items), func(v int) bool { return !pred(v) })

		b := &batched[int]{items: items, size: 1 + r.Intn(5)}
		got := collect(t, Where(b.Enumerable(), pred))
		if len(want) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, want, got)
		}
	}
}

func TestSelectAndSelectMany(t *testing.T) {
	b := &batched[int]{items: []int{1, 2, 3}, size: 2}
	assert.Equal(t, []string{"1", "22", "333"}, collect(t, Select(b.Enumerable(), func(v int) string {
		s := ""
		for i := 0; i < v; i++ {
			s += string(rune('0' + v))
		}
		return s
	})))

	flat := SelectMany(b.Enumerable(), func(v int) Enumerable[int] {
		inner := &batched[int]{items: slices.Repeat([]int{v}, v), size: 1}
		return inner.Enumerable()
	})
	assert.Equal(t, []int{1, 2, 2, 3, 3, 3}, collect(t, flat))
}

func TestTakeSkipAcrossBatches(t *testing.T) {
	b := &batched[int]{items: ints(10), size: 3}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, collect(t, Take(b.Enumerable(), 5)))
	assert.Equal(t, 2, b.fetches, "take stops fetching once satisfied")

	assert.Equal(t, []int{7, 8, 9}, collect(t, Skip(b.Enumerable(), 7)))
	assert.Equal(t, []int{4, 5}, collect(t, Take(Skip(b.Enumerable(), 4), 2)))
	assert.Empty(t, collect(t, Take(b.Enumerable(), 0)))
	assert.Empty(t, collect(t, Skip(b.Enumerable(), 20)))
}

func TestBatch(t *testing.T) {
	b := &batched[int]{items: ints(7), size: 2}
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6}}, collect(t, Batch(b.Enumerable(), 3)))
	assert.Equal(t, [][]int{{0, 1, 2, 3, 4, 5, 6}}, collect(t, Batch(Of(ints(7)...), 10)))
	assert.Empty(t, collect(t, Batch(Empty[int](), 2)))
	assert.Panics(t, func() { Batch(Empty[int](), 0) })
}

func TestDistinctUnion(t *testing.T) {
	b := &batched[int]{items: []int{3, 1, 3, 2, 1, 4}, size: 4}
	assert.Equal(t, []int{3, 1, 2, 4}, collect(t, Distinct(b.Enumerable())))
	assert.Equal(t, []int{3, 1, 2, 4}, collect(t, DistinctFunc(b.Enumerable(), Natural[int]())))
	assert.Equal(t, []int{3, 2}, collect(t, DistinctBy(b.Enumerable(), func(v int) bool { return v%2 == 1 })))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, collect(t, Union(Of(1, 2, 3), Of(3, 4), Of(5, 1))))
	assert.Equal(t, []int{1, 2}, collect(t, UnionBy(func(v int) int { return v % 2 }, Of(1, 3), Of(2, 4))))
}

func TestConcat(t *testing.T) {
	a := &batched[int]{items: []int{1, 2, 3}, size: 2}
	b := &batched[int]{items: nil, size: 2}
	c := &batched[int]{items: []int{4}, size: 2}
	assert.Equal(t, []int{1, 2, 3, 4}, collect(t, Concat(a.Enumerable(), b.Enumerable(), Of[int](), c.Enumerable())))
	assert.Equal(t, 1, a.closes)
	assert.Equal(t, 1, b.closes)
	assert.Equal(t, 1, c.closes)
	assert.Empty(t, collect(t, Concat[int]()))
}

func TestDefaultIfEmpty(t *testing.T) {
	assert.Equal(t, []int{-1}, collect(t, DefaultIfEmpty(Of[int](), -1)))

	empty := &batched[int]{size: 2}
	assert.Equal(t, []int{-1}, collect(t, DefaultIfEmpty(empty.Enumerable(), -1)))
	assert.Equal(t, 1, empty.closes)

	full := &batched[int]{items: ints(5), size: 2}
	assert.Equal(t, ints(5), collect(t, DefaultIfEmpty(full.Enumerable(), -1)))

	filtered := Where(full.Enumerable(), func(int) bool { return false })
	assert.Equal(t, []int{-1}, collect(t, DefaultIfEmpty(filtered, -1)))
}

func TestZipLengths(t *testing.T) {
	pair := func(a, b int) [2]int { return [2]int{a, b} }
	for _, sizes := range [][2]int{{0, 0}, {0, 3}, {3, 0}, {2, 5}, {5, 2}, {4, 4}} {
		left := &batched[int]{items: ints(sizes[0]), size: 2}
		right := &batched[int]{items: ints(sizes[1]), size: 3}

		zipped := collect(t, Zip(left.Enumerable(), right.Enumerable(), pair))
		assert.Len(t, zipped, min(sizes[0], sizes[1]))
		for i, p := range zipped {
			assert.Equal(t, [2]int{i, i}, p)
		}
	}
}

func TestZipLongestPadsWithZero(t *testing.T) {
	left := Of("a", "b", "c")
	right := &batched[string]{items: []string{"x"}, size: 1}
	got := collect(t, ZipLongest(left, right.Enumerable(), func(a, b string) string { return a + "|" + b }))
	assert.Equal(t, []string{"a|x", "b|", "c|"}, got)

	for _, sizes := range [][2]int{{0, 0}, {0, 3}, {3, 0}, {2, 5}, {5, 2}, {4, 4}} {
		l := &batched[int]{items: ints(sizes[0]), size: 2}
		r := &batched[int]{items: ints(sizes[1]), size: 3}
		n, err := Count(context.Background(), ZipLongest(l.Enumerable(), r.Enumerable(), func(a, b int) int { return a + b }))
		require.NoError(t, err)
		assert.Equal(t, max(sizes[0], sizes[1]), n)
	}
}

func TestGroupBy(t *testing.T) {
	b := &batched[string]{items: []string{"apple", "bob", "avocado", "cat", "banana"}, size: 2}
	groups := collect(t, GroupBy(b.Enumerable(), func(s string) byte { return s[0] }))
	require.Len(t, groups, 3)
	assert.Equal(t, byte('a'), groups[0].Key)
	assert.Equal(t, []string{"apple", "avocado"}, groups[0].Items)
	assert.Equal(t, []string{"bob", "banana"}, groups[1].Items)
	assert.Equal(t, []string{"cat"}, groups[2].Items)

	byLen := collect(t, GroupByFunc(b.Enumerable(), func(s string) int { return len(s) }, Natural[int]()))
	require.Len(t, byLen, 4)
	assert.Equal(t, 5, byLen[0].Key)
	assert.Equal(t, []string{"bob", "cat"}, byLen[1].Items)
	assert.Equal(t, []string{"avocado"}, byLen[2].Items)
	assert.Equal(t, []string{"banana"}, byLen[3].Items)
}

func TestOrderByIsStableAndDrainsFirst(t *testing.T) {
	type item struct {
		key int
		tag string
	}
	b := &batched[item]{items: []item{{2, "a"}, {1, "b"}, {2, "c"}, {0, "d"}, {1, "e"}}, size: 2}
	e := OrderBy(b.Enumerable(), By(func(i item) int { return i.key }, Natural[int]())).Enumerate()
	defer e.Close()

	assert.False(t, e.MoveNext())
	assert.False(t, e.IsSynchronous())
	ok, err := e.NextBatch(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, b.fetches, "the whole source is drained before replay")

	var tags []string
	for e.MoveNext() {
		tags = append(tags, e.Current().tag)
	}
	assert.True(t, e.IsSynchronous())
	assert.Equal(t, []string{"d", "b", "e", "a", "c"}, tags)

	desc := collect(t, OrderByDescending(b.Enumerable(), By(func(i item) int { return i.key }, Natural[int]())))
	assert.Equal(t, "a", desc[0].tag)
	assert.Equal(t, "c", desc[1].tag)
}

func TestTerminalHelpers(t *testing.T) {
	ctx := context.Background()
	b := &batched[int]{items: []int{5, 6, 7}, size: 2}

	first, err := First(ctx, b.Enumerable())
	require.NoError(t, err)
	assert.Equal(t, 5, first)
	assert.Equal(t, 1, b.fetches, "first stops after the first element")

	last, err := Last(ctx, b.Enumerable())
	require.NoError(t, err)
	assert.Equal(t, 7, last)

	_, err = First(ctx, Empty[int]())
	assert.ErrorIs(t, err, ErrNoElements)
	_, err = Last(ctx, Where(Of(1, 2), func(int) bool { return false }))
	assert.ErrorIs(t, err, ErrNoElements)

	v, err := FirstOrDefault(ctx, Empty[int](), 42)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	v, err = LastOrDefault(ctx, Empty[int](), 43)
	require.NoError(t, err)
	assert.Equal(t, 43, v)

	found, err := Any(ctx, b.Enumerable(), func(v int) bool { return v == 6 })
	require.NoError(t, err)
	assert.True(t, found)

	n, err := Count(ctx, b.Enumerable())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFetchErrorPropagatesAndCloses(t *testing.T) {
	b := &batched[int]{items: ints(10), size: 2, failAt: 3}
	var seen []int
	err := ForEach(context.Background(), Select(b.Enumerable(), func(v int) int { return v * 10 }), func(v int) error {
		seen = append(seen, v)
		return nil
	})
	assert.ErrorIs(t, err, errFetch)
	assert.Equal(t, []int{0, 10, 20, 30}, seen)
	assert.Equal(t, 1, b.closes)

	_, err = ToSlice(context.Background(), OrderBy(b.Enumerable(), Natural[int]()))
	assert.ErrorIs(t, err, errFetch)
	assert.Equal(t, 2, b.closes)
}

func TestDefer(t *testing.T) {
	built := 0
	src := Defer(func(ctx context.Context) (Enumerable[int], error) {
		built++
		return Of(1, 2), nil
	})
	assert.Equal(t, 0, built)
	assert.Equal(t, []int{1, 2}, collect(t, src))
	assert.Equal(t, []int{1, 2}, collect(t, src))
	assert.Equal(t, 2, built)

	failing := Defer(func(ctx context.Context) (Enumerable[int], error) { return nil, errFetch })
	_, err := ToSlice(context.Background(), failing)
	assert.ErrorIs(t, err, errFetch)
}

func TestOnComplete(t *testing.T) {
	reported := -1
	b := &batched[int]{items: ints(5), size: 2}
	assert.Len(t, collect(t, OnComplete(b.Enumerable(), func(n int) { reported = n })), 5)
	assert.Equal(t, 5, reported)

	reported = -1
	_, err := First(context.Background(), OnComplete(b.Enumerable(), func(n int) { reported = n }))
	require.NoError(t, err)
	assert.Equal(t, -1, reported, "abandoned enumerations do not report")

	failing := &batched[int]{items: ints(5), size: 2, failAt: 2}
	_, err = ToSlice(context.Background(), OnComplete(failing.Enumerable(), func(n int) { reported = n }))
	assert.Error(t, err)
	assert.Equal(t, -1, reported)
}
