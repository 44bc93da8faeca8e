package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-rowflow/rowflow"
)

func testRow(fields map[string]any) *rowflow.Row {
	return rowflow.NewRowBuilder().NewRow(rowflow.NewRowID(), fields)
}

func TestParse(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`l.k = r.k`, `l.k = r.k`},
		{`l.k == r.k and r.v <> "x"`, `l.k = r.k and r.v != "x"`},
		{`l.a >= -3 or not (r.b < 2.5)`, `l.a >= -3 or not (r.b < 2.5)`},
		{`(l.a = 1 or l.a = 2) and r.b = null`, `(l.a = 1 or l.a = 2) and r.b = null`},
		{`true`, `true`},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, err := Parse(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{`l.k =`, `l.k ~ r.k`, `(l.k = 1`, `l.k = 1 r.k`, `l. = 2`} {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src)
			assert.Error(t, err)
		})
	}
}

func TestParsedPredicateMatches(t *testing.T) {
	row := testRow(map[string]any{"l.k": 2, "r.k": 2, "r.v": "a"})
	assert.True(t, MustParse(`l.k = r.k and r.v = "a"`).Match(row))
	assert.False(t, MustParse(`l.k < r.k`).Match(row))
	assert.True(t, MustParse(`l.k < r.k or r.v != "b"`).Match(row))
	assert.False(t, MustParse(`r.missing = 1`).Match(row))
}

func TestAndOfOrOfSimplify(t *testing.T) {
	a := Eq(F("l.a"), C(1))
	b := Eq(F("r.b"), C(2))

	assert.Equal(t, True, AndOf())
	assert.Equal(t, a, AndOf(True, a))
	assert.Equal(t, False, AndOf(a, False, b))
	assert.Equal(t, And{Terms: []Predicate{a, b}}, AndOf(a, And{Terms: []Predicate{b}}))

	assert.Equal(t, False, OrOf())
	assert.Equal(t, b, OrOf(False, b))
	assert.Equal(t, True, OrOf(a, True))
	assert.Equal(t, Or{Terms: []Predicate{a, b}}, OrOf(Or{Terms: []Predicate{a}}, b))
}

func TestSplit(t *testing.T) {
	p := MustParse(`l.a = 1 and r.b > 2 and l.a = r.b`)
	inside, rest := Split(p, []string{"l"})
	assert.Equal(t, `l.a = 1`, inside.String())
	assert.Equal(t, `r.b > 2 and l.a = r.b`, rest.String())

	inside, rest = Split(True, []string{"l"})
	assert.True(t, IsTrue(inside))
	assert.True(t, IsTrue(rest))
}

func TestRestrict(t *testing.T) {
	q := New().
		WithFields("l.id", "r.v").
		WithFilter(MustParse(`l.id > 1 and r.v = "a" and l.k = r.k`)).
		WithOrder(Asc("l.k"), Desc("r.v"), Asc("l.id")).
		WithWildcards("r").
		WithLimit(3)

	left := q.Restrict([]string{"l"})
	assert.Equal(t, []string{"l.id"}, left.Fields())
	assert.Equal(t, `l.id > 1`, left.Filter().String())
	require.Len(t, left.OrderBy(), 1)
	assert.Equal(t, "l.k asc", left.OrderBy()[0].String())
	assert.Empty(t, left.Wildcards())
	_, hasLimit := left.Limit()
	assert.False(t, hasLimit)

	right := q.Restrict([]string{"r"})
	assert.Equal(t, []string{"r.v"}, right.Fields())
	assert.Equal(t, `r.v = "a"`, right.Filter().String())
	assert.Empty(t, right.OrderBy())
	assert.Equal(t, []string{"r"}, right.Wildcards())

	// the original is untouched
	n, ok := q.Limit()
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Len(t, q.OrderBy(), 3)
}

func TestWithExtraFields(t *testing.T) {
	assert.Empty(t, New().WithExtraFields("l.k").Fields())
	q := New().WithFields("l.id").WithExtraFields("l.k", "l.id")
	assert.Equal(t, []string{"l.id", "l.k"}, q.Fields())
}

func TestProject(t *testing.T) {
	b := rowflow.NewRowBuilder()
	row := b.NewRow(rowflow.NewRowID(), map[string]any{"l.id": 1, "l.k": 2, "r.v": "a", "r.w": 3})

	out := New().WithFields("l.id").WithWildcards("r").Project(b, row)
	assert.Equal(t, []string{"l.id", "r.v", "r.w"}, out.Fields())
	assert.Equal(t, row.ID(), out.ID())

	assert.Same(t, row, New().Project(b, row))
}

func TestRangeContains(t *testing.T) {
	r := Range{
		Key:          F("r.k"),
		Elem:         rowflow.KindInt,
		Min:          rowflow.Int(2),
		Max:          rowflow.Int(5),
		HasMin:       true,
		HasMax:       true,
		MinInclusive: true,
	}
	assert.False(t, r.Contains(rowflow.Int(1)))
	assert.True(t, r.Contains(rowflow.Int(2)))
	assert.True(t, r.Contains(rowflow.Float(4.5)))
	assert.False(t, r.Contains(rowflow.Int(5)))
	assert.False(t, r.Contains(rowflow.Null()))
	// other kind classes are not decided by the bounds
	assert.True(t, r.Contains(rowflow.String("zzz")))
	assert.False(t, r.Point())

	point := Range{Key: F("r.k"), Elem: rowflow.KindInt, Min: rowflow.Int(3), Max: rowflow.Int(3),
		HasMin: true, HasMax: true, MinInclusive: true, MaxInclusive: true}
	assert.True(t, point.Point())

	got := RangesOn(AndOf(point, Eq(F("r.x"), C(1))), "r.k")
	require.Len(t, got, 1)
	assert.Equal(t, point, got[0])
}

func TestRowComparer(t *testing.T) {
	a := testRow(map[string]any{"x.a": 1, "x.b": "z"})
	b := testRow(map[string]any{"x.a": 1, "x.b": "y"})
	c := testRow(map[string]any{"x.a": 0})

	cmp := RowComparer([]OrderBy{Asc("x.a"), Desc("x.b")})
	assert.Less(t, cmp(a, b), 0)
	assert.Greater(t, cmp(a, c), 0)
	assert.Equal(t, 0, RowComparer(nil)(a, c))
}

func TestDescriptorString(t *testing.T) {
	q := New().WithFields("l.id").WithWildcards("r").WithFilter(MustParse(`l.k = r.k`)).WithOrder(Desc("l.id")).WithLimit(2)
	assert.Equal(t, `select l.id, r.* where l.k = r.k order by l.id desc limit 2`, q.String())
	assert.Equal(t, `select *`, All.String())
}
