package parquetsrc

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/join"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
)

type trade struct {
	ID  int64   `parquet:"id"`
	Sym string  `parquet:"sym"`
	Px  float64 `parquet:"px"`
	Qty *int32  `parquet:"qty,optional"`
}

// writeTrades writes n trades in row groups of ten and returns the same
// records for an in-memory comparison
func writeTrades(t *testing.T, n int) (string, []map[string]any) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewWriter(f, parquet.SchemaOf(trade{}), parquet.MaxRowsPerRowGroup(10))

	recs := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		tr := trade{ID: int64(i), Sym: string(rune('a' + i%5)), Px: float64(i) / 4}
		rec := map[string]any{"id": tr.ID, "sym": tr.Sym, "px": tr.Px, "qty": nil}
		if i%3 != 0 {
			q := int32(i * 10)
			tr.Qty = &q
			rec["qty"] = q
		}
		require.NoError(t, w.Write(tr))
		recs[i] = rec
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path, recs
}

func sortedIDs(t *testing.T, rows []*rowflow.Row) []int64 {
	t.Helper()
	out := make([]int64, len(rows))
	for i, r := range rows {
		v, ok := r.Value("t.id").AsInt()
		require.True(t, ok, "row %s", r)
		out[i] = v
	}
	slices.Sort(out)
	return out
}

func TestReadsEveryRow(t *testing.T) {
	path, _ := writeTrades(t, 35)
	src, err := Open(path, "t")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t.id", "t.sym", "t.px", "t.qty"}, src.Fields())

	ec := executor.NewContext(executor.Options{BatchSize: 4})
	rows, err := enumerator.ToSlice(context.Background(), src.Rows(ec, query.All))
	require.NoError(t, err)
	require.Len(t, rows, 35)
	assert.EqualValues(t, 35, ec.Scanned())

	for i, r := range rows {
		assert.Equal(t, int64(i), r.Value("t.id").Any())
		assert.Equal(t, string(rune('a'+i%5)), r.Value("t.sym").Any())
		assert.Equal(t, float64(i)/4, r.Value("t.px").Any())
		if i%3 == 0 {
			assert.True(t, r.Value("t.qty").IsNull())
		} else {
			assert.Equal(t, int64(i*10), r.Value("t.qty").Any())
		}
	}
}

func TestRowGroupsAreSkipped(t *testing.T) {
	path, _ := writeTrades(t, 35)
	src, err := Open(path, "t")
	require.NoError(t, err)

	cases := []struct {
		name    string
		filter  query.Predicate
		rows    int
		scanned int64
	}{
		{"lower bound", query.MustParse("t.id >= 30"), 5, 5},
		{"flipped", query.MustParse("10 > t.id"), 10, 10},
		{"point", query.MustParse("t.id = 21"), 1, 10},
		{"float against int column", query.MustParse("t.id < 9.5"), 10, 10},
		{"range", query.Range{
			Key:          query.F("t.id"),
			Elem:         rowflow.KindInt,
			Min:          rowflow.Int(12),
			Max:          rowflow.Int(15),
			HasMin:       true,
			HasMax:       true,
			MinInclusive: true,
			MaxInclusive: true,
		}, 4, 10},
		{"string constant coerces", query.MustParse(`t.id > "25"`), 9, 35},
		{"unindexed string column", query.MustParse(`t.sym = "a"`), 7, 35},
		{"false", query.False, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ec := executor.NewContext(executor.Options{BatchSize: 4})
			n, err := enumerator.Count(context.Background(), src.Rows(ec, query.New().WithFilter(tc.filter)))
			require.NoError(t, err)
			assert.Equal(t, tc.rows, n)
			assert.Equal(t, tc.scanned, ec.Scanned())
		})
	}
}

func TestFilterMatchesMemory(t *testing.T) {
	path, recs := writeTrades(t, 35)
	src, err := Open(path, "t")
	require.NoError(t, err)
	mem := source.NewMemory("t", recs)

	for _, f := range []string{
		"t.qty > 100",
		"t.qty = null",
		`t.sym >= "c" and t.px < 5`,
		"not (t.id > 3) or t.qty <= 40",
	} {
		t.Run(f, func(t *testing.T) {
			q := query.New().WithFilter(query.MustParse(f))
			got, err := enumerator.ToSlice(context.Background(), src.Rows(executor.Background(), q))
			require.NoError(t, err)
			want, err := enumerator.ToSlice(context.Background(), mem.Rows(executor.Background(), q))
			require.NoError(t, err)
			assert.Equal(t, sortedIDs(t, want), sortedIDs(t, got))
		})
	}
}

func TestRowIDsFollowFilePosition(t *testing.T) {
	path, _ := writeTrades(t, 20)
	src, err := Open(path, "t")
	require.NoError(t, err)
	ec := executor.Background()

	all, err := enumerator.ToSlice(context.Background(), src.Rows(ec, query.All))
	require.NoError(t, err)
	one, err := enumerator.ToSlice(context.Background(), src.Rows(ec, query.New().WithFilter(query.MustParse("t.id = 17"))))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, all[17].ID(), one[0].ID())
}

func TestUnsupportedSchema(t *testing.T) {
	type tagged struct {
		ID   int64    `parquet:"id"`
		Tags []string `parquet:"tags,list"`
	}
	path := filepath.Join(t.TempDir(), "tagged.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewWriter(f, parquet.SchemaOf(tagged{}))
	require.NoError(t, w.Write(tagged{ID: 1, Tags: []string{"x"}}))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	_, err = Open(path, "t")
	assert.ErrorIs(t, err, ErrUnsupportedSchema)

	_, err = Open(filepath.Join(t.TempDir(), "missing.parquet"), "t")
	assert.Error(t, err)
}

func TestCancelledRead(t *testing.T) {
	path, _ := writeTrades(t, 5)
	src, err := Open(path, "t")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = enumerator.Count(ctx, src.Rows(executor.Background(), query.All))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearestJoinOverParquet(t *testing.T) {
	path, _ := writeTrades(t, 35)
	trades, err := Open(path, "t")
	require.NoError(t, err)
	quotes := source.NewMemory("q", []map[string]any{{"at": 3.1}, {"at": 7.9}, {"at": -1}})

	node, err := join.New(join.Spec{Kind: join.Nearest, Left: quotes, Right: trades, On: query.MustParse("q.at = t.px")})
	require.NoError(t, err)
	rows, err := enumerator.ToSlice(context.Background(), node.Rows(executor.Background(), query.New().WithOrder(query.Asc("q.at"))))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].Value("t.id").IsNull())
	assert.Equal(t, int64(12), rows[1].Value("t.id").Any()) // px 3.0
	assert.Equal(t, int64(31), rows[2].Value("t.id").Any()) // px 7.75
}
