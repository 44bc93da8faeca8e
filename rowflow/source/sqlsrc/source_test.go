package sqlsrc

import (
	"context"
	"database/sql"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/join"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "rows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// mixedTable creates t(id, k, v) where k has no declared type, so values
// keep the kind they were inserted with
func mixedTable(t *testing.T, db *sql.DB) []map[string]any {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE t (id INTEGER, k, v TEXT)`)
	require.NoError(t, err)

	var recs []map[string]any
	for i := 0; i < 30; i++ {
		rec := map[string]any{"id": i, "v": string(rune('a' + i%3))}
		switch i % 6 {
		case 0, 1, 2:
			rec["k"] = i % 5
		case 3:
			rec["k"] = float64(i%5) + 0.5
		case 4:
			rec["k"] = "3"
		case 5:
			rec["k"] = nil
		}
		recs = append(recs, rec)
	}
	recs = append(recs, map[string]any{"id": 99, "k": "x", "v": "z"})
	for _, rec := range recs {
		_, err := db.Exec(`INSERT INTO t (id, k, v) VALUES (?, ?, ?)`, rec["id"], rec["k"], rec["v"])
		require.NoError(t, err)
	}
	return recs
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

func TestStatement(t *testing.T) {
	src, err := New(openDB(t), "t", "t")
	require.NoError(t, err)

	stmt, args := src.Statement(query.All)
	assert.Equal(t, `SELECT "rowid", * FROM "t"`, stmt)
	assert.Empty(t, args)

	stmt, args = src.Statement(query.New().WithFilter(query.MustParse("t.k = 3")))
	assert.Equal(t, `SELECT "rowid", * FROM "t" WHERE "k" = ?`, stmt)
	assert.Equal(t, []any{int64(3)}, args)

	// null equals only null
	stmt, args = src.Statement(query.New().WithFilter(query.MustParse("t.k = null")))
	assert.Equal(t, `SELECT "rowid", * FROM "t" WHERE "k" IS NULL`, stmt)
	assert.Empty(t, args)

	stmt, _ = src.Statement(query.New().WithFilter(query.MustParse("t.k != 3")))
	assert.Equal(t, `SELECT "rowid", * FROM "t" WHERE ("k" IS NULL OR typeof("k") NOT IN ('integer', 'real') OR "k" <> ?)`, stmt)

	// fields of other aliases have no column here
	stmt, _ = src.Statement(query.New().WithFilter(query.MustParse("u.k = 3")))
	assert.Equal(t, `SELECT "rowid", * FROM "t"`, stmt)

	_, err = New(nil, "", "t")
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestFilterMatchesLocalEvaluation(t *testing.T) {
	db := openDB(t)
	recs := mixedTable(t, db)
	src, err := New(db, "t", "t")
	require.NoError(t, err)
	mem := source.NewMemory("t", recs)

	filters := map[string]query.Predicate{
		"eq":          query.MustParse("t.k = 3"),
		"eq-string":   query.MustParse(`t.k = "3"`),
		"ne":          query.MustParse("t.k != 3"),
		"gt":          query.MustParse("t.k > 2"),
		"lte-float":   query.MustParse("t.k <= 1.5"),
		"flipped":     query.MustParse("2 < t.k"),
		"string-gt":   query.MustParse(`t.k > "2"`),
		"or":          query.MustParse(`t.k = 1 or t.v = "b"`),
		"not-eq":      query.MustParse("not (t.k = 3)"),
		"not-ne":      query.MustParse("not (t.k != 3)"),
		"not-and":     query.MustParse(`not (t.k = 1 and t.v = "b")`),
		"not-or":      query.MustParse(`not (t.k = 1 or t.v = "b")`),
		"not-ordered": query.MustParse("not (t.k > 2)"),
		"null":        query.MustParse("t.k = null"),
		"ne-null":     query.MustParse("t.k != null"),
		"lt-null":     query.MustParse("t.k < null"),
		"not-null":    query.MustParse("not (t.k = null)"),
		"not-ne-null": query.MustParse("not (t.k != null)"),
		"bool":        query.MustParse("t.k = true"),
		"ne-bool":     query.MustParse("t.k != true"),
		"range": query.Range{
			Key:          query.F("t.k"),
			Elem:         rowflow.KindInt,
			Min:          rowflow.Int(1),
			Max:          rowflow.Int(3),
			HasMin:       true,
			HasMax:       true,
			MinInclusive: true,
		},
		"func": query.Func{Name: "even", Reads: []string{"t.id"}, Filter: func(r *rowflow.Row) bool {
			i, _ := r.Value("t.id").AsInt()
			return i%2 == 0
		}},
	}
	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			q := query.New().WithFilter(f)
			got, err := enumerator.ToSlice(context.Background(), src.Rows(executor.NewContext(executor.Options{BatchSize: 4}), q))
			require.NoError(t, err)
			want, err := enumerator.ToSlice(context.Background(), mem.Rows(executor.Background(), q))
			require.NoError(t, err)
			assert.Equal(t, sortedIDs(t, want), sortedIDs(t, got))
		})
	}
}

func TestRowIDsAreStable(t *testing.T) {
	db := openDB(t)
	mixedTable(t, db)
	src, err := New(db, "t", "t")
	require.NoError(t, err)
	ec := executor.Background()

	all, err := enumerator.ToSlice(context.Background(), src.Rows(ec, query.All))
	require.NoError(t, err)
	some, err := enumerator.ToSlice(context.Background(), src.Rows(ec, query.New().WithFilter(query.MustParse("t.id = 7"))))
	require.NoError(t, err)
	require.Len(t, some, 1)

	idx := slices.IndexFunc(all, func(r *rowflow.Row) bool { return r.ID() == some[0].ID() })
	require.GreaterOrEqual(t, idx, 0)
	assert.True(t, all[idx].Equal(some[0]))
}

func TestBatchesLimitAndCancel(t *testing.T) {
	db := openDB(t)
	mixedTable(t, db)
	src, err := New(db, "t", "t")
	require.NoError(t, err)

	ec := executor.NewContext(executor.Options{BatchSize: 7})
	n, err := enumerator.Count(context.Background(), src.Rows(ec, query.All))
	require.NoError(t, err)
	assert.Equal(t, 31, n)
	assert.EqualValues(t, 31, ec.Scanned())

	// an early stop closes the result set
	first, err := enumerator.ToSlice(context.Background(), enumerator.Take(src.Rows(ec, query.All), 2))
	require.NoError(t, err)
	assert.Len(t, first, 2)

	limited := executor.NewContext(executor.Options{BatchSize: 7, MaxScannedRows: 10})
	_, err = enumerator.Count(context.Background(), src.Rows(limited, query.All))
	assert.ErrorIs(t, err, executor.ErrRowLimitExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = enumerator.Count(ctx, src.Rows(executor.Background(), query.All))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJoinAgainstSQLTable(t *testing.T) {
	db := openDB(t)
	_, err := db.Exec(`CREATE TABLE prices (sym TEXT, px REAL)`)
	require.NoError(t, err)
	for i, sym := range []string{"a", "b", "c", "d", "e"} {
		_, err := db.Exec(`INSERT INTO prices VALUES (?, ?)`, sym, float64(i)*1.5)
		require.NoError(t, err)
	}
	right, err := New(db, "prices", "p")
	require.NoError(t, err)
	left := source.NewMemory("o", []map[string]any{{"sym": "b"}, {"sym": "d"}, {"sym": "z"}})

	node, err := join.New(join.Spec{Kind: join.Left, Left: left, Right: right, On: query.MustParse("o.sym = p.sym")})
	require.NoError(t, err)
	rows, err := enumerator.ToSlice(context.Background(), node.Rows(executor.Background(), query.New().WithOrder(query.Asc("o.sym"))))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 1.5, rows[0].Value("p.px").Any())
	assert.Equal(t, 4.5, rows[1].Value("p.px").Any())
	assert.True(t, rows[2].Value("p.px").IsNull())
}
