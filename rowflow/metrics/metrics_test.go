package metrics

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-rowflow/rowflow/annotations"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/join"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
)

func scenarioJoin(t *testing.T) *join.Node {
	t.Helper()
	left := source.NewMemory("l", []map[string]any{{"id": 1, "k": 1}, {"id": 2, "k": 2}, {"id": 3, "k": 2}})
	right := source.NewMemory("r", []map[string]any{{"id": 10, "k": 2}, {"id": 11, "k": 2}, {"id": 12, "k": 3}})
	n, err := join.New(join.Spec{Kind: join.Inner, Left: left, Right: right, On: query.MustParse("l.k = r.k")})
	require.NoError(t, err)
	return n
}

func TestJoinEventsFeedCounters(t *testing.T) {
	m := New()
	ec := executor.NewContext(executor.Options{Handler: m.Handler()})

	n, err := enumerator.Count(context.Background(), scenarioJoin(t).Rows(ec, query.All))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JoinsTotal.WithLabelValues("inner", "complete")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.JoinRows.WithLabelValues("inner", "result")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.JoinRows.WithLabelValues("inner", "left")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushdownTotal.WithLabelValues("rewrite")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SourceRows.WithLabelValues("l", "memory")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.JoinDuration))
}

func TestFailedJoinIsCounted(t *testing.T) {
	m := New()
	ec := executor.NewContext(executor.Options{Handler: m.Handler(), MaxScannedRows: 2})

	_, err := enumerator.Count(context.Background(), scenarioJoin(t).Rows(ec, query.All))
	require.ErrorIs(t, err, executor.ErrRowLimitExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JoinsTotal.WithLabelValues("inner", "failed")))
	assert.Zero(t, testutil.ToFloat64(m.JoinsTotal.WithLabelValues("inner", "complete")))
}

func TestObserveIgnoresUnknownRowCounts(t *testing.T) {
	m := New()
	m.Observe(annotations.Event{
		Name:    annotations.JoinComplete,
		Latency: time.Millisecond,
		Data:    map[string]any{"join.kind": "left", "left.rows": 0, "right.rows": -1, "result.rows": 5},
	})
	m.Observe(annotations.Event{
		Name: annotations.MaterializeComplete,
		Data: map[string]any{"rows": 7, "policy": "badger", "side": "right"},
	})
	m.Observe(annotations.Event{Name: annotations.PushdownEmptyLHS})
	m.Observe(annotations.Event{Name: "something/else"})

	assert.Equal(t, 5.0, testutil.ToFloat64(m.JoinRows.WithLabelValues("left", "result")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.MaterializedRows.WithLabelValues("badger", "right")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushdownTotal.WithLabelValues("empty-left")))
	// right.rows was unknown
	assert.Equal(t, 1, testutil.CollectAndCount(m.JoinRows))
}

func TestWriteText(t *testing.T) {
	m := New()
	m.Observe(annotations.Event{Name: annotations.PushdownSkipped})
	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Contains(t, buf.String(), `rowflow_pushdown_total{outcome="skipped"} 1`)
}
