package executor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/annotations"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
)

func TestContextDefaults(t *testing.T) {
	ec := Background()
	assert.NotNil(t, ec.Logger())
	assert.Nil(t, ec.Collector())
	assert.Equal(t, "memory", ec.Policy().Name())
	assert.Equal(t, DefaultBatchSize, ec.BatchSize())
	assert.Equal(t, int64(0), ec.MaxScannedRows())
	assert.True(t, ec.PushdownEnabled())
	assert.Equal(t, 1, ec.ApplyParallelism())
	assert.NoError(t, ec.CheckScan(1_000_000))
}

func TestContextSettings(t *testing.T) {
	ec := NewContext(Options{Settings: MapSettings{
		SettingBatchSize:        "64",
		SettingMaxScannedRows:   10,
		SettingPushdownEnabled:  "false",
		SettingApplyParallelism: 4,
		"custom":                "x",
	}})
	assert.Equal(t, 64, ec.BatchSize())
	assert.Equal(t, int64(10), ec.MaxScannedRows())
	assert.False(t, ec.PushdownEnabled())
	assert.Equal(t, 4, ec.ApplyParallelism())
	v, ok := ec.Setting("custom")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.Equal(t, 5, ec.IntSetting("custom", 5))

	// options win over settings
	ec = NewContext(Options{BatchSize: 8, DisablePushdown: false, Settings: MapSettings{SettingBatchSize: 64}})
	assert.Equal(t, 8, ec.BatchSize())
}

func TestCheckScan(t *testing.T) {
	ec := NewContext(Options{MaxScannedRows: 5})
	require.NoError(t, ec.CheckScan(3))
	require.NoError(t, ec.CheckScan(2))
	err := ec.CheckScan(1)
	assert.ErrorIs(t, err, ErrRowLimitExceeded)
	assert.Equal(t, int64(6), ec.Scanned())
}

func TestAnnotate(t *testing.T) {
	var got []string
	ec := NewContext(Options{Handler: func(e annotations.Event) { got = append(got, e.Name) }})
	ec.Annotate(annotations.SourceScan, time.Now(), map[string]any{"rows": 1})
	assert.Equal(t, []string{annotations.SourceScan}, got)

	Background().Annotate(annotations.SourceScan, time.Now(), nil) // no collector, no panic

	collecting := NewContext(Options{CollectEvents: true})
	collecting.Annotate(annotations.JoinBegin, time.Now(), nil)
	assert.Len(t, collecting.Collector().Events(), 1)
}

func TestParallelMapPreservesOrder(t *testing.T) {
	inputs := []int{5, 1, 4, 2, 3}
	var running, peak atomic.Int32
	out, err := ParallelMap(context.Background(), 2, inputs, func(ctx context.Context, v int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Duration(v) * time.Millisecond)
		running.Add(-1)
		return v * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 10, 40, 20, 30}, out)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	empty, err := ParallelMap(context.Background(), 0, []int(nil), func(context.Context, int) (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParallelMapError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ParallelMap(context.Background(), 3, []int{1, 2, 3}, func(ctx context.Context, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "index 1")
}

func TestTableFormatter(t *testing.T) {
	b := rowflow.NewRowBuilder()
	rows := []*rowflow.Row{
		b.NewRow(rowflow.NewRowID(), map[string]any{"l.id": 1, "r.v": "a", "r.n": 1.5}),
		b.NewRow(rowflow.NewRowID(), map[string]any{"l.id": 2}),
	}
	formatter := NewTableFormatter()
	formatter.Absent = "<absent>"
	out, err := formatter.FormatRows(context.Background(), enumerator.FromSlice(rows))
	require.NoError(t, err)
	assert.Contains(t, out, "l.id")
	assert.Contains(t, out, "r.v")
	assert.Contains(t, out, "1.50")
	assert.Contains(t, out, "2 rows")
	assert.Equal(t, 2, strings.Count(out, "<absent>"), "absent fields of the second row")

	assert.Equal(t, "_No rows_", NewTableFormatter().Format(nil))

	tf := &TableFormatter{MaxWidth: 6, TruncateString: "..."}
	assert.Equal(t, "abc...", tf.formatValue(rowflow.String("abcdefghij")))
}

func TestContextPolicy(t *testing.T) {
	spill, err := materialize.OpenBadgerPolicy("", 0)
	require.NoError(t, err)
	defer spill.Close()
	assert.Equal(t, "badger", NewContext(Options{Policy: spill}).Policy().Name())
}
