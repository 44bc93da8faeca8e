// Package metrics turns annotation events into prometheus counters
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cast"

	"github.com/wbrown/janus-rowflow/rowflow/annotations"
)

// Metrics holds the engine's collectors in their own registry
type Metrics struct {
	Registry *prometheus.Registry

	JoinsTotal       *prometheus.CounterVec
	JoinDuration     *prometheus.HistogramVec
	JoinRows         *prometheus.CounterVec
	MaterializedRows *prometheus.CounterVec
	PushdownTotal    *prometheus.CounterVec
	SourceRows       *prometheus.CounterVec
}

// New registers the collectors in a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		// JoinsTotal counts finished joins by strategy and outcome.
		JoinsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowflow_joins_total",
				Help: "Total number of joins run to completion or failure",
			},
			[]string{"kind", "status"},
		),
		JoinDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowflow_join_duration_seconds",
				Help:    "Time from a join's first batch to its completion",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		// JoinRows counts rows read from each side and rows produced.
		JoinRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowflow_join_rows_total",
				Help: "Rows read per join side and rows produced",
			},
			[]string{"kind", "side"},
		),
		MaterializedRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowflow_materialized_rows_total",
				Help: "Rows materialized by policy and join side",
			},
			[]string{"policy", "side"},
		),
		PushdownTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowflow_pushdown_total",
				Help: "Pushdown analyses by outcome",
			},
			[]string{"outcome"},
		),
		SourceRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowflow_source_rows_total",
				Help: "Rows produced by source scans",
			},
			[]string{"source", "access"},
		),
	}
}

// Handler feeds events into the collectors
func (m *Metrics) Handler() annotations.Handler {
	return m.Observe
}

func (m *Metrics) Observe(e annotations.Event) {
	kind := cast.ToString(e.Data["join.kind"])
	switch e.Name {
	case annotations.JoinComplete:
		m.JoinsTotal.WithLabelValues(kind, "complete").Inc()
		m.JoinDuration.WithLabelValues(kind).Observe(e.Latency.Seconds())
		for side, key := range map[string]string{"left": "left.rows", "right": "right.rows", "result": "result.rows"} {
			if n := cast.ToFloat64(e.Data[key]); n > 0 {
				m.JoinRows.WithLabelValues(kind, side).Add(n)
			}
		}
	case annotations.JoinFailed:
		m.JoinsTotal.WithLabelValues(kind, "failed").Inc()
	case annotations.MaterializeComplete:
		m.MaterializedRows.WithLabelValues(cast.ToString(e.Data["policy"]), cast.ToString(e.Data["side"])).
			Add(cast.ToFloat64(e.Data["rows"]))
	case annotations.PushdownRewrite:
		m.PushdownTotal.WithLabelValues("rewrite").Inc()
	case annotations.PushdownSkipped:
		m.PushdownTotal.WithLabelValues("skipped").Inc()
	case annotations.PushdownEmptyLHS:
		m.PushdownTotal.WithLabelValues("empty-left").Inc()
	case annotations.SourceScan:
		m.SourceRows.WithLabelValues(cast.ToString(e.Data["source"]), cast.ToString(e.Data["access"])).
			Add(cast.ToFloat64(e.Data["rows"]))
	}
}

// WriteText dumps every collected metric in the text exposition format
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
