// Package executor holds what the engine consumes from its host: the
// execution context (logger, row-scan limits, setting lookup,
// materialization policy, annotation collector) plus small execution
// utilities shared by joins and tools.
package executor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cast"

	"github.com/wbrown/janus-rowflow/rowflow/annotations"
	"github.com/wbrown/janus-rowflow/rowflow/logging"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
)

// ErrRowLimitExceeded is returned once sources have scanned more rows than
// the context allows
var ErrRowLimitExceeded = errors.New("row scan limit exceeded")

// Setting keys understood by the engine
const (
	SettingBatchSize        = "batch.size"
	SettingMaxScannedRows   = "scan.max_rows"
	SettingPushdownEnabled  = "pushdown.enabled"
	SettingApplyParallelism = "apply.parallelism"
)

// Settings is the default-setting lookup supplied by the host
type Settings interface {
	Lookup(key string) (any, bool)
}

// MapSettings is an in-memory Settings
type MapSettings map[string]any

func (m MapSettings) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// Context is the execution context handed to every source and join. It is
// safe for concurrent use.
type Context struct {
	logger    *logging.Logger
	collector *annotations.Collector
	settings  Settings
	policy    materialize.Policy
	opts      Options
	scanned   atomic.Int64
}

// NewContext builds a context. Unset options fall back to the settings,
// then to defaults.
func NewContext(opts Options) *Context {
	c := &Context{
		logger:   opts.Logger,
		settings: opts.Settings,
		policy:   opts.Policy,
		opts:     opts,
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.settings == nil {
		c.settings = MapSettings{}
	}
	if c.policy == nil {
		c.policy = materialize.MemoryPolicy{}
	}
	if opts.Handler != nil || opts.CollectEvents {
		c.collector = annotations.NewCollector(opts.Handler)
	}
	return c
}

// Background returns a context with all defaults
func Background() *Context { return NewContext(Options{}) }

func (c *Context) Logger() *logging.Logger { return c.logger }

// Collector returns the annotation collector, nil when annotations are off
func (c *Context) Collector() *annotations.Collector { return c.collector }

func (c *Context) Policy() materialize.Policy { return c.policy }

// Setting looks a key up in the host settings
func (c *Context) Setting(key string) (any, bool) { return c.settings.Lookup(key) }

// IntSetting returns an integer setting or def when unset or unparsable
func (c *Context) IntSetting(key string, def int) int {
	v, ok := c.settings.Lookup(key)
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// BoolSetting returns a boolean setting or def when unset or unparsable
func (c *Context) BoolSetting(key string, def bool) bool {
	v, ok := c.settings.Lookup(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// BatchSize is the preferred number of rows per fetched batch
func (c *Context) BatchSize() int {
	if c.opts.BatchSize > 0 {
		return c.opts.BatchSize
	}
	if n := c.IntSetting(SettingBatchSize, DefaultBatchSize); n > 0 {
		return n
	}
	return DefaultBatchSize
}

// MaxScannedRows is the row-scan limit, 0 for unlimited
func (c *Context) MaxScannedRows() int64 {
	if c.opts.MaxScannedRows > 0 {
		return c.opts.MaxScannedRows
	}
	return int64(max(c.IntSetting(SettingMaxScannedRows, 0), 0))
}

// PushdownEnabled reports whether joins may narrow their right side
func (c *Context) PushdownEnabled() bool {
	if c.opts.DisablePushdown {
		return false
	}
	return c.BoolSetting(SettingPushdownEnabled, true)
}

// ApplyParallelism is the number of per-row right sides a correlated apply
// may fetch at once
func (c *Context) ApplyParallelism() int {
	if c.opts.ApplyParallelism > 0 {
		return c.opts.ApplyParallelism
	}
	return max(c.IntSetting(SettingApplyParallelism, 1), 1)
}

// CheckScan records n rows read by a source and fails once the total goes
// over the limit
func (c *Context) CheckScan(n int) error {
	total := c.scanned.Add(int64(n))
	if limit := c.MaxScannedRows(); limit > 0 && total > limit {
		return fmt.Errorf("%w: scanned %d rows, limit %d", ErrRowLimitExceeded, total, limit)
	}
	return nil
}

// Scanned is the number of rows recorded by CheckScan so far
func (c *Context) Scanned() int64 { return c.scanned.Load() }

// Annotate records an event when annotations are on
func (c *Context) Annotate(name string, start time.Time, data map[string]any) {
	if c.collector == nil {
		return
	}
	c.collector.AddTiming(name, start, data)
}
