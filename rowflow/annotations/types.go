// Package annotations provides a low-overhead event system for tracking
// join execution, materialization and pushdown decisions.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following a hierarchical naming pattern
const (
	// Join lifecycle. The strategy name is carried in Data["join.kind"].
	JoinBegin    = "join/begin"
	JoinComplete = "join/complete"
	JoinFailed   = "join/failed"

	// Materialization of one side of a join
	MaterializeComplete = "materialize/complete"

	// Range pushdown analysis
	PushdownRewrite  = "pushdown/rewrite"
	PushdownSkipped  = "pushdown/skipped"
	PushdownEmptyLHS = "pushdown/empty-left"

	// Source scans
	SourceScan = "source/scan"
)

// Event represents a single annotation event during execution
type Event struct {
	Name    string         // Event name using the constants above
	Start   time.Time      // Start timestamp
	End     time.Time      // End timestamp
	Latency time.Duration  // Duration (End - Start)
	Data    map[string]any // Event-specific data
}

// Handler processes annotation events as they occur
type Handler func(event Event)

// Collector accumulates events during execution. A nil *Collector is valid
// and discards everything.
type Collector struct {
	handlers []Handler
	events   []Event
	mu       sync.Mutex
}

// NewCollector creates a collector forwarding each event to the handlers
func NewCollector(handlers ...Handler) *Collector {
	c := &Collector{events: make([]Event, 0, 32)}
	for _, h := range handlers {
		if h != nil {
			c.handlers = append(c.handlers, h)
		}
	}
	return c
}

// Enabled reports whether events are being collected
func (c *Collector) Enabled() bool { return c != nil }

// Add records a new event. Safe for concurrent use.
func (c *Collector) Add(event Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// handlers run outside the lock so they may add events themselves
	for _, h := range c.handlers {
		h(event)
	}
}

// AddTiming records an event that started at start and ends now
func (c *Collector) AddTiming(name string, start time.Time, data map[string]any) {
	if c == nil {
		return
	}
	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns the collected events with the given name
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears collected events, keeping the handlers
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
