package agent

import (
	"time"

	"github.com/haasonsaas/agentcore/internal/eventbus"
)

// RunStats aggregates one Execute run's iteration count, token usage,
// tool wall time, and error count, mirroring the teacher's
// event_emitter.go RunStats shape.
type RunStats struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	WallTime     time.Duration
	Iterations   int
	ToolCalls    int
	ToolWallTime time.Duration
	Errors       int
	Compactions  int
	Cancelled    bool
}

// StatsCollector accumulates RunStats by subscribing to an Agent's Event
// Bus — a built-in, zero-cost-if-unused consumer of the same event
// stream an external observer sees, per SPEC_FULL.md section 12.
type StatsCollector struct {
	stats      RunStats
	toolStarts map[string]time.Time
}

// NewStatsCollector builds a collector and wires its listeners onto bus.
// The returned collector's Stats() reflects every event the bus has
// delivered since this call.
func NewStatsCollector(bus *eventbus.Bus) *StatsCollector {
	c := &StatsCollector{
		stats:      RunStats{StartedAt: time.Now().UTC()},
		toolStarts: make(map[string]time.Time),
	}
	bus.On(eventbus.EventType(EventStatus), c.onStatus)
	bus.On(eventbus.EventType(EventToolCallResult), c.onToolResult)
	bus.On(eventbus.EventType(EventCompaction), c.onCompaction)
	bus.On(eventbus.EventType(EventError), c.onError)
	return c
}

func (c *StatsCollector) onStatus(payload any) {
	ev, ok := payload.(Event)
	if !ok {
		return
	}
	switch ev.RunStatus {
	case StatusThinking:
		c.stats.Iterations++
	case StatusCompleted, StatusFailed, StatusAborted:
		c.stats.FinishedAt = time.Now().UTC()
		c.stats.WallTime = c.stats.FinishedAt.Sub(c.stats.StartedAt)
		if ev.RunStatus == StatusAborted {
			c.stats.Cancelled = true
		}
		if ev.RunStatus == StatusFailed {
			c.stats.Errors++
		}
	}
}

func (c *StatsCollector) onToolResult(payload any) {
	ev, ok := payload.(Event)
	if !ok {
		return
	}
	c.stats.ToolCalls++
	if ev.Status == "error" {
		c.stats.Errors++
	}
}

func (c *StatsCollector) onCompaction(payload any) {
	c.stats.Compactions++
}

func (c *StatsCollector) onError(payload any) {
	c.stats.Errors++
}

// Stats returns a copy of the accumulated statistics.
func (c *StatsCollector) Stats() RunStats {
	stats := c.stats
	if stats.FinishedAt.IsZero() {
		stats.FinishedAt = time.Now().UTC()
		stats.WallTime = stats.FinishedAt.Sub(stats.StartedAt)
	}
	return stats
}
