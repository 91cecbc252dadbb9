package eventbus

import (
	"sync"
	"time"
)

// Event type names for publishers that emit this package's own payload
// types and feed Stats. The agent loop (C8) does not publish these names:
// it emits its own agent.EventType values, of which only "error"
// coincides with EventError.
const (
	EventTurnStarted   EventType = "turn.started"
	EventTurnFinished  EventType = "turn.finished"
	EventToolCallStart EventType = "tool.call.started"
	EventToolCallDone  EventType = "tool.call.finished"
	EventUsage         EventType = "usage"
	EventError         EventType = "error"
)

// ToolCallFinishedPayload is the payload for EventToolCallDone.
type ToolCallFinishedPayload struct {
	ToolName string
	Duration time.Duration
	IsError  bool
}

// UsagePayload is the payload for EventUsage.
type UsagePayload struct {
	PromptTokens     int
	CompletionTokens int
}

// Stats aggregates run statistics observed purely by listening to the
// same Bus external subscribers see — it has no privileged access to
// the agent loop, mirroring the teacher's StatsCollector pattern of
// deriving RunStats entirely from emitted events rather than the loop
// calling into it directly.
type Stats struct {
	mu sync.Mutex

	Turns            int
	ToolCalls        int
	ToolErrors       int
	ToolWallTime     time.Duration
	PromptTokens     int
	CompletionTokens int
	Errors           int
}

// NewStats builds a Stats collector and subscribes it to bus. Its
// listeners are closures over fixed function literals, which Bus.On keys
// by those literals: a second NewStats on the same bus registers nothing,
// and that second Stats receives no events.
func NewStats(bus *Bus) *Stats {
	s := &Stats{}
	bus.On(EventTurnStarted, func(any) {
		s.mu.Lock()
		s.Turns++
		s.mu.Unlock()
	})
	bus.On(EventToolCallDone, func(payload any) {
		p, ok := payload.(ToolCallFinishedPayload)
		if !ok {
			return
		}
		s.mu.Lock()
		s.ToolCalls++
		s.ToolWallTime += p.Duration
		if p.IsError {
			s.ToolErrors++
		}
		s.mu.Unlock()
	})
	bus.On(EventUsage, func(payload any) {
		p, ok := payload.(UsagePayload)
		if !ok {
			return
		}
		s.mu.Lock()
		s.PromptTokens += p.PromptTokens
		s.CompletionTokens += p.CompletionTokens
		s.mu.Unlock()
	})
	bus.On(EventError, func(any) {
		s.mu.Lock()
		s.Errors++
		s.mu.Unlock()
	})
	return s
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Turns:            s.Turns,
		ToolCalls:        s.ToolCalls,
		ToolErrors:       s.ToolErrors,
		ToolWallTime:     s.ToolWallTime,
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
		Errors:           s.Errors,
	}
}
