package agent

import (
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// EventType names one of the observable stream-callback events spec.md
// section 6 defines as the external protocol. These string values are
// also used verbatim as eventbus.EventType keys so an external listener
// can subscribe to the Event Bus with the same vocabulary the stream
// callback uses.
type EventType string

const (
	EventTextStart          EventType = "text-start"
	EventTextDelta          EventType = "text-delta"
	EventTextComplete       EventType = "text-complete"
	EventReasoningStart     EventType = "reasoning-start"
	EventReasoningDelta     EventType = "reasoning-delta"
	EventReasoningComplete  EventType = "reasoning-complete"
	EventToolCallCreated    EventType = "tool_call_created"
	EventToolCallStream     EventType = "tool_call_stream"
	EventToolCallResult     EventType = "tool_call_result"
	EventCodePatch          EventType = "code_patch"
	EventStatus             EventType = "status"
	EventError              EventType = "error"
	EventCompaction         EventType = "compaction"
)

// Status is the run-level state carried by a "status" event, per spec.md
// section 6's `state ∈ idle|thinking|running|completed|failed|aborted`.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusThinking  Status = "thinking"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Event is the single payload shape every stream-callback event and every
// Event Bus emission for this package carries; callers switch on Type and
// read only the fields that type populates.
type Event struct {
	Type EventType

	// text-delta / text-complete / reasoning-delta payload.
	Content string

	// tool_call_created payload: the full set of tool calls the turn's
	// assistant message carries.
	ToolCalls []models.ToolCall

	// tool_call_stream / tool_call_result payload.
	CallID   string
	Output   string
	ToolName string
	Status   models.ToolCallStatus
	Result   *tools.Result
	ExitCode *int

	// code_patch payload.
	Path string
	Diff string

	// status payload.
	RunStatus Status
	Message   string

	// error payload.
	Err   error
	Phase Phase

	// compaction payload (additive, not named in spec.md's literal event
	// list but needed to surface section 4.7's "emit compaction event").
	DroppedCount     int
	CompactionCount  int
}
