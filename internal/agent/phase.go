package agent

// Phase is the Agent Loop's state machine position for one Execute call,
// per spec.md section 4.8's
// Idle -> Preparing -> Calling -> Processing -> (ToolDispatch -> Calling)* -> Done
// diagram, with Retrying/Aborted/Failed as the off-path states.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePreparing   Phase = "preparing"
	PhaseCalling     Phase = "calling"
	PhaseProcessing  Phase = "processing"
	PhaseToolDispatch Phase = "tool_dispatch"
	PhaseRetrying    Phase = "retrying"
	PhaseDone        Phase = "done"
	PhaseAborted     Phase = "aborted"
	PhaseFailed      Phase = "failed"
)
