package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/backoff"
	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/eventbus"
	"github.com/haasonsaas/agentcore/internal/providers"
	"github.com/haasonsaas/agentcore/internal/stream"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Agent drives one conversation's turns against a provider, fanning out
// tool calls and persisting history, per spec.md section 4.8. One Agent
// serves one session; concurrent Execute calls on the same Agent are
// rejected rather than interleaved.
type Agent struct {
	cfg     Config
	adapter providers.Adapter

	mu              sync.Mutex
	busy            bool
	cancel          context.CancelFunc
	sessionID       string
	messages        []models.Message
	createdAt       time.Time
	compactionCount int
}

// Create resolves cfg's adapter, loads or initializes session history,
// and returns a ready Agent, mirroring spec.md section 6's
// `Agent.create(config)`.
func Create(cfg Config) (*Agent, error) {
	cfg = sanitizeConfig(cfg)

	adapter := cfg.Adapter
	if adapter == nil {
		if cfg.Registry == nil || cfg.ModelID == "" {
			return nil, ErrNoAdapter
		}
		ep, err := cfg.Registry.Resolve(cfg.ModelID)
		if err != nil {
			return nil, fmt.Errorf("agent: resolve model %q: %w", cfg.ModelID, err)
		}
		adapter = ep.Adapter
	}
	if adapter == nil {
		return nil, ErrNoAdapter
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := time.Now().UTC()
	createdAt := now
	var messages []models.Message
	if cfg.MemoryManager != nil {
		sess, err := cfg.MemoryManager.Load(sessionID)
		if err != nil {
			return nil, newCoreError(ErrCodeStorageFailed, PhaseIdle, err)
		}
		messages = sess.Messages
		if !sess.CreatedAt.IsZero() {
			createdAt = sess.CreatedAt
		}
	}

	if len(messages) == 0 && cfg.SystemPrompt != "" {
		messages = append(messages, models.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      models.RoleSystem,
			Content:   cfg.SystemPrompt,
			CreatedAt: now,
		})
	}

	return &Agent{
		cfg:       cfg,
		adapter:   adapter,
		sessionID: sessionID,
		messages:  messages,
		createdAt: createdAt,
	}, nil
}

// GetSessionID returns the session this Agent drives.
func (a *Agent) GetSessionID() string { return a.sessionID }

// GetMessages returns a snapshot of the in-memory history.
func (a *Agent) GetMessages() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Abort cancels the single cancellation token backing the in-flight
// Execute call, if any. A no-op when no call is running.
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Execute drives one user turn through to completion: Preparing,
// Calling/Processing (with retry-with-backoff as a unit), optional
// ToolDispatch rounds, and a terminal Done/Aborted/Failed outcome. Only
// one Execute call may be in flight per Agent; a concurrent call is
// rejected with ErrAgentBusy.
func (a *Agent) Execute(ctx context.Context, query string) (models.AssembledMessage, error) {
	if !a.acquire() {
		return models.AssembledMessage{}, newCoreError(ErrCodeAgentBusy, PhaseIdle, ErrAgentBusy)
	}
	defer a.release()

	execCtx, cancel := context.WithCancel(ctx)
	a.setCancel(cancel)
	defer func() {
		cancel()
		a.setCancel(nil)
	}()

	phase := PhasePreparing
	if query != "" {
		a.appendMessage(models.Message{
			ID:        uuid.NewString(),
			SessionID: a.sessionID,
			Role:      models.RoleUser,
			Content:   query,
			CreatedAt: time.Now().UTC(),
		})
	}

	if err := a.maybeCompact(execCtx); err != nil {
		return a.fail(err, phase)
	}

	for {
		phase = PhaseCalling
		a.emitStatus(StatusThinking, "")

		assembled, err := a.callWithRetry(execCtx, &phase)
		if err != nil {
			if providers.IsAborted(err) {
				a.cfg.Logger.Warn("agent: execute aborted", "session", a.sessionID, "phase", phase)
				a.emitStatus(StatusAborted, err.Error())
				return models.AssembledMessage{}, err
			}
			return a.fail(err, phase)
		}

		switch assembled.FinishReason {
		case models.FinishContentFilter:
			cerr := newCoreError(ErrCodeContentFiltered, PhaseProcessing, errors.New("response withheld by content filter"))
			return a.fail(cerr, PhaseProcessing)

		case models.FinishToolCalls:
			a.appendAssistantMessage(assembled)
			if err := a.persist(); err != nil {
				return a.fail(err, PhaseToolDispatch)
			}
			a.emit(Event{Type: EventToolCallCreated, ToolCalls: assembled.ToolCalls})

			phase = PhaseToolDispatch
			if err := a.dispatchTools(execCtx, assembled.ToolCalls); err != nil {
				a.emitStatus(StatusAborted, err.Error())
				return models.AssembledMessage{}, err
			}
			if err := a.persist(); err != nil {
				return a.fail(err, PhaseToolDispatch)
			}
			continue

		default:
			// "stop", "length", and any unrecognized vendor reason all
			// terminate the turn the same way: the assembled message is
			// the final answer.
			a.appendAssistantMessage(assembled)
			if err := a.persist(); err != nil {
				return a.fail(err, PhaseDone)
			}
			a.emitStatus(StatusCompleted, "")
			return assembled, nil
		}
	}
}

func (a *Agent) fail(err error, phase Phase) (models.AssembledMessage, error) {
	a.cfg.Logger.Error("agent: execute failed", "session", a.sessionID, "phase", phase, "error", err)
	a.emitError(err, phase)
	a.emitStatus(StatusFailed, err.Error())
	return models.AssembledMessage{}, err
}

// callWithRetry wraps one Calling+Processing unit with the retry policy
// spec.md section 4.8 describes: exponential backoff with jitter (or a
// provider-supplied Retry-After), up to MaxRetries, never retrying an
// aborted or terminal classification.
func (a *Agent) callWithRetry(ctx context.Context, phase *Phase) (models.AssembledMessage, error) {
	for attempt := 0; ; attempt++ {
		assembled, err := a.callOnce(ctx, phase)
		if err == nil {
			return assembled, nil
		}
		if providers.IsAborted(err) {
			return models.AssembledMessage{}, err
		}
		if !providers.IsRetryable(err) {
			return models.AssembledMessage{}, err
		}
		if attempt >= a.cfg.MaxRetries {
			return models.AssembledMessage{}, newCoreError(ErrCodeMaxRetries, PhaseCalling, err)
		}

		*phase = PhaseRetrying
		delay := backoff.Compute(a.cfg.BackoffPolicy, attempt, retryAfter(err), nil)
		a.cfg.Logger.Warn("agent: retrying after provider error", "session", a.sessionID, "attempt", attempt+1, "delay", delay, "error", err)
		if sleepErr := backoff.Sleep(ctx, delay); sleepErr != nil {
			return models.AssembledMessage{}, newCoreError(ErrCodeAborted, PhaseRetrying, sleepErr)
		}
		*phase = PhaseCalling
	}
}

func retryAfter(err error) time.Duration {
	if e, ok := providers.AsError(err); ok {
		return e.RetryAfter
	}
	return 0
}

// callOnce issues a single streaming completion call and drives the
// Stream Processor over its chunks, forwarding lifecycle and delta
// events as they occur.
func (a *Agent) callOnce(ctx context.Context, phase *Phase) (models.AssembledMessage, error) {
	*phase = PhaseCalling
	req := a.buildRequest()

	st, err := a.adapter.Open(ctx, req)
	if err != nil {
		return models.AssembledMessage{}, err
	}
	defer st.Close()

	*phase = PhaseProcessing

	var proc *stream.Processor
	proc = stream.New(func(ev stream.LifecycleEvent) {
		switch ev.From {
		case stream.PhaseReasoningOpen:
			a.emit(Event{Type: EventReasoningComplete, Content: proc.Assembled().Reasoning})
		case stream.PhaseTextOpen:
			a.emit(Event{Type: EventTextComplete, Content: proc.Assembled().Text})
		}
		switch ev.To {
		case stream.PhaseReasoningOpen:
			a.emit(Event{Type: EventReasoningStart})
		case stream.PhaseTextOpen:
			a.emit(Event{Type: EventTextStart})
		}
	})

	for {
		chunk, nextErr := st.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return models.AssembledMessage{}, nextErr
		}

		done, feedErr := proc.Feed(chunk)
		if feedErr != nil {
			return models.AssembledMessage{}, feedErr
		}

		switch chunk.Kind {
		case models.ChunkReasoningDelta:
			a.emit(Event{Type: EventReasoningDelta, Content: chunk.Delta})
		case models.ChunkTextDelta:
			a.emit(Event{Type: EventTextDelta, Content: chunk.Delta})
		}
		if done {
			break
		}
	}

	assembled := proc.Assembled()
	if assembled.Truncated {
		return models.AssembledMessage{}, newCoreError(ErrCodeBufferOverflow, PhaseProcessing,
			errors.New("turn exceeded per-turn buffer budget"))
	}
	return assembled, nil
}

// buildRequest splits the leading system-role run out of history into
// CompletionRequest.System (so adapters that synthesize their own system
// wire message never double it up) and advertises every registered
// tool's schema.
func (a *Agent) buildRequest() providers.CompletionRequest {
	a.mu.Lock()
	system, rest := splitSystemPrefix(a.messages)
	a.mu.Unlock()

	toolList := a.cfg.ToolRegistry.List()
	specs := make([]providers.ToolSpec, len(toolList))
	for i, t := range toolList {
		specs[i] = providers.ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()}
	}

	return providers.CompletionRequest{
		Model:        a.cfg.ModelID,
		System:       system,
		Messages:     rest,
		Tools:        specs,
		Temperature:  a.cfg.Temperature,
		MaxTokens:    a.cfg.MaxTokens,
		ThinkingMode: a.cfg.ThinkingMode,
		Stream:       true,
	}
}

func splitSystemPrefix(messages []models.Message) (string, []models.Message) {
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}

// dispatchTools runs every tool call concurrently (bounded by
// MaxConcurrentTools), then appends one tool-role message per call in
// the original call order, matching spec.md section 4.8 step 5's
// "collect results in call-id order".
func (a *Agent) dispatchTools(ctx context.Context, calls []models.ToolCall) error {
	results := make([]tools.Result, len(calls))
	sem := make(chan struct{}, a.cfg.MaxConcurrentTools)

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc models.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result := a.cfg.ToolRegistry.Invoke(ctx, tc.Name, tc.Input, a.cfg.PlanMode)
			results[i] = result
			a.emitToolResult(tc, result)
		}(i, tc)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return newCoreError(ErrCodeAborted, PhaseToolDispatch, ctx.Err())
	}

	for i, tc := range calls {
		result := results[i]
		msg := models.Message{
			ID:        uuid.NewString(),
			SessionID: a.sessionID,
			Role:      models.RoleTool,
			ToolResults: []models.ToolResult{{
				ToolCallID: tc.ID,
				Content:    result.Output,
				IsError:    !result.Success,
				Metadata:   result.Metadata,
			}},
			CreatedAt: time.Now().UTC(),
		}
		a.appendMessage(msg)

		if patch, ok := codePatchFromResult(result); ok {
			a.emit(patch)
		}
	}
	return nil
}

func (a *Agent) emitToolResult(tc models.ToolCall, result tools.Result) {
	status := models.ToolCallSuccess
	if !result.Success {
		status = models.ToolCallError
	}
	ev := Event{
		Type:     EventToolCallResult,
		CallID:   tc.ID,
		ToolName: tc.Name,
		Status:   status,
		Output:   result.Output,
		Result:   &result,
	}
	if code, ok := result.Metadata["exit_code"].(int); ok {
		ev.ExitCode = &code
	}
	a.emit(ev)
}

// codePatchFromResult recognizes the path/diff metadata the file-edit
// tools (write_file, precise_replace, batch_replace) attach to a
// successful Result and translates it into the code_patch stream event.
func codePatchFromResult(result tools.Result) (Event, bool) {
	if !result.Success || result.Metadata == nil {
		return Event{}, false
	}
	path, ok := result.Metadata["path"].(string)
	if !ok || path == "" {
		return Event{}, false
	}
	diff, _ := result.Metadata["diff"].(string)
	return Event{Type: EventCodePatch, Path: path, Diff: diff}, true
}

// maybeCompact runs the Context Compactor when either of its triggers
// has tripped, replacing the in-memory history with its result.
func (a *Agent) maybeCompact(ctx context.Context) error {
	if !a.cfg.EnableCompaction {
		return nil
	}
	a.mu.Lock()
	messages := append([]models.Message(nil), a.messages...)
	a.mu.Unlock()

	if !compaction.ShouldCompact(messages, a.cfg.CompactionConfig) {
		return nil
	}

	summarizer := &adapterSummarizer{adapter: a.adapter, modelID: a.cfg.ModelID}
	result, err := compaction.Compact(ctx, messages, summarizer, a.cfg.CompactionConfig)
	if err != nil {
		return newCoreError(ErrCodeCompactionFailed, PhasePreparing, err)
	}

	a.mu.Lock()
	a.messages = result.Messages
	a.compactionCount++
	count := a.compactionCount
	a.mu.Unlock()

	a.emit(Event{Type: EventCompaction, DroppedCount: result.DroppedCount, CompactionCount: count})
	return nil
}

// persist writes the current in-memory history to the Memory Store, a
// no-op when no MemoryManager was configured.
func (a *Agent) persist() error {
	if a.cfg.MemoryManager == nil {
		return nil
	}
	a.mu.Lock()
	sess := &models.Session{
		ID:        a.sessionID,
		Messages:  append([]models.Message(nil), a.messages...),
		CreatedAt: a.createdAt,
		UpdatedAt: time.Now().UTC(),
	}
	if a.compactionCount > 0 {
		t := time.Now().UTC()
		sess.CompactedAt = &t
	}
	a.mu.Unlock()

	if err := a.cfg.MemoryManager.Save(sess); err != nil {
		return newCoreError(ErrCodeStorageFailed, PhaseProcessing, err)
	}
	return nil
}

func (a *Agent) appendMessage(m models.Message) {
	a.mu.Lock()
	a.messages = append(a.messages, m)
	a.mu.Unlock()
}

func (a *Agent) appendAssistantMessage(assembled models.AssembledMessage) {
	a.appendMessage(models.Message{
		ID:        uuid.NewString(),
		SessionID: a.sessionID,
		Role:      models.RoleAssistant,
		Content:   assembled.Text,
		Reasoning: assembled.Reasoning,
		ToolCalls: assembled.ToolCalls,
		CreatedAt: time.Now().UTC(),
	})
}

func (a *Agent) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return false
	}
	a.busy = true
	return true
}

func (a *Agent) release() {
	a.mu.Lock()
	a.busy = false
	a.mu.Unlock()
}

func (a *Agent) setCancel(cancel context.CancelFunc) {
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
}

// emit forwards ev to both the configured stream callback and the Event
// Bus, so external subscribers (a StatsCollector, a UI shell) observe
// the exact same sequence a direct caller does.
func (a *Agent) emit(ev Event) {
	if a.cfg.StreamCallback != nil {
		a.cfg.StreamCallback(ev)
	}
	if a.cfg.EventBus != nil {
		a.cfg.EventBus.Emit(eventbus.EventType(ev.Type), ev)
	}
}

func (a *Agent) emitStatus(status Status, message string) {
	a.emit(Event{Type: EventStatus, RunStatus: status, Message: message})
}

func (a *Agent) emitError(err error, phase Phase) {
	a.emit(Event{Type: EventError, Err: err, Phase: phase})
}
