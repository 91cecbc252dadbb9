package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its message argument" }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"message": {"type": "string"}},
		"required": ["message"]
	}`)
}
func (echoTool) Execute(_ context.Context, rawArgs json.RawMessage) (Result, error) {
	var args struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(rawArgs, &args)
	return Result{Success: true, Output: args.Message}, nil
}

type slowTool struct{ delay time.Duration }

func (s slowTool) Name() string                 { return "slow" }
func (s slowTool) Description() string          { return "sleeps" }
func (s slowTool) Schema() json.RawMessage       { return json.RawMessage(`{"type":"object"}`) }
func (s slowTool) Timeout() (time.Duration, bool) { return 20 * time.Millisecond, true }
func (s slowTool) Execute(ctx context.Context, _ json.RawMessage) (Result, error) {
	select {
	case <-time.After(s.delay):
		return Result{Success: true, Output: "done"}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type panicTool struct{}

func (panicTool) Name() string                 { return "panics" }
func (panicTool) Description() string          { return "panics" }
func (panicTool) Schema() json.RawMessage       { return json.RawMessage(`{"type":"object"}`) }
func (panicTool) Execute(context.Context, json.RawMessage) (Result, error) {
	panic("boom")
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(echoTool{})
	r.Register(slowTool{delay: 200 * time.Millisecond})
	r.Register(panicTool{})
	return r
}

func TestInvoke_Success(t *testing.T) {
	r := newTestRegistry()
	res := r.Invoke(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`), false)
	assert.True(t, res.Success)
	assert.Equal(t, "hi", res.Output)
}

func TestInvoke_NotFound(t *testing.T) {
	r := newTestRegistry()
	res := r.Invoke(context.Background(), "nope", nil, false)
	require.False(t, res.Success)
	assert.Equal(t, ErrCodeToolNotFound, res.Metadata["error"])
}

func TestInvoke_InvalidJSON(t *testing.T) {
	r := newTestRegistry()
	res := r.Invoke(context.Background(), "echo", json.RawMessage(`{not json`), false)
	require.False(t, res.Success)
	assert.Equal(t, ErrCodeInvalidArgs, res.Metadata["error"])
}

func TestInvoke_SchemaViolation(t *testing.T) {
	r := newTestRegistry()
	res := r.Invoke(context.Background(), "echo", json.RawMessage(`{}`), false)
	require.False(t, res.Success)
	assert.Equal(t, ErrCodeSchemaViolation, res.Metadata["error"])
}

func TestInvoke_PlanModeBlocksBlocklistedTool(t *testing.T) {
	r := NewRegistry()
	r.Register(bashToolForTest{})
	res := r.Invoke(context.Background(), "bash", json.RawMessage(`{"command":"ls"}`), true)
	require.False(t, res.Success)
	assert.Equal(t, ErrCodeForbiddenInPlan, res.Metadata["error"])
}

func TestInvoke_PlanModeAllowsAllowlistedTool(t *testing.T) {
	r := NewRegistry()
	r.Register(readFileToolForTest{})
	res := r.Invoke(context.Background(), "read_file", json.RawMessage(`{}`), true)
	assert.True(t, res.Success)
}

func TestInvoke_TimeoutProducesExecutionFailed(t *testing.T) {
	r := newTestRegistry()
	res := r.Invoke(context.Background(), "slow", nil, false)
	require.False(t, res.Success)
	assert.Equal(t, ErrCodeExecutionFailed, res.Metadata["error"])
}

func TestInvoke_PanicIsContained(t *testing.T) {
	r := newTestRegistry()
	res := r.Invoke(context.Background(), "panics", nil, false)
	require.False(t, res.Success)
	assert.Equal(t, ErrCodeExecutionFailed, res.Metadata["error"])
}

type bashToolForTest struct{}

func (bashToolForTest) Name() string                 { return "bash" }
func (bashToolForTest) Description() string          { return "runs a shell command" }
func (bashToolForTest) Schema() json.RawMessage       { return json.RawMessage(`{"type":"object"}`) }
func (bashToolForTest) Execute(context.Context, json.RawMessage) (Result, error) {
	return Result{Success: true}, nil
}

type readFileToolForTest struct{}

func (readFileToolForTest) Name() string                 { return "read_file" }
func (readFileToolForTest) Description() string          { return "reads a file" }
func (readFileToolForTest) Schema() json.RawMessage       { return json.RawMessage(`{"type":"object"}`) }
func (readFileToolForTest) Execute(context.Context, json.RawMessage) (Result, error) {
	return Result{Success: true}, nil
}
