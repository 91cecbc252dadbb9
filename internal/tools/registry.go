package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultTimeout and MaxTimeout bound per-tool execution, per spec.md
// section 4.6: "default 60s, per-tool override supported; hard cap 600s".
const (
	DefaultTimeout = 60 * time.Second
	MaxTimeout     = 600 * time.Second
)

// planModeBlocklist is matched against the tool's canonical name before
// the allowlist is even consulted, per spec.md section 4.6 step 3: these
// names are never permitted in Plan Mode regardless of any allowlist
// membership a future alias might create.
var planModeBlocklist = map[string]bool{
	"write_file":      true,
	"precise_replace": true,
	"batch_replace":   true,
	"bash":            true,
}

// planModeAllowlist is the read-only and planning surface Plan Mode
// permits, per spec.md section 4.6 step 3.
var planModeAllowlist = map[string]bool{
	"read_file":   true,
	"glob":        true,
	"grep":        true,
	"web_fetch":   true,
	"web_search":  true,
	"plan_create": true,
	"task_read":   true,
	"skill":       true,
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds every tool available to the agent loop, compiling each
// tool's declared JSON Schema once at registration time rather than on
// every call.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register compiles tool's schema and adds it under tool.Name(). A
// malformed schema is a programmer error caught at registration rather
// than surfaced per-call, so Register panics on compile failure the same
// way a bad route pattern would in an HTTP mux.
func (r *Registry) Register(tool Tool) {
	url := "tool://" + tool.Name()
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(tool.Schema())); err != nil {
		panic(fmt.Sprintf("tools: compile schema for %q: %v", tool.Name(), err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("tools: compile schema for %q: %v", tool.Name(), err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = &registeredTool{tool: tool, schema: schema}
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// List returns every registered tool, for building the provider request's
// tool-schema list.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.tool)
	}
	return out
}

// Invoke runs the spec.md section 4.6 invocation protocol end to end:
// lookup, Plan Mode gating, JSON parse, schema validation, timeout-bounded
// execution, and panic/error containment. It never returns a non-nil
// error — every failure mode is encoded in the returned Result so the
// agent loop can always append it to history and keep going.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage, planMode bool) Result {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return errorResult(ErrCodeToolNotFound, fmt.Sprintf("tool not found: %s", name), nil)
	}

	if planMode && !planModeAllows(name) {
		return errorResult(ErrCodeForbiddenInPlan, fmt.Sprintf("tool %q is not permitted in plan mode", name), nil)
	}

	var parsed any
	if len(rawArgs) == 0 {
		parsed = map[string]any{}
	} else if err := json.Unmarshal(rawArgs, &parsed); err != nil {
		return errorResult(ErrCodeInvalidArgs, fmt.Sprintf("invalid arguments: %v", err), nil)
	}

	if err := rt.schema.Validate(parsed); err != nil {
		return errorResult(ErrCodeSchemaViolation, err.Error(), map[string]any{"details": err.Error()})
	}

	return r.execute(ctx, rt.tool, rawArgs)
}

// execute runs tool.Execute under its timeout, recovering a panic into an
// EXECUTION_FAILED result so a misbehaving tool can never crash the
// agent loop or leak a Go panic across the tool boundary.
func (r *Registry) execute(ctx context.Context, tool Tool, rawArgs json.RawMessage) (result Result) {
	timeout := DefaultTimeout
	if to, ok := tool.(TimeoutOverride); ok {
		if d, has := to.Timeout(); has && d > 0 {
			timeout = d
		}
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type execOutcome struct {
		result Result
		err    error
	}
	outcome := make(chan execOutcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				outcome <- execOutcome{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		res, err := tool.Execute(toolCtx, rawArgs)
		outcome <- execOutcome{result: res, err: err}
	}()

	select {
	case <-toolCtx.Done():
		return errorResult(ErrCodeExecutionFailed, fmt.Sprintf("tool %q timed out after %s", tool.Name(), timeout), nil)
	case o := <-outcome:
		if o.err != nil {
			return errorResult(ErrCodeExecutionFailed, o.err.Error(), nil)
		}
		return o.result
	}
}

func planModeAllows(name string) bool {
	if planModeBlocklist[name] {
		return false
	}
	return planModeAllowlist[name]
}
