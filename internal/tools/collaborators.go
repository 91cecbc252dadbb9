package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/haasonsaas/agentcore/internal/plans"
)

// PlanCreateTool persists a markdown plan for the current session via the
// Plan Artifact Store, the write side of the read-only Plan Mode surface.
type PlanCreateTool struct {
	store *plans.Store
}

func NewPlanCreateTool(store *plans.Store) *PlanCreateTool {
	return &PlanCreateTool{store: store}
}

func (t *PlanCreateTool) Name() string        { return "plan_create" }
func (t *PlanCreateTool) Description() string { return "Create or replace the plan document for a session." }
func (t *PlanCreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"session_id": {"type": "string", "minLength": 1},
			"content": {"type": "string", "minLength": 1}
		},
		"required": ["session_id", "content"]
	}`)
}

func (t *PlanCreateTool) Execute(_ context.Context, rawArgs json.RawMessage) (Result, error) {
	var args struct {
		SessionID string `json:"session_id"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult(ErrCodeInvalidArgs, err.Error(), nil), nil
	}
	plan, err := t.store.Create(args.SessionID, args.Content, nil)
	if err != nil {
		return errorResult(ErrCodeExecutionFailed, err.Error(), nil), nil
	}
	return Result{Success: true, Output: fmt.Sprintf("plan saved for session %s", plan.SessionID)}, nil
}

// TaskReadTool reads back a previously written plan for a session, the
// read side paired with PlanCreateTool; both are on the Plan Mode
// allowlist.
type TaskReadTool struct {
	store *plans.Store
}

func NewTaskReadTool(store *plans.Store) *TaskReadTool {
	return &TaskReadTool{store: store}
}

func (t *TaskReadTool) Name() string        { return "task_read" }
func (t *TaskReadTool) Description() string { return "Read the plan document for a session." }
func (t *TaskReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"session_id": {"type": "string", "minLength": 1}},
		"required": ["session_id"]
	}`)
}

func (t *TaskReadTool) Execute(_ context.Context, rawArgs json.RawMessage) (Result, error) {
	var args struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult(ErrCodeInvalidArgs, err.Error(), nil), nil
	}
	plan, err := t.store.Load(args.SessionID)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(ErrCodeExecutionFailed, "no plan exists for session", nil), nil
		}
		return errorResult(ErrCodeExecutionFailed, err.Error(), nil), nil
	}
	return Result{Success: true, Output: plan.Content}, nil
}

// SkillSource resolves a named skill to its instruction text. Wiring a
// concrete skill library (file-backed, registry-backed, etc.) is left to
// the caller; SkillTool itself is a thin dispatch shim.
type SkillSource interface {
	Skill(name string) (string, bool)
}

// SkillTool surfaces a packaged set of instructions by name, mirroring the
// read-only "skill" capability spec.md's Plan Mode allowlist names.
type SkillTool struct {
	source SkillSource
}

func NewSkillTool(source SkillSource) *SkillTool {
	return &SkillTool{source: source}
}

func (t *SkillTool) Name() string        { return "skill" }
func (t *SkillTool) Description() string { return "Load a named skill's instructions." }
func (t *SkillTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string", "minLength": 1}},
		"required": ["name"]
	}`)
}

func (t *SkillTool) Execute(_ context.Context, rawArgs json.RawMessage) (Result, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult(ErrCodeInvalidArgs, err.Error(), nil), nil
	}
	instructions, ok := t.source.Skill(args.Name)
	if !ok {
		return errorResult(ErrCodeToolNotFound, fmt.Sprintf("no skill named %q", args.Name), nil), nil
	}
	return Result{Success: true, Output: instructions}, nil
}

// Fetcher performs the actual HTTP GET a WebFetchTool wraps. Kept as an
// interface so tests can substitute a fake without making real requests,
// and so the concrete transport (with its own timeout/retry policy) is
// supplied by the caller wiring the tool into a Registry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (status int, body string, err error)
}

// WebFetchTool retrieves a single URL's content, one of the two
// "collaborator" tools spec.md treats as external services the core
// delegates to rather than implements.
type WebFetchTool struct {
	fetcher Fetcher
}

func NewWebFetchTool(fetcher Fetcher) *WebFetchTool {
	return &WebFetchTool{fetcher: fetcher}
}

func (t *WebFetchTool) Name() string        { return "web_fetch" }
func (t *WebFetchTool) Description() string { return "Fetch the contents of a URL." }
func (t *WebFetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"url": {"type": "string", "minLength": 1}},
		"required": ["url"]
	}`)
}

func (t *WebFetchTool) Execute(ctx context.Context, rawArgs json.RawMessage) (Result, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult(ErrCodeInvalidArgs, err.Error(), nil), nil
	}
	status, body, err := t.fetcher.Fetch(ctx, args.URL)
	if err != nil {
		return errorResult(ErrCodeExecutionFailed, err.Error(), nil), nil
	}
	if status >= 400 {
		return errorResult(ErrCodeExecutionFailed, fmt.Sprintf("fetch returned status %d", status), map[string]any{"status": status}), nil
	}
	return Result{Success: true, Output: body, Metadata: map[string]any{"status": status}}, nil
}

// Searcher performs the actual web search a WebSearchTool wraps.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// SearchHit is one result entry from a Searcher.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchTool issues a query against an external search provider, the
// second "collaborator" tool alongside WebFetchTool.
type WebSearchTool struct {
	searcher Searcher
}

func NewWebSearchTool(searcher Searcher) *WebSearchTool {
	return &WebSearchTool{searcher: searcher}
}

func (t *WebSearchTool) Name() string        { return "web_search" }
func (t *WebSearchTool) Description() string { return "Search the web for a query and return matching results." }
func (t *WebSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"query": {"type": "string", "minLength": 1}},
		"required": ["query"]
	}`)
}

func (t *WebSearchTool) Execute(ctx context.Context, rawArgs json.RawMessage) (Result, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult(ErrCodeInvalidArgs, err.Error(), nil), nil
	}
	hits, err := t.searcher.Search(ctx, args.Query)
	if err != nil {
		return errorResult(ErrCodeExecutionFailed, err.Error(), nil), nil
	}
	encoded, err := json.Marshal(hits)
	if err != nil {
		return errorResult(ErrCodeExecutionFailed, err.Error(), nil), nil
	}
	return Result{Success: true, Output: string(encoded), Metadata: map[string]any{"count": len(hits)}}, nil
}
