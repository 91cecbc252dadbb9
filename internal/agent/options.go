package agent

import (
	"log/slog"

	"github.com/haasonsaas/agentcore/internal/backoff"
	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/eventbus"
	"github.com/haasonsaas/agentcore/internal/providers"
	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/tools"
)

// Config configures Agent.Create, mirroring spec.md section 6's
// `Agent.create(config)` surface.
type Config struct {
	// Adapter, if set, is used directly instead of resolving ModelID
	// through Registry — the single-provider shortcut most callers use.
	Adapter providers.Adapter
	// Registry resolves ModelID to an Endpoint when Adapter is nil.
	Registry *providers.Registry
	// ModelID selects the model (and, via Registry, the adapter) this
	// Agent calls. Required when Adapter is nil.
	ModelID string

	SystemPrompt string

	// Stream, if false, still drives the same state machine but the
	// caller only observes the final AssembledMessage; StreamCallback is
	// still invoked when set regardless of Stream's value, matching how
	// spec.md section 6 describes streamCallback as orthogonal config.
	Stream         bool
	StreamCallback func(Event)

	ToolRegistry  *tools.Registry
	MemoryManager *store.Store
	SessionID     string

	// PlanMode gates the Tool Registry invocation per spec.md section 4.6
	// step 3: only read-only/planning tools may run.
	PlanMode bool

	EnableCompaction bool
	CompactionConfig compaction.Options

	MaxRetries   int
	BackoffPolicy backoff.Policy

	// MaxConcurrentTools bounds the fan-out width of ToolDispatch, per
	// spec.md section 4.8 step 5 ("bounded parallelism, default 4").
	MaxConcurrentTools int

	Temperature  float64
	MaxTokens    int
	ThinkingMode providers.ThinkingMode

	// EventBus, if set, additionally receives every Event this Agent
	// emits, keyed by EventType. A nil bus means only StreamCallback (if
	// any) observes the run.
	EventBus *eventbus.Bus

	Logger *slog.Logger
}

// defaultMaxRetries, defaultMaxConcurrentTools, and defaultMaxTokens match
// the illustrative defaults spec.md section 4.8 and section 4.6 name.
const (
	defaultMaxRetries         = 10
	defaultMaxConcurrentTools = 4
	defaultMaxTokens          = 4096
)

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxConcurrentTools <= 0 {
		cfg.MaxConcurrentTools = defaultMaxConcurrentTools
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.BackoffPolicy.InitialDelay <= 0 {
		cfg.BackoffPolicy = backoff.DefaultPolicy()
	}
	if cfg.ToolRegistry == nil {
		cfg.ToolRegistry = tools.NewRegistry()
	}
	if cfg.CompactionConfig.KeepMessagesThreshold <= 0 {
		cfg.CompactionConfig = compaction.DefaultOptions()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
