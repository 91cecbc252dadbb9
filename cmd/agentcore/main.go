// Command agentcore is a thin terminal harness for the Agent Execution
// Core. It is not a product surface: one flag-parsed invocation wires a
// Registry from environment variables, a tool set rooted at a workspace
// directory, and a session store, then drives a single Agent.Execute
// call, printing the streamed events to stdout as they arrive.
//
// Usage:
//
//	agentcore -model glm-4.7 -session demo -workspace . "list the files here"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/eventbus"
	"github.com/haasonsaas/agentcore/internal/plans"
	"github.com/haasonsaas/agentcore/internal/providers"
	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/tools"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("agentcore", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file; unset flags fall back to its values, then to built-in defaults")
	modelID := fs.String("model", "", "model id to resolve against the provider registry")
	sessionID := fs.String("session", "", "session id to resume; a new id is generated when empty")
	workspace := fs.String("workspace", "", "directory the file and shell tools operate under")
	dataDir := fs.String("data-dir", "", "directory sessions and plan artifacts are persisted to")
	systemPrompt := fs.String("system", "", "system prompt for a new session")
	planMode := fs.Bool("plan-mode", false, "restrict tool dispatch to read-only/planning tools")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: agentcore [flags] <query>")
		return 2
	}
	query := fs.Arg(0)

	fileCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	fileCfg = config.ApplyEnvOverrides(fileCfg, os.Getenv)

	// Flags win over the file; an empty flag value (the operator never
	// set it) falls back to whatever config.Load/ApplyEnvOverrides
	// produced.
	if *modelID == "" {
		*modelID = fileCfg.Model.ID
	}
	if *workspace == "" {
		*workspace = fileCfg.Workspace
	}
	if *dataDir == "" {
		*dataDir = fileCfg.DataDir
	}
	if *systemPrompt == "" {
		*systemPrompt = fileCfg.SystemPrompt
	}
	if !*planMode {
		*planMode = fileCfg.PlanMode
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	registry := providers.LoadProviderConfig(os.Getenv)
	if len(registry.ModelIDs()) == 0 {
		logger.Error("no provider credentials found in environment", "hint", "set GLM_API_KEY, KIMI_API_KEY, or LLM_MODEL_ID/LLM_API_KEY/LLM_BASE_URL")
		return 1
	}

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewReadFileTool(*workspace))
	toolRegistry.Register(tools.NewWriteFileTool(*workspace))
	toolRegistry.Register(tools.NewPreciseReplaceTool(*workspace))
	toolRegistry.Register(tools.NewBatchReplaceTool(*workspace))
	toolRegistry.Register(tools.NewGlobTool(*workspace))
	toolRegistry.Register(tools.NewGrepTool(*workspace))
	shellTool := tools.NewShellTool(*workspace)
	toolRegistry.Register(shellTool)
	toolRegistry.Register(tools.NewProcessStatusTool(shellTool))

	planStore := plans.New(*dataDir)
	toolRegistry.Register(tools.NewPlanCreateTool(planStore))
	toolRegistry.Register(tools.NewTaskReadTool(planStore))

	bus := eventbus.New(func(eventType eventbus.EventType, recovered any) {
		logger.Error("event listener panicked", "event", eventType, "recovered", recovered)
	})
	stats := agent.NewStatsCollector(bus)

	memory := store.New(*dataDir)

	a, err := agent.Create(agent.Config{
		Registry:         registry,
		ModelID:          *modelID,
		SystemPrompt:     *systemPrompt,
		ToolRegistry:     toolRegistry,
		MemoryManager:    memory,
		SessionID:        *sessionID,
		PlanMode:         *planMode,
		EnableCompaction: true,
		CompactionConfig: fileCfg.Compaction,
		MaxRetries:       fileCfg.MaxRetries,
		Temperature:      fileCfg.Temperature,
		MaxTokens:        fileCfg.MaxTokens,
		EventBus:         bus,
		Logger:           logger,
		StreamCallback:   printEvent,
	})
	if err != nil {
		logger.Error("failed to create agent", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		a.Abort()
	}()

	if _, err := a.Execute(ctx, query); err != nil {
		logger.Error("execute failed", "session", a.GetSessionID(), "error", err)
		return 1
	}

	runStats := stats.Stats()
	fmt.Printf("\n--- session %s: %d iteration(s), %d tool call(s), %v ---\n",
		a.GetSessionID(), runStats.Iterations, runStats.ToolCalls, runStats.WallTime)
	return 0
}

func printEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventTextDelta, agent.EventReasoningDelta:
		fmt.Print(ev.Content)
	case agent.EventToolCallCreated:
		for _, tc := range ev.ToolCalls {
			fmt.Printf("\n[tool_call %s: %s %s]\n", tc.ID, tc.Name, string(tc.Input))
		}
	case agent.EventToolCallResult:
		fmt.Printf("[tool_result %s: %s]\n", ev.CallID, truncate(ev.Output, 200))
	case agent.EventCodePatch:
		fmt.Printf("[code_patch %s]\n%s\n", ev.Path, ev.Diff)
	case agent.EventCompaction:
		fmt.Printf("[compaction #%d, dropped %d messages]\n", ev.CompactionCount, ev.DroppedCount)
	case agent.EventStatus:
		if ev.RunStatus != agent.StatusThinking {
			fmt.Printf("\n[status: %s %s]\n", ev.RunStatus, ev.Message)
		}
	case agent.EventError:
		fmt.Printf("\n[error phase=%s: %v]\n", ev.Phase, ev.Err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
