// Package compaction implements the Context Compactor (C7): it decides
// when a session's message history has grown large enough to need
// trimming, then replaces a middle slice with a single provider-generated
// summary turn while preserving the system prefix and a recent tail.
package compaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// charsPerToken is the approximate character-to-token ratio used for the
// cheap token estimate this package needs; a full tokenizer is out of
// scope for the core's own compaction trigger.
const charsPerToken = 4

// Options configures when compaction activates and how much history it
// keeps, mirroring the two independent triggers spec.md section 4.7 names.
type Options struct {
	// KeepMessagesThreshold triggers compaction once the session holds at
	// least this many messages. Default: 40.
	KeepMessagesThreshold int
	// TriggerRatio triggers compaction once EstimateTokens(messages) /
	// ModelContextLimit reaches this fraction. Default: 0.90.
	TriggerRatio float64
	// ModelContextLimit is the provider's context window in tokens, used
	// as the denominator for TriggerRatio.
	ModelContextLimit int
	// TailSize is how many of the most recent messages to retain verbatim.
	// Default: KeepMessagesThreshold / 2.
	TailSize int
}

// DefaultOptions returns the spec's illustrative defaults.
func DefaultOptions() Options {
	return Options{
		KeepMessagesThreshold: 40,
		TriggerRatio:          0.90,
		ModelContextLimit:     128_000,
		TailSize:              20,
	}
}

func (o Options) tailSize() int {
	if o.TailSize > 0 {
		return o.TailSize
	}
	if o.KeepMessagesThreshold > 0 {
		return o.KeepMessagesThreshold / 2
	}
	return DefaultOptions().TailSize
}

// EstimateTokens approximates a message's token cost from its combined
// text, reasoning, and tool-call argument length.
func EstimateTokens(m models.Message) int {
	n := len(m.Content) + len(m.Reasoning)
	for _, tc := range m.ToolCalls {
		n += len(tc.Input)
	}
	for _, tr := range m.ToolResults {
		n += len(tr.Content)
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// EstimateTotalTokens sums EstimateTokens across every message.
func EstimateTotalTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m)
	}
	return total
}

// ShouldCompact reports whether either trigger in spec.md section 4.7 has
// tripped for the given history under opts.
func ShouldCompact(messages []models.Message, opts Options) bool {
	if opts.KeepMessagesThreshold > 0 && len(messages) >= opts.KeepMessagesThreshold {
		return true
	}
	if opts.TriggerRatio > 0 && opts.ModelContextLimit > 0 {
		ratio := float64(EstimateTotalTokens(messages)) / float64(opts.ModelContextLimit)
		if ratio >= opts.TriggerRatio {
			return true
		}
	}
	return false
}

// Summarizer produces a compact recap of a slice of messages. The agent
// package's provider-backed implementation issues a dedicated completion
// call against the same Adapter the turn loop uses, rather than wiring a
// second LLM client, and assembles its streamed chunks without forwarding
// them to the caller.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// SummaryMetadataKey marks the synthetic assistant message Compact
// produces, so callers (and the next compaction pass) can tell it apart
// from an ordinary model-generated turn.
const SummaryMetadataKey = "compaction_summary"

// Result is the outcome of one Compact call.
type Result struct {
	// Messages is the new history: system prefix + summary + tail.
	Messages []models.Message
	// DroppedCount is how many original messages were summarized away.
	DroppedCount int
}

// Compact implements spec.md section 4.7's algorithm: retain the leading
// system message(s) and the tail, summarize everything in between via
// summarizer, and splice the summary back in as a single assistant
// message. The tail boundary is adjusted backward as needed so no
// tool-result message is retained without the assistant tool-call
// message that preceded it.
func Compact(ctx context.Context, messages []models.Message, summarizer Summarizer, opts Options) (Result, error) {
	prefixEnd := systemPrefixEnd(messages)
	tailStart := tailStartRespectingToolPairs(messages, prefixEnd, opts.tailSize())

	if tailStart <= prefixEnd {
		// Nothing left to summarize; compaction would be a no-op.
		return Result{Messages: messages}, nil
	}

	middle := messages[prefixEnd:tailStart]
	summaryText, err := summarizer.Summarize(ctx, middle)
	if err != nil {
		return Result{}, fmt.Errorf("compaction: summarize: %w", err)
	}

	summary := models.Message{
		ID:        fmt.Sprintf("summary-%d", time.Now().UTC().UnixNano()),
		Role:      models.RoleAssistant,
		Content:   summaryText,
		Metadata:  map[string]any{SummaryMetadataKey: true},
		CreatedAt: time.Now().UTC(),
	}

	out := make([]models.Message, 0, prefixEnd+1+(len(messages)-tailStart))
	out = append(out, messages[:prefixEnd]...)
	out = append(out, summary)
	out = append(out, messages[tailStart:]...)

	return Result{Messages: out, DroppedCount: len(middle)}, nil
}

// systemPrefixEnd returns the index of the first non-system message,
// i.e. the length of the leading run of system messages to always keep.
func systemPrefixEnd(messages []models.Message) int {
	i := 0
	for i < len(messages) && messages[i].Role == models.RoleSystem {
		i++
	}
	return i
}

// tailStartRespectingToolPairs computes the starting index of the
// retained tail, then walks it backward past any tool-role message whose
// originating assistant tool-call would otherwise be summarized away,
// preserving the invariant that every retained tool message has its
// call in the retained window too.
func tailStartRespectingToolPairs(messages []models.Message, prefixEnd, tailSize int) int {
	tailStart := len(messages) - tailSize
	if tailStart < prefixEnd {
		tailStart = prefixEnd
	}

	for tailStart > prefixEnd && messages[tailStart].Role == models.RoleTool {
		callID := ""
		if len(messages[tailStart].ToolResults) > 0 {
			callID = messages[tailStart].ToolResults[0].ToolCallID
		}
		if callID == "" || assistantCallPresentBefore(messages, tailStart, callID) {
			tailStart--
			continue
		}
		break
	}
	return tailStart
}

func assistantCallPresentBefore(messages []models.Message, before int, callID string) bool {
	for i := 0; i < before; i++ {
		if messages[i].Role != models.RoleAssistant {
			continue
		}
		for _, tc := range messages[i].ToolCalls {
			if tc.ID == callID {
				return true
			}
		}
	}
	return false
}

// FormatForSummary renders a slice of messages into the plain-text
// transcript the summarization prompt is built from.
func FormatForSummary(messages []models.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString("[")
		sb.WriteString(string(m.Role))
		sb.WriteString("]: ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// SummaryPrompt is the dedicated instruction spec.md section 4.7 step 3
// describes: a compact recap of intents, decisions, and unresolved items.
const SummaryPrompt = "Summarize the conversation above concisely, preserving: " +
	"(1) the user's original intents and goals, (2) decisions already made, " +
	"(3) unresolved items or open questions. Omit pleasantries and routine " +
	"tool-call mechanics; focus on information a continuation of this " +
	"conversation would need."
