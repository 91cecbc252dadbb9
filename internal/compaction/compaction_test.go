package compaction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentcore/pkg/models"
)

type stubSummarizer struct {
	text string
	err  error
}

func (s stubSummarizer) Summarize(context.Context, []models.Message) (string, error) {
	return s.text, s.err
}

func buildHistory(n int) []models.Message {
	out := []models.Message{{Role: models.RoleSystem, Content: "be terse"}}
	for i := 0; i < n; i++ {
		out = append(out, models.Message{ID: string(rune('a' + i%26)), Role: models.RoleUser, Content: "hi"})
	}
	return out
}

func TestShouldCompact_MessageCountTrigger(t *testing.T) {
	opts := Options{KeepMessagesThreshold: 40}
	assert.False(t, ShouldCompact(buildHistory(10), opts))
	assert.True(t, ShouldCompact(buildHistory(40), opts))
}

func TestShouldCompact_TokenRatioTrigger(t *testing.T) {
	opts := Options{TriggerRatio: 0.9, ModelContextLimit: 40}
	big := models.Message{Role: models.RoleUser, Content: string(make([]byte, 400))}
	assert.True(t, ShouldCompact([]models.Message{big}, opts))
}

func TestCompact_RetainsSystemPrefixAndTail(t *testing.T) {
	messages := buildHistory(50)
	opts := Options{KeepMessagesThreshold: 40, TailSize: 10}

	result, err := Compact(context.Background(), messages, stubSummarizer{text: "recap"}, opts)
	require.NoError(t, err)

	// system + summary + 10-message tail, matching scenario S5's shape.
	require.Len(t, result.Messages, 12)
	assert.Equal(t, models.RoleSystem, result.Messages[0].Role)
	assert.Equal(t, "recap", result.Messages[1].Content)
	assert.Equal(t, true, result.Messages[1].Metadata[SummaryMetadataKey])
	assert.Equal(t, messages[len(messages)-10:], result.Messages[2:])
}

func TestCompact_PreservesToolCallResultPairingAcrossBoundary(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "list files"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "bash"}}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "c1", Content: "a.txt"}}},
		{Role: models.RoleAssistant, Content: "done"},
	}
	// A naive tail window of 2 would start mid tool-result; the pairing
	// invariant must walk it back to include the originating tool call.
	opts := Options{KeepMessagesThreshold: 5, TailSize: 2}

	result, err := Compact(context.Background(), messages, stubSummarizer{text: "recap"}, opts)
	require.NoError(t, err)

	var sawCall, sawResult bool
	for _, m := range result.Messages {
		if m.Role == models.RoleAssistant {
			for _, tc := range m.ToolCalls {
				if tc.ID == "c1" {
					sawCall = true
				}
			}
		}
		if m.Role == models.RoleTool {
			for _, tr := range m.ToolResults {
				if tr.ToolCallID == "c1" {
					sawResult = true
				}
			}
		}
	}
	assert.Equal(t, sawCall, sawResult, "tool call and its result must be retained together")
}

func TestCompact_NoopWhenTailCoversEverything(t *testing.T) {
	messages := buildHistory(3)
	opts := Options{KeepMessagesThreshold: 40, TailSize: 20}
	result, err := Compact(context.Background(), messages, stubSummarizer{text: "recap"}, opts)
	require.NoError(t, err)
	assert.Equal(t, messages, result.Messages)
	assert.Zero(t, result.DroppedCount)
}
