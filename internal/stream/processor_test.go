package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentcore/pkg/models"
)

func TestProcessor_AssemblesTextAndToolCalls(t *testing.T) {
	var events []LifecycleEvent
	p := New(func(e LifecycleEvent) { events = append(events, e) })

	_, err := p.Feed(&models.Chunk{Kind: models.ChunkTextDelta, Delta: "Hello, "})
	require.NoError(t, err)
	_, err = p.Feed(&models.Chunk{Kind: models.ChunkTextDelta, Delta: "world"})
	require.NoError(t, err)

	_, err = p.Feed(&models.Chunk{
		Kind: models.ChunkToolCallDelta, ToolCallIndex: 0,
		ToolCallID: "call_1", ToolCallName: "search", ArgsDelta: `{"q":`,
	})
	require.NoError(t, err)
	_, err = p.Feed(&models.Chunk{Kind: models.ChunkToolCallDelta, ToolCallIndex: 0, ArgsDelta: `"go"}`})
	require.NoError(t, err)

	_, err = p.Feed(&models.Chunk{Kind: models.ChunkUsage, PromptTokens: 10, CompletionTokens: 5})
	require.NoError(t, err)

	done, err := p.Feed(&models.Chunk{Kind: models.ChunkDone})
	require.NoError(t, err)
	assert.True(t, done)

	out := p.Assembled()
	assert.Equal(t, "Hello, world", out.Text)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.Equal(t, "search", out.ToolCalls[0].Name)
	assert.JSONEq(t, `{"q":"go"}`, string(out.ToolCalls[0].Input))
	assert.Equal(t, 10, out.PromptTokens)
	assert.Equal(t, 5, out.CompletionTokens)
	assert.False(t, out.Truncated)

	assert.Equal(t, PhaseTextOpen, events[0].To)
	assert.Equal(t, PhaseToolCallsOpen, events[1].To)
	assert.Equal(t, PhaseClosed, events[len(events)-1].To)
}

func TestProcessor_InterleavedToolCalls(t *testing.T) {
	p := New(nil)
	_, _ = p.Feed(&models.Chunk{Kind: models.ChunkToolCallDelta, ToolCallIndex: 1, ToolCallID: "b", ToolCallName: "write", ArgsDelta: `{"x":1}`})
	_, _ = p.Feed(&models.Chunk{Kind: models.ChunkToolCallDelta, ToolCallIndex: 0, ToolCallID: "a", ToolCallName: "read", ArgsDelta: `{"y":2}`})
	_, _ = p.Feed(&models.Chunk{Kind: models.ChunkDone})

	out := p.Assembled()
	require.Len(t, out.ToolCalls, 2)
	assert.Equal(t, "b", out.ToolCalls[0].ID)
	assert.Equal(t, "a", out.ToolCalls[1].ID)
}

func TestProcessor_TruncatesAtBudget(t *testing.T) {
	p := New(nil)
	const headMarker = "HEADMARKER"
	const tailMarker = "TAILMARKER"
	filler := strings.Repeat("x", MaxTurnBytes-len(headMarker)-len(tailMarker))
	content := headMarker + filler + tailMarker // exactly MaxTurnBytes, fits the budget

	_, err := p.Feed(&models.Chunk{Kind: models.ChunkTextDelta, Delta: content})
	require.NoError(t, err)
	_, err = p.Feed(&models.Chunk{Kind: models.ChunkTextDelta, Delta: "overflow"})
	require.NoError(t, err)
	_, _ = p.Feed(&models.Chunk{Kind: models.ChunkDone})

	out := p.Assembled()
	assert.True(t, out.Truncated)
	assert.Less(t, len(out.Text), len(content))
	assert.True(t, strings.HasPrefix(out.Text, headMarker))
	assert.True(t, strings.HasSuffix(out.Text, tailMarker))
	assert.Contains(t, out.Text, "...[truncated]...")
}

func TestProcessor_ErrorChunkStopsStream(t *testing.T) {
	p := New(nil)
	done, err := p.Feed(&models.Chunk{Kind: models.ChunkError, Err: assert.AnError})
	assert.True(t, done)
	assert.ErrorIs(t, err, assert.AnError)
}
