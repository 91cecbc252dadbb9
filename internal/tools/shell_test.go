package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellTool_RunsCommand(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	params, _ := json.Marshal(map[string]any{"command": "echo hello"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "hello")
}

func TestShellTool_NonZeroExitEncodesExitCode(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	params, _ := json.Marshal(map[string]any{"command": "exit 7"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "EXIT_CODE_7", res.Metadata["error"])
}

func TestShellTool_EmptyCommandRejected(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	params, _ := json.Marshal(map[string]any{"command": "   "})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeCommandRequired, res.Metadata["error"])
}

func TestShellTool_StripsANSICodes(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	params, _ := json.Marshal(map[string]any{"command": `printf '\033[31mred\033[0m text'`})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "red text", res.Output)
	assert.NotContains(t, res.Output, "\x1b")
}

func TestShellTool_TruncatesLargeOutput(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	params, _ := json.Marshal(map[string]any{"command": `head -c 20000 /dev/zero | tr '\0' 'a'`})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Metadata["truncated"].(bool))
	assert.Contains(t, res.Output, "...[truncated]...")
	assert.LessOrEqual(t, len(res.Output), maxInlineOutput+len("\n...[truncated]...\n")+8)
}

func TestShellTool_TimeoutProducesExecutionFailed(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	params, _ := json.Marshal(map[string]any{"command": "sleep 5", "timeout_seconds": 1})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeExecutionFailed, res.Metadata["error"])
}

func TestShellTool_BackgroundModeTracksProcess(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	startParams, _ := json.Marshal(map[string]any{"command": "echo background && sleep 0.05", "background": true})
	startRes, err := tool.Execute(context.Background(), startParams)
	require.NoError(t, err)
	require.True(t, startRes.Success)

	processID, _ := startRes.Metadata["process_id"].(string)
	require.NotEmpty(t, processID)

	status := NewProcessStatusTool(tool)
	time.Sleep(150 * time.Millisecond)

	statusParams, _ := json.Marshal(map[string]any{"process_id": processID})
	statusRes, err := status.Execute(context.Background(), statusParams)
	require.NoError(t, err)
	assert.True(t, statusRes.Success)
	assert.Equal(t, "exited", statusRes.Metadata["status"])
	assert.True(t, strings.Contains(statusRes.Output, "background"))
}

func TestShellTool_BackgroundUnknownProcessNotFound(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	status := NewProcessStatusTool(tool)
	params, _ := json.Marshal(map[string]any{"process_id": "does-not-exist"})
	res, err := status.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeToolNotFound, res.Metadata["error"])
}
