package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolver_RejectsEscape(t *testing.T) {
	r := Resolver{Root: t.TempDir()}
	_, err := r.Resolve("../../etc/passwd")
	assert.Error(t, err)
}

func TestResolver_AllowsNested(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	r := Resolver{Root: dir}
	resolved, err := r.Resolve("a/b/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "b", "file.txt"), resolved)
}

func TestReadFileTool_ReturnsContent(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "x.txt", "hello world")
	tool := NewReadFileTool(dir)
	params, _ := json.Marshal(map[string]any{"path": "x.txt"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hello world", res.Output)
}

func TestReadFileTool_MissingFile(t *testing.T) {
	tool := NewReadFileTool(t.TempDir())
	params, _ := json.Marshal(map[string]any{"path": "missing.txt"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestWriteFileTool_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	tool := NewWriteFileTool(dir)
	params, _ := json.Marshal(map[string]any{"path": "new/nested.txt", "content": "data"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)

	data, err := os.ReadFile(filepath.Join(dir, "new", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestPreciseReplaceTool_ReplacesOnLine(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "line one\nline two\nline three\n")
	tool := NewPreciseReplaceTool(dir)
	params, _ := json.Marshal(map[string]any{"path": "f.txt", "line": 2, "oldText": "two", "newText": "TWO"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "line one\nline TWO\nline three\n", string(data))
}

func TestPreciseReplaceTool_OldTextNotFoundFails(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "line one\n")
	tool := NewPreciseReplaceTool(dir)
	params, _ := json.Marshal(map[string]any{"path": "f.txt", "line": 1, "oldText": "nope", "newText": "x"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestBatchReplaceTool_OperatesAgainstOriginalContent(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "foo bar\nbaz qux\n")
	tool := NewBatchReplaceTool(dir)
	params, _ := json.Marshal(map[string]any{
		"path": "f.txt",
		"replacements": []map[string]any{
			{"line": 1, "oldText": "foo", "newText": "FOO"},
			{"line": 1, "oldText": "bar", "newText": "BAR"},
			{"line": 2, "oldText": "qux", "newText": "QUX"},
		},
	})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Metadata["modifiedCount"])
	assert.Equal(t, 0, res.Metadata["failedCount"])

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "FOO BAR\nbaz QUX\n", string(data))
}

func TestBatchReplaceTool_PartialFailureStillWrites(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "alpha\nbeta\n")
	tool := NewBatchReplaceTool(dir)
	params, _ := json.Marshal(map[string]any{
		"path": "f.txt",
		"replacements": []map[string]any{
			{"line": 1, "oldText": "alpha", "newText": "ALPHA"},
			{"line": 2, "oldText": "nonexistent", "newText": "X"},
		},
	})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Metadata["modifiedCount"])
	assert.Equal(t, 1, res.Metadata["failedCount"])

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "ALPHA\nbeta\n", string(data))
}

func TestBatchReplaceTool_EmptyReplacementsRejected(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "content\n")
	tool := NewBatchReplaceTool(dir)
	params, _ := json.Marshal(map[string]any{"path": "f.txt", "replacements": []map[string]any{}})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeEmptyReplacements, res.Metadata["error"])

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "content\n", string(data))
}

func TestBatchReplaceTool_PreservesCRLF(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "one\r\ntwo\r\n")
	tool := NewBatchReplaceTool(dir)
	params, _ := json.Marshal(map[string]any{
		"path": "f.txt",
		"replacements": []map[string]any{
			{"line": 2, "oldText": "two", "newText": "TWO"},
		},
	})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "one\r\nTWO\r\n", string(data))
}

func TestBatchReplaceTool_SameLineEditsDoNotCascade(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "cat dog\n")
	tool := NewBatchReplaceTool(dir)
	params, _ := json.Marshal(map[string]any{
		"path": "f.txt",
		"replacements": []map[string]any{
			// op1's replacement text itself contains "dog", the substring
			// op2 is looking for. A correct implementation matches op2
			// against the ORIGINAL line ("cat dog"'s one "dog"), not the
			// buffer op1 already rewrote, so only that original
			// occurrence becomes "cow" — the two replacements it
			// introduces are left alone.
			{"line": 1, "oldText": "cat", "newText": "dog eats dog"},
			{"line": 1, "oldText": "dog", "newText": "cow"},
		},
	})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Metadata["modifiedCount"])

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "dog eats dog cow\n", string(data))
}

func TestBatchReplaceTool_EscapesRegexReplacementMetacharacters(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "price: X\n")
	tool := NewBatchReplaceTool(dir)
	params, _ := json.Marshal(map[string]any{
		"path": "f.txt",
		"replacements": []map[string]any{
			{"line": 1, "oldText": "X", "newText": "$1 and $&"},
		},
	})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "price: $1 and $&\n", string(data))
}
