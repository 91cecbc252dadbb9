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

func TestGlobTool_MatchesRecursivePattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0o755))
	writeTestFile(t, dir, "a.go", "package a")
	writeTestFile(t, filepath.Join(dir, "pkg"), "b.go", "package pkg")
	writeTestFile(t, filepath.Join(dir, "pkg", "sub"), "c.go", "package sub")
	writeTestFile(t, dir, "readme.md", "# hi")

	tool := NewGlobTool(dir)
	params, _ := json.Marshal(map[string]any{"pattern": "**/*.go"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "a.go")
	assert.Contains(t, res.Output, "pkg/b.go")
	assert.Contains(t, res.Output, "pkg/sub/c.go")
	assert.NotContains(t, res.Output, "readme.md")
}

func TestGrepTool_FindsMatchingLines(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "x.go", "func Foo() {}\nfunc Bar() {}\n")
	tool := NewGrepTool(dir)
	params, _ := json.Marshal(map[string]any{"pattern": "func Foo"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "x.go:1:func Foo() {}")
	assert.NotContains(t, res.Output, "Bar")
}

func TestGrepTool_InvalidPatternRejected(t *testing.T) {
	tool := NewGrepTool(t.TempDir())
	params, _ := json.Marshal(map[string]any{"pattern": "("})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeInvalidArgs, res.Metadata["error"])
}

func TestGrepTool_GlobFilterRestrictsSearch(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.go", "token here")
	writeTestFile(t, dir, "b.txt", "token here")
	tool := NewGrepTool(dir)
	params, _ := json.Marshal(map[string]any{"pattern": "token", "glob": "*.go"})
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "a.go")
	assert.NotContains(t, res.Output, "b.txt")
}
