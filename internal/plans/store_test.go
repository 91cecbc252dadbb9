package plans

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	plan, err := s.Create("sess-1", "# Plan\n\nStep 1", map[string]any{"owner": "agent"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", plan.SessionID)

	loaded, err := s.Load("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "# Plan\n\nStep 1", loaded.Content)
	assert.Equal(t, "agent", loaded.Metadata["owner"])
}

func TestStore_CreateOverwritesWithBackup(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	_, err := s.Create("sess-2", "v1", nil)
	require.NoError(t, err)
	_, err = s.Create("sess-2", "v2", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "sess-2.md.bak"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	loaded, err := s.Load("sess-2")
	require.NoError(t, err)
	assert.Equal(t, "v2", loaded.Content)
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Create("../escape", "x", nil)
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestStore_LoadMissingReturnsNilWithoutError(t *testing.T) {
	s := New(t.TempDir())
	plan, err := s.Load("never-created")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestStore_LoadInvalidSessionIDReturnsNilWithoutError(t *testing.T) {
	s := New(t.TempDir())
	plan, err := s.Load("../escape")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestStore_DeleteRemovesMarkdownAndMetadata(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	_, err := s.Create("sess-3", "content", map[string]any{"k": "v"})
	require.NoError(t, err)

	require.NoError(t, s.Delete("sess-3"))

	_, err = os.Stat(filepath.Join(dir, "sess-3.md"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "sess-3.meta.json"))
	assert.True(t, os.IsNotExist(err))

	plan, err := s.Load("sess-3")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestStore_DeleteMissingPlanIsNoop(t *testing.T) {
	s := New(t.TempDir())
	assert.NoError(t, s.Delete("never-created"))
}

func TestStore_DeleteInvalidSessionIDIsNoop(t *testing.T) {
	s := New(t.TempDir())
	assert.NoError(t, s.Delete("../escape"))
}

func TestStore_RejectsSessionIDOverLengthLimit(t *testing.T) {
	s := New(t.TempDir())
	longID := strings.Repeat("a", maxSessionIDLength+1)

	_, err := s.Create(longID, "x", nil)
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	plan, err := s.Load(longID)
	require.NoError(t, err)
	assert.Nil(t, plan)
}
