// Package plans implements the Plan Artifact Store (C9): a markdown
// planning document plus metadata, one per session, with the same
// session-id path-traversal validation and backup-on-overwrite
// discipline as the Memory Store.
package plans

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// ErrInvalidSessionID is returned when a session id is unsafe to use in
// a filesystem path.
var ErrInvalidSessionID = errors.New("plans: invalid session id")

// Store persists one Plan per session as "<id>.md" plus a "<id>.meta.json"
// sidecar for structured metadata, under dataDir.
type Store struct {
	dataDir string
}

// New builds a Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// maxSessionIDLength mirrors the Memory Store's bound (spec.md section 3:
// session ids are ≤128 chars).
const maxSessionIDLength = 128

func sanitizeSessionID(id string) (string, error) {
	raw := strings.TrimSpace(id)
	if raw == "" || raw == "." || raw == ".." || strings.ContainsAny(raw, "/\\") {
		return "", ErrInvalidSessionID
	}
	if len(raw) > maxSessionIDLength {
		return "", ErrInvalidSessionID
	}
	for _, r := range raw {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
		if !ok {
			return "", ErrInvalidSessionID
		}
	}
	return raw, nil
}

func (s *Store) paths(id string) (md, meta string, err error) {
	key, err := sanitizeSessionID(id)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.dataDir, key+".md"), filepath.Join(s.dataDir, key+".meta.json"), nil
}

// Create writes a new plan, overwriting any existing one for the same
// session after backing it up — matching the Memory Store's
// overwrite-on-create semantics rather than refusing a second write.
func (s *Store) Create(sessionID, content string, metadata map[string]any) (*models.Plan, error) {
	mdPath, metaPath, err := s.paths(sessionID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(mdPath), 0o700); err != nil {
		return nil, fmt.Errorf("plans: mkdir: %w", err)
	}

	now := time.Now().UTC()
	plan := &models.Plan{SessionID: sessionID, Content: content, Metadata: metadata, CreatedAt: now, UpdatedAt: now}

	if existing, err := s.Load(sessionID); err == nil && existing != nil {
		plan.CreatedAt = existing.CreatedAt
		if err := backupIfExists(mdPath); err != nil {
			return nil, fmt.Errorf("plans: backup markdown: %w", err)
		}
		if err := backupIfExists(metaPath); err != nil {
			return nil, fmt.Errorf("plans: backup metadata: %w", err)
		}
	}

	if err := writeAtomic(mdPath, []byte(content)); err != nil {
		return nil, fmt.Errorf("plans: write markdown: %w", err)
	}

	metaBytes, err := json.MarshalIndent(struct {
		SessionID string         `json:"session_id"`
		Metadata  map[string]any `json:"metadata,omitempty"`
		CreatedAt time.Time      `json:"created_at"`
		UpdatedAt time.Time      `json:"updated_at"`
	}{plan.SessionID, plan.Metadata, plan.CreatedAt, plan.UpdatedAt}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("plans: marshal metadata: %w", err)
	}
	if err := writeAtomic(metaPath, metaBytes); err != nil {
		return nil, fmt.Errorf("plans: write metadata: %w", err)
	}

	return plan, nil
}

// Load reads the plan for sessionID. Per spec.md section 4.9, an invalid
// session id or a session with no plan both return (nil, nil) — the
// filesystem is never touched for an invalid id, and absence is not an
// error condition. A non-nil error means the markdown file exists but
// could not be read.
func (s *Store) Load(sessionID string) (*models.Plan, error) {
	mdPath, metaPath, err := s.paths(sessionID)
	if err != nil {
		return nil, nil
	}

	content, err := os.ReadFile(mdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plans: read %s: %w", mdPath, err)
	}

	plan := &models.Plan{SessionID: sessionID, Content: string(content)}
	if metaBytes, err := os.ReadFile(metaPath); err == nil {
		var decoded struct {
			Metadata  map[string]any `json:"metadata,omitempty"`
			CreatedAt time.Time      `json:"created_at"`
			UpdatedAt time.Time      `json:"updated_at"`
		}
		if err := json.Unmarshal(metaBytes, &decoded); err == nil {
			plan.Metadata = decoded.Metadata
			plan.CreatedAt = decoded.CreatedAt
			plan.UpdatedAt = decoded.UpdatedAt
		}
	}
	return plan, nil
}

// Delete removes sessionID's plan (its markdown, metadata, and any
// backups), per spec.md section 4.9. An invalid session id is a no-op
// with no filesystem access attempted, same as Load; a session with no
// plan is also a no-op.
func (s *Store) Delete(sessionID string) error {
	mdPath, metaPath, err := s.paths(sessionID)
	if err != nil {
		return nil
	}

	targets := []string{mdPath, mdPath + ".bak", metaPath, metaPath + ".bak"}
	for _, p := range targets {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("plans: remove %s: %w", p, rmErr)
		}
	}
	return nil
}

func backupIfExists(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(path+".bak", data, 0o600)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
