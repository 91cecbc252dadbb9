// Package store implements the Memory Store (C5): atomic per-session JSON
// persistence with a pre-overwrite backup, crash-safe temp-file-then-rename
// writes, corrupt-file archival and recovery, and a per-path serialized
// operation queue so concurrent callers never interleave writes to the
// same session file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// ErrInvalidSessionID is returned when a session id cannot be safely used
// to build a filesystem path (path traversal, empty, or otherwise unsafe).
var ErrInvalidSessionID = errors.New("store: invalid session id")

// ErrCorrupt is returned when the backup file exists but cannot be parsed
// as a valid session and the primary is missing or cannot be parsed either.
var ErrCorrupt = errors.New("store: corrupt")

// Store persists Sessions as one JSON file per session under dataDir.
type Store struct {
	dataDir string

	queueMu sync.Mutex
	queues  map[string]*pathQueue
}

// pathQueue serializes operations against a single session's file so
// concurrent Load/Save calls for the same id never race each other, while
// operations on different sessions proceed independently.
type pathQueue struct {
	mu       sync.Mutex
	refcount int
}

// New builds a Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir, queues: make(map[string]*pathQueue)}
}

// maxSessionIDLength is spec.md section 3's bound on session ids: ≤128
// chars, enforced before any filesystem access is attempted.
const maxSessionIDLength = 128

// sanitizeSessionID mirrors the teacher's safeChannelKey: only
// alphanumerics, '-', and '_' survive, path traversal sequences are
// rejected outright rather than silently stripped, and anything over
// maxSessionIDLength is rejected per spec.md section 8's boundary
// behavior ("length >128 → INVALID_SESSION_ID; no filesystem access
// attempted").
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

func (s *Store) sessionPath(id string) (string, error) {
	key, err := sanitizeSessionID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dataDir, key+".json"), nil
}

// acquire returns the lock guarding id's file, creating it if necessary,
// and increments its refcount. release must be called exactly once for
// every acquire, mirroring the teacher's session-lock refcounting idiom
// in tool_registry.go so the queue map doesn't grow unbounded.
func (s *Store) acquire(id string) *pathQueue {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		q = &pathQueue{}
		s.queues[id] = q
	}
	q.refcount++
	return q
}

func (s *Store) release(id string) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return
	}
	q.refcount--
	if q.refcount <= 0 {
		delete(s.queues, id)
	}
}

// Load reads the session identified by id. A missing file returns a
// fresh empty Session, not an error — callers create sessions implicitly
// on first use.
func (s *Store) Load(id string) (*models.Session, error) {
	path, err := s.sessionPath(id)
	if err != nil {
		return nil, err
	}

	q := s.acquire(id)
	defer s.release(id)
	q.mu.Lock()
	defer q.mu.Unlock()

	return s.loadLocked(id, path)
}

// loadLocked implements the read-recovery algorithm from spec.md section
// 4.5: primary wins if it parses; a missing primary with a parseable
// backup restores the primary from it; a corrupt primary with a parseable
// backup archives the corrupt file and restores from backup; a corrupt
// backup is an unrecoverable ErrCorrupt. A missing or corrupt primary with
// no backup at all yields a fresh empty session (after archiving the
// corrupt primary, if there was one).
func (s *Store) loadLocked(id, path string) (*models.Session, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var sess models.Session
		if jsonErr := json.Unmarshal(data, &sess); jsonErr == nil {
			return &sess, nil
		}
		return s.recoverFromBackupLocked(id, path, data, true)

	case os.IsNotExist(err):
		return s.recoverFromBackupLocked(id, path, nil, false)

	default:
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
}

// recoverFromBackupLocked handles the two recovery branches: primaryCorrupt
// distinguishes "primary exists but failed to parse" (archive it) from
// "primary is simply missing" (nothing to archive) before falling back to
// the backup file, and finally to a fresh empty session.
func (s *Store) recoverFromBackupLocked(id, path string, corruptData []byte, primaryCorrupt bool) (*models.Session, error) {
	var archived string
	if primaryCorrupt {
		a, archErr := s.archiveCorrupt(path, corruptData)
		if archErr != nil {
			return nil, fmt.Errorf("store: corrupt session %s, archive failed: %w", id, archErr)
		}
		archived = a
	}

	backupData, backupErr := os.ReadFile(path + ".bak")
	if backupErr != nil {
		// No backup to fall back to at all (as opposed to a backup that
		// exists but also fails to parse): there is nothing to recover, so
		// start fresh rather than surfacing ErrCorrupt for data that was
		// never durably committed in the first place.
		now := time.Now().UTC()
		sess := &models.Session{ID: id, CreatedAt: now, UpdatedAt: now}
		if archived != "" {
			sess.Metadata = map[string]any{"recovered_from_corrupt": archived}
		}
		return sess, nil
	}

	var sess models.Session
	if jsonErr := json.Unmarshal(backupData, &sess); jsonErr != nil {
		return nil, fmt.Errorf("%w: session %s backup is also corrupt", ErrCorrupt, id)
	}

	// The backup parsed; restore it as the primary so the next read
	// doesn't have to repeat this recovery.
	if err := os.WriteFile(path, backupData, 0o600); err != nil {
		return nil, fmt.Errorf("store: restore primary from backup for %s: %w", id, err)
	}
	if archived != "" {
		if sess.Metadata == nil {
			sess.Metadata = map[string]any{}
		}
		sess.Metadata["recovered_from_corrupt"] = archived
	}
	return &sess, nil
}

// Save persists sess atomically: back up any existing file to ".bak",
// write the new content to ".tmp", then rename over the real path so a
// crash mid-write never leaves a half-written file in place.
func (s *Store) Save(sess *models.Session) error {
	if sess == nil {
		return errors.New("store: nil session")
	}
	path, err := s.sessionPath(sess.ID)
	if err != nil {
		return err
	}

	q := s.acquire(sess.ID)
	defer s.release(sess.ID)
	q.mu.Lock()
	defer q.mu.Unlock()

	return s.saveLocked(sess, path)
}

func (s *Store) saveLocked(sess *models.Session, path string) error {
	if sess.Status == "" {
		sess.Status = models.SessionActive
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := backupFile(path); err != nil {
			return fmt.Errorf("store: backup before overwrite: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("store: stat %s: %w", path, err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal session %s: %w", sess.ID, err)
	}

	tmp := tempFilePath(path)
	defer os.Remove(tmp)

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := renameWithRetry(tmp, path); err != nil {
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

// tempFilePath builds the "{path}.{pid}.{now}.{rand}.tmp" name spec.md
// section 4.5 calls for, so two processes racing to write the same
// session (or two writes in flight during a crash) never collide on the
// same temp file.
func tempFilePath(path string) string {
	return fmt.Sprintf("%s.%d.%d.%d.tmp", path, os.Getpid(), time.Now().UnixNano(), rand.Int63())
}

// renameWithRetry implements spec.md section 4.5 step 4: rename temp over
// primary, retrying transient permission errors up to 5 attempts with a
// linear 100ms*attempt backoff (common on some filesystems/OSes when the
// target is briefly held open by a concurrent reader).
func renameWithRetry(tmp, path string) error {
	const maxAttempts = 5
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := os.Rename(tmp, path)
		if err == nil {
			return nil
		}
		lastErr = err
		if !os.IsPermission(err) {
			return err
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return lastErr
}

// backupFile copies the existing file to "<path>.bak", overwriting any
// previous backup — a single most-recent backup per session, not a
// timestamped history, since the spec's recovery story only ever needs
// the last known-good write.
func backupFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path+".bak", data, 0o600)
}

// archiveCorrupt moves an unparseable file aside to "<path>.corrupt-{ts}"
// so recovery never silently discards data the caller might want to
// inspect or hand-repair later.
func (s *Store) archiveCorrupt(path string, data []byte) (string, error) {
	archivePath := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102-150405.000000000"))
	if err := os.Rename(path, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

// RecoverFromBackup restores a session from its ".bak" file, for when the
// primary file is missing or was archived as corrupt. Returns
// ErrInvalidSessionID / a file-not-exist error if no backup exists.
func (s *Store) RecoverFromBackup(id string) (*models.Session, error) {
	path, err := s.sessionPath(id)
	if err != nil {
		return nil, err
	}

	q := s.acquire(id)
	defer s.release(id)
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := os.ReadFile(path + ".bak")
	if err != nil {
		return nil, fmt.Errorf("store: read backup for %s: %w", id, err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("store: backup for %s is also corrupt: %w", id, err)
	}
	return &sess, nil
}

// Delete removes id's session file along with its backup and any
// archived-corrupt copies, per spec.md section 4.5's operation list. A
// missing file is not an error — deleting an already-absent session is a
// no-op, matching the teacher's sessions.Store.Delete idiom.
func (s *Store) Delete(id string) error {
	path, err := s.sessionPath(id)
	if err != nil {
		return err
	}

	q := s.acquire(id)
	defer s.release(id)
	q.mu.Lock()
	defer q.mu.Unlock()

	corrupt, globErr := filepath.Glob(path + ".corrupt-*")
	if globErr != nil {
		return fmt.Errorf("store: glob corrupt archives for %s: %w", id, globErr)
	}

	targets := append([]string{path, path + ".bak"}, corrupt...)
	for _, p := range targets {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("store: remove %s: %w", p, rmErr)
		}
	}
	return nil
}

// SessionFilter narrows QuerySessions' results, mirroring the teacher's
// sessions.ListOptions shape (internal/sessions/store.go).
type SessionFilter struct {
	// Status restricts results to sessions with this status. The zero
	// value matches every status.
	Status models.SessionStatus
	// Limit caps the number of sessions returned. Zero means unbounded.
	Limit int
	// Offset skips this many matching sessions before collecting Limit.
	Offset int
}

// QuerySessions lists every persisted session matching filter, per
// spec.md section 4.5's operation list. Results are ordered by session
// id for determinism. Corrupt sessions are recovered the same way Load
// recovers them; a session that fails even that recovery is skipped
// rather than failing the whole query.
func (s *Store) QuerySessions(filter SessionFilter) ([]*models.Session, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read dir %s: %w", s.dataDir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)

	matched := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		sess, loadErr := s.Load(id)
		if loadErr != nil {
			continue
		}
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		matched = append(matched, sess)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*models.Session{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}
