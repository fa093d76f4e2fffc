// Package store implements component D: durable, crash-safe persistence
// of Sessions (and their embedded Playbooks). One JSON file per session,
// written via temp-file + fsync + rename so a crash mid-write never
// leaves a torn file on disk.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// ErrNotFound is returned by Load when no session file exists for an id.
var ErrNotFound = errors.New("session not found")

// Store owns a directory of <id>.json session files plus an "archived"
// subdirectory retention moves sessions into.
type Store struct {
	dir string

	mu     sync.Mutex
	locks  map[string]*sessionLock
}

type sessionLock struct {
	mu       sync.Mutex
	refCount int
}

// New returns a Store rooted at dir, creating dir if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "archived"), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sessionLock)}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) archivedPath(id string) string {
	return filepath.Join(s.dir, "archived", id+".json")
}

// lockSession acquires a refcounted per-session-id mutex so concurrent
// mutations of the same session serialize, while different sessions can
// be written in parallel. Callers defer the returned unlock func.
func (s *Store) lockSession(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refCount++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refCount--
		if l.refCount == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// NewSession creates a fresh Session with a generated id.
func NewSession(workingDirectory string) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:               uuid.NewString(),
		CreatedAt:        now,
		UpdatedAt:        now,
		WorkingDirectory: workingDirectory,
		Playbook:         models.NewPlaybook(),
	}
}

// Save persists a session atomically: marshal, write to a sibling temp
// file in the same directory, fsync the temp file, then rename over the
// final path. Rename is atomic on the same filesystem, so a reader never
// observes a partially-written file.
func (s *Store) Save(sess *models.Session) error {
	unlock := s.lockSession(sess.ID)
	defer unlock()

	sess.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	target := s.path(sess.ID)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open temp session file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync temp session file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Load reads a session whole-file. Returns ErrNotFound if it (and its
// archived copy) do not exist.
func (s *Store) Load(id string) (*models.Session, error) {
	unlock := s.lockSession(id)
	defer unlock()

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		data, err = os.ReadFile(s.archivedPath(id))
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return &sess, nil
}

// GetOrCreate loads a session by id, or creates a fresh one if id is
// empty or not found.
func (s *Store) GetOrCreate(id, workingDirectory string) (*models.Session, error) {
	if id != "" {
		sess, err := s.Load(id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return NewSession(workingDirectory), nil
}

// SessionSummary is what List returns: enough to render a picker without
// loading every full transcript.
type SessionSummary struct {
	ID               string
	UpdatedAt        time.Time
	Archived         bool
	WorkingDirectory string
}

// summaryFields is the subset of a session file List needs to decode;
// unmarshaling into this instead of models.Session avoids paying for the
// full transcript on every directory scan.
type summaryFields struct {
	WorkingDirectory string `json:"working_directory"`
}

// List returns session ids (active and archived) ordered by most
// recently updated first.
func (s *Store) List() ([]SessionSummary, error) {
	var out []SessionSummary
	for _, archived := range []bool{false, true} {
		dir := s.dir
		if archived {
			dir = filepath.Join(s.dir, "archived")
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasSuffix(e.Name(), ".tmp") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			var fields summaryFields
			if data, err := os.ReadFile(filepath.Join(dir, e.Name())); err == nil {
				_ = json.Unmarshal(data, &fields)
			}
			out = append(out, SessionSummary{
				ID:               strings.TrimSuffix(e.Name(), ".json"),
				UpdatedAt:        info.ModTime(),
				Archived:         archived,
				WorkingDirectory: fields.WorkingDirectory,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// ContinueLatest returns the most recently updated, non-archived session
// whose WorkingDirectory matches cwd exactly (canonical path comparison
// is the caller's responsibility: pass filepath.Abs'd paths in). Returns
// ErrNotFound if no such session exists.
func (s *Store) ContinueLatest(cwd string) (*models.Session, error) {
	summaries, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, sum := range summaries {
		if sum.Archived || sum.WorkingDirectory != cwd {
			continue
		}
		return s.Load(sum.ID)
	}
	return nil, ErrNotFound
}

// Archive moves a session's file into the archived/ subdirectory,
// per the "destroyed by retention policy" lifecycle rule.
func (s *Store) Archive(id string) error {
	unlock := s.lockSession(id)
	defer unlock()

	src := s.path(id)
	dst := s.archivedPath(id)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

// Delete removes a session file outright (explicit user command), from
// whichever of the active/archived directories holds it.
func (s *Store) Delete(id string) error {
	unlock := s.lockSession(id)
	defer unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		err = os.Remove(s.archivedPath(id))
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
