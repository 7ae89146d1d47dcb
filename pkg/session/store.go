package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a session id has no file on disk.
var ErrNotFound = fmt.Errorf("session not found")

// Store reads and writes session documents under a single directory.
// Saves are atomic: the document is written to a temp file and renamed
// over the previous one, so a crash never leaves a half-written
// session behind.
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewStore opens a session store rooted at dir, creating the
// directory if needed. An empty dir defaults to ~/.nanoagent/sessions.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".nanoagent", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Session store opened")

	return &Store{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// validateID rejects ids that could escape the sessions directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) writeLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, ok := s.writeLocks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[id] = lock
	return lock
}

func (s *Store) releaseWriteLock(id string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.writeLocks, id)
}

// Create initializes a new session with a fresh id and persists it.
func (s *Store) Create(clientID, providerName, model string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        NewID(now),
		ClientID:  clientID,
		Provider:  providerName,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}

	if err := s.Save(sess); err != nil {
		return nil, err
	}

	log.Info().Str("session_id", sess.ID).Str("provider", providerName).Str("model", model).Msg("Session created")
	return sess, nil
}

// Load reads a session document. Loading is idempotent; repeated
// loads return equal sessions until the next Save.
func (s *Store) Load(id string) (*Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	if sess.ID == "" {
		sess.ID = id
	}

	return &sess, nil
}

// Save writes the full session document atomically.
func (s *Store) Save(sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if err := validateID(sess.ID); err != nil {
		return err
	}

	lock := s.writeLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	sessionPath := s.path(sess.ID)
	tempPath := sessionPath + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, sessionPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	log.Debug().Str("session_id", sess.ID).Int("messages", len(sess.Messages)).Msg("Session saved")
	return nil
}

// Delete removes a session file. Deleting a missing session is not an
// error.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	lock := s.writeLock(id)
	lock.Lock()
	err := os.Remove(s.path(id))
	lock.Unlock()

	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	// Drop the lock map entry only after the mutex is released, so a
	// concurrent Save on the same id cannot mint a second mutex while
	// this one is still held.
	s.releaseWriteLock(id)

	log.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// List returns session summaries, newest first. A non-empty clientID
// keeps only that client's sessions; a positive limit caps the result.
func (s *Store) List(clientID string, limit int) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		sess, err := s.Load(id)
		if err != nil {
			log.Warn().Str("session_id", id).Err(err).Msg("Skipping unreadable session")
			continue
		}
		if clientID != "" && sess.ClientID != clientID {
			continue
		}
		summaries = append(summaries, sess.Summarize())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// FindMostRecent returns the most recently updated session, optionally
// filtered by client id. Returns ErrNotFound when nothing matches.
func (s *Store) FindMostRecent(clientID string) (*Session, error) {
	summaries, err := s.List(clientID, 1)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(summaries[0].ID)
}

// PurgeOlderThan deletes sessions whose last update predates the
// cutoff. It returns the number of sessions removed.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int, error) {
	summaries, err := s.List("", 0)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, summary := range summaries {
		if !summary.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.Delete(summary.ID); err != nil {
			log.Error().Str("session_id", summary.ID).Err(err).Msg("Failed to delete expired session")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Purged expired sessions")
	}
	return deleted, nil
}
