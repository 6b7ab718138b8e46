// Package session persists the logged-in user across process restarts.
// Backends are selected by DSN scheme; the zero-configuration default is a
// JSON file under the user's home directory.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

// Session is the locally remembered identity. It carries no credentials;
// the services themselves are unauthenticated beyond the login check.
type Session struct {
	UserID   int64     `json:"userId"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	SavedAt  time.Time `json:"savedAt"`
}

// Store persists at most one session. Load returns (nil, nil) when no
// session has been saved.
type Store interface {
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
	Close() error
}

// DefaultPath is the fallback session file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "collabdesk-session.json"
	}
	return filepath.Join(home, ".collabdesk", "session.json")
}

type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: strings.TrimSpace(path)}
}

func (s *FileStore) Load() (*Session, error) {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *FileStore) Save(sess *Session) error {
	if s == nil || strings.TrimSpace(s.Path) == "" || sess == nil {
		return nil
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

func (s *FileStore) Clear() error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return nil
	}
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) Close() error {
	return nil
}

type MemoryStore struct {
	mu       sync.Mutex
	snapshot *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*Session, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil, nil
	}
	clone := *s.snapshot
	return &clone, nil
}

func (s *MemoryStore) Save(sess *Session) error {
	if s == nil || sess == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sess
	s.snapshot = &clone
	return nil
}

func (s *MemoryStore) Clear() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
