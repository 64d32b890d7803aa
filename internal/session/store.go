package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStore persists the bearer token across restarts. A missing
// token is an expected state: Token returns ("", nil), never an error.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

type memoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore keeps the token in memory only. Used by tests
// and by the CLI when persistence is disabled.
func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{}
}

func (s *memoryTokenStore) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memoryTokenStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
	return nil
}

func (s *memoryTokenStore) ClearToken(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

type fileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore stores the token in a single file, mode 0600.
func NewFileTokenStore(path string) TokenStore {
	return &fileTokenStore{path: path}
}

func (s *fileTokenStore) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *fileTokenStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		return s.removeLocked()
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, []byte(token+"\n"), 0o600)
}

func (s *fileTokenStore) ClearToken(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked()
}

func (s *fileTokenStore) removeLocked() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
