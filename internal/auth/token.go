package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"ytarchive/internal/storage"
)

// TokenStore persists one oauth2.Token as JSON. Writes are atomic and the
// file is readable only by its owner.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore returns a store for the token file at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the token file location.
func (s *TokenStore) Path() string { return s.path }

// Load reads the token. A missing file is ErrNotAuthenticated.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", s.path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNotAuthenticated
	}
	return &tok, nil
}

// Save replaces the stored token.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := storage.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Delete removes the stored token. A missing file is not an error.
func (s *TokenStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// savingSource writes refreshed tokens back to the store.
type savingSource struct {
	src   oauth2.TokenSource
	store *TokenStore

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}
