package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const lockTimeout = 5 * time.Second

// JSONStore keeps the state in a single JSON document laid out as
// {user: {channel: {"played": {...}, "archived": {...}}}}.
//
// The file lock is taken when the store is opened and held until Close, so a
// second process on the same file fails with ErrLockTimeout.
type JSONStore struct {
	path  string
	lock  *FileLock
	codec codec
	mu    sync.Mutex
}

// NewJSONStore opens the store at path. A ".zst" suffix enables zstd
// compression of the document.
func NewJSONStore(path string) (*JSONStore, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "file", ID: path, Err: err}
	}

	s := &JSONStore{path: path, lock: NewFileLock(path), codec: c}
	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads and decodes the document. A missing or empty file is an empty
// State.
func (s *JSONStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return nil, &StorageError{Op: "load", Entity: "state", ID: s.path, Err: err}
	}
	if len(data) == 0 {
		return State{}, nil
	}

	raw, err := s.codec.Decode(data)
	if err != nil {
		return nil, &StorageError{Op: "load", Entity: "state", ID: s.path, Err: fmt.Errorf("%w: %v", ErrStorageCorrupt, err)}
	}

	state := State{}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, &StorageError{Op: "load", Entity: "state", ID: s.path, Err: fmt.Errorf("%w: %v", ErrStorageCorrupt, err)}
	}
	if state == nil {
		state = State{}
	}
	state.normalize()
	if err := state.validate(); err != nil {
		return nil, &StorageError{Op: "load", Entity: "state", ID: s.path, Err: fmt.Errorf("%w: %v", ErrStorageCorrupt, err)}
	}
	return state, nil
}

// Replace encodes state and swaps it in with a temp file and rename.
func (s *JSONStore) Replace(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		state = State{}
	}
	if err := state.validate(); err != nil {
		return &StorageError{Op: "replace", Entity: "state", ID: s.path, Err: fmt.Errorf("%w: %v", ErrInvalidInput, err)}
	}

	raw, err := EncodeState(state)
	if err != nil {
		return &StorageError{Op: "replace", Entity: "state", ID: s.path, Err: err}
	}
	data, err := s.codec.Encode(raw)
	if err != nil {
		return &StorageError{Op: "replace", Entity: "state", ID: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteFileAtomic(s.path, data, 0o600); err != nil {
		return &StorageError{Op: "replace", Entity: "state", ID: s.path, Err: err}
	}
	return nil
}

// Close releases the file lock.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}

// EncodeState renders state in the persisted layout: sorted keys, two-space
// indentation, trailing newline.
func EncodeState(state State) ([]byte, error) {
	norm := state.Clone()
	norm.normalize()
	raw, err := json.MarshalIndent(norm, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return append(raw, '\n'), nil
}
