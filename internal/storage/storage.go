// Package storage persists the per-user channel state: which channels are
// tracked, which videos were played and which videos sit in which archive
// playlist.
//
// The store is deliberately coarse: Load returns the whole structure and
// Replace overwrites it. Callers own the read-modify-write cycle.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates the persisted data could not be decoded.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s: %v\n", storErr.Op, storErr.Entity, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("load", "replace", "lock", "open").
	Op string
	// Entity is what was being operated on ("state", "file", "database").
	Entity string
	// ID identifies the entity if applicable (a path or user ID).
	ID string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// Store is the local state store.
type Store interface {
	// Load returns the full persisted state. Missing data loads as an empty State.
	Load(ctx context.Context) (State, error)
	// Replace atomically overwrites the persisted state with the given one.
	Replace(ctx context.Context, state State) error
	// Close releases any resources held by the store.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Options selects and configures a Store backend.
type Options struct {
	Driver string
	Path   string
}

// Open returns the Store selected by opts.Driver.
func Open(opts Options) (Store, error) {
	if opts.Path == "" {
		return nil, &StorageError{Op: "open", Entity: "store", Err: fmt.Errorf("%w: empty path", ErrInvalidInput)}
	}
	switch strings.ToLower(opts.Driver) {
	case "", DriverJSON:
		return NewJSONStore(opts.Path)
	case DriverSQLite:
		return NewSQLiteStore(opts.Path)
	default:
		return nil, &StorageError{Op: "open", Entity: "store", ID: opts.Driver, Err: fmt.Errorf("%w: unknown driver", ErrInvalidInput)}
	}
}

// ObserveFunc receives the outcome of every store operation.
type ObserveFunc func(op string, d time.Duration, err error)

type observedStore struct {
	Store
	observe ObserveFunc
}

// WithObserver wraps s so that Load and Replace report their latency and
// outcome to fn.
func WithObserver(s Store, fn ObserveFunc) Store {
	if fn == nil {
		return s
	}
	return &observedStore{Store: s, observe: fn}
}

func (o *observedStore) Load(ctx context.Context) (State, error) {
	start := time.Now()
	st, err := o.Store.Load(ctx)
	o.observe("load", time.Since(start), err)
	return st, err
}

func (o *observedStore) Replace(ctx context.Context, state State) error {
	start := time.Now()
	err := o.Store.Replace(ctx, state)
	o.observe("replace", time.Since(start), err)
	return err
}
