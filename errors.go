package ytarchive

import (
	"ytarchive/internal/archive"
	"ytarchive/internal/auth"
	"ytarchive/internal/retry"
	"ytarchive/internal/storage"
	"ytarchive/internal/transport"
	"ytarchive/internal/youtube"
)

// Type aliases for convenient error handling.
type (
	// RemoteError is any failure talking to the platform.
	RemoteError = youtube.RemoteError
	// ResolutionError reports a channel query that did not resolve.
	ResolutionError = archive.ResolutionError
	// AllocationError reports a video no container could take.
	AllocationError = archive.AllocationError
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
	// ExhaustedError wraps the last error after retries ran out.
	ExhaustedError = retry.ExhaustedError
)

// Sentinel errors exported from sub-packages.
var (
	ErrChannelNotTracked = archive.ErrChannelNotTracked
	ErrChannelNotFound   = archive.ErrChannelNotFound
	ErrVideoNotFound     = archive.ErrVideoNotFound
	ErrNotArchived       = archive.ErrNotArchived
	ErrNoVideos          = archive.ErrNoVideos
	ErrNotAuthenticated  = auth.ErrNotAuthenticated

	// ErrNotFound matches remote 404s.
	ErrNotFound = youtube.ErrNotFound
	// ErrCursorLoop indicates the platform returned a cursor it already sent.
	ErrCursorLoop = youtube.ErrCursorLoop
	// ErrCircuitOpen indicates requests to a host are failing fast.
	ErrCircuitOpen = transport.ErrCircuitOpen

	// Storage errors
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	ErrLockTimeout    = storage.ErrLockTimeout
)

// IsRetryable determines if an error should be retried.
// It returns false for permanent errors like a remote 404.
func IsRetryable(err error) bool {
	return youtube.IsRetryable(err)
}
