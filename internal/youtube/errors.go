package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"

	"ytarchive/internal/transport"
)

// Sentinel errors.
var (
	// ErrNotFound matches remote 404s.
	ErrNotFound = errors.New("youtube: not found")
	// ErrCursorLoop is returned by Collect when a cursor repeats.
	ErrCursorLoop = errors.New("youtube: pagination cursor repeated")
)

// RemoteError is the error returned by every Client operation.
//
//	var rerr *youtube.RemoteError
//	if errors.As(err, &rerr) && rerr.Retryable {
//		// try again later
//	}
type RemoteError struct {
	// Op is the client operation, e.g. "playlistItems.list".
	Op string
	// Retryable reports whether repeating the call may succeed.
	Retryable bool
	// StatusCode is the HTTP status, or 0 without a response.
	StatusCode int
	// Reason is the API error reason (e.g. "quotaExceeded") when known.
	Reason string
	// RetryAfter is the server's requested delay, from the Retry-After header.
	RetryAfter time.Duration
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("youtube: %s: %d %s: %v", e.Op, e.StatusCode, e.Reason, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("youtube: %s: %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("youtube: %s: %v", e.Op, e.Err)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Temporary lets retry.IsRetryable classify RemoteErrors.
func (e *RemoteError) Temporary() bool { return e.Retryable }

// RetryDelay lets retry.Do wait at least as long as the server asked.
func (e *RemoteError) RetryDelay() time.Duration { return e.RetryAfter }

// Is makes RemoteErrors with status 404 match ErrNotFound.
func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether err is a retryable RemoteError.
func IsRetryable(err error) bool {
	var rerr *RemoteError
	return errors.As(err, &rerr) && rerr.Retryable
}

// Classify converts any error from the API library or the transport into a
// *RemoteError for op. RemoteErrors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return err
	}

	out := &RemoteError{Op: op, Err: err}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		out.StatusCode = gerr.Code
		if len(gerr.Errors) > 0 {
			out.Reason = gerr.Errors[0].Reason
		}
		out.Retryable = retryableStatus(gerr.Code, out.Reason)
		out.RetryAfter = transport.RetryAfter(gerr.Header)
		return out
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Retryable = false
	case errors.Is(err, transport.ErrCircuitOpen):
		out.Retryable = true
	default:
		// No response at all: a network or transport failure.
		out.Retryable = true
	}
	return out
}

func retryableStatus(code int, reason string) bool {
	switch {
	case code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	case code == http.StatusForbidden:
		return reason == "rateLimitExceeded" || reason == "userRateLimitExceeded"
	}
	return false
}
