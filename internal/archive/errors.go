package archive

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Service.
var (
	ErrChannelNotTracked = errors.New("archive: channel not tracked")
	ErrChannelNotFound   = errors.New("archive: channel not found")
	ErrVideoNotFound     = errors.New("archive: video not found")
	ErrNotArchived       = errors.New("archive: video not archived")
	ErrNoVideos          = errors.New("archive: no matching videos")
	ErrUnknownContainer  = errors.New("archive: not an archive container")
	ErrArchiveContainer  = errors.New("archive: playlist is an archive container")
	ErrEmptyQuery        = errors.New("archive: empty query")
	ErrUnsupportedURL    = errors.New("archive: unsupported channel url")
)

// ResolutionError reports a channel query that could not be turned into a
// channel. No state is changed when it is returned.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not track channel %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// AllocationError reports that a video could not be placed in any archive
// container. The video is not recorded as archived.
type AllocationError struct {
	VideoID     string
	ContainerID string
	Err         error
}

func (e *AllocationError) Error() string {
	if e.ContainerID != "" {
		return fmt.Sprintf("archive video %s into %s: %v", e.VideoID, e.ContainerID, e.Err)
	}
	return fmt.Sprintf("archive video %s: %v", e.VideoID, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
