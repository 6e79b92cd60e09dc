package storage

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// ChannelState is the per-channel record of one user.
//
// A key in Played means the video was marked played at that time. A key in
// Archived means the video sits in the archive playlist with that ID.
type ChannelState struct {
	Played   map[string]time.Time `json:"played"`
	Archived map[string]string    `json:"archived"`
}

// NewChannelState returns an empty channel record.
func NewChannelState() *ChannelState {
	return &ChannelState{
		Played:   make(map[string]time.Time),
		Archived: make(map[string]string),
	}
}

// UserRecord maps tracked channel IDs to their state.
type UserRecord map[string]*ChannelState

// State maps user IDs to their records. It is the whole persisted structure.
type State map[string]UserRecord

// User returns the record for id, creating an empty one if needed.
func (s State) User(id string) UserRecord {
	rec, ok := s[id]
	if !ok || rec == nil {
		rec = make(UserRecord)
		s[id] = rec
	}
	return rec
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for uid, rec := range s {
		out[uid] = rec.Clone()
	}
	return out
}

// Clone returns a deep copy of r.
func (r UserRecord) Clone() UserRecord {
	out := make(UserRecord, len(r))
	for cid, cs := range r {
		if cs == nil {
			out[cid] = NewChannelState()
			continue
		}
		out[cid] = &ChannelState{
			Played:   maps.Clone(cs.Played),
			Archived: maps.Clone(cs.Archived),
		}
	}
	return out
}

// Channel returns the state of a tracked channel, creating it if needed. The
// second result reports whether the channel was created.
func (r UserRecord) Channel(id string) (*ChannelState, bool) {
	if cs, ok := r[id]; ok && cs != nil {
		return cs, false
	}
	cs := NewChannelState()
	r[id] = cs
	return cs, true
}

// ChannelIDs returns the tracked channel IDs in lexical order.
func (r UserRecord) ChannelIDs() []string {
	return slices.Sorted(maps.Keys(r))
}

// ArchivedCount returns the number of archived videos across all channels.
func (r UserRecord) ArchivedCount() int {
	n := 0
	for _, cs := range r {
		if cs != nil {
			n += len(cs.Archived)
		}
	}
	return n
}

// normalize replaces nil maps with empty ones and truncates timestamps to UTC
// seconds.
func (s State) normalize() {
	for uid, rec := range s {
		if rec == nil {
			s[uid] = make(UserRecord)
			continue
		}
		for cid, cs := range rec {
			if cs == nil {
				rec[cid] = NewChannelState()
				continue
			}
			if cs.Played == nil {
				cs.Played = make(map[string]time.Time)
			}
			if cs.Archived == nil {
				cs.Archived = make(map[string]string)
			}
			for vid, ts := range cs.Played {
				cs.Played[vid] = ts.UTC().Truncate(time.Second)
			}
		}
	}
}

// validate rejects empty identifiers anywhere in the structure.
func (s State) validate() error {
	for uid, rec := range s {
		if uid == "" {
			return fmt.Errorf("empty user id")
		}
		for cid, cs := range rec {
			if cid == "" {
				return fmt.Errorf("user %s: empty channel id", uid)
			}
			if cs == nil {
				continue
			}
			for vid := range cs.Played {
				if vid == "" {
					return fmt.Errorf("user %s channel %s: empty played video id", uid, cid)
				}
			}
			for vid, container := range cs.Archived {
				if vid == "" || container == "" {
					return fmt.Errorf("user %s channel %s: empty archived entry %q=%q", uid, cid, vid, container)
				}
			}
		}
	}
	return nil
}
