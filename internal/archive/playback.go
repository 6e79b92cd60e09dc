package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ytarchive/internal/auth"
	"ytarchive/internal/storage"
	"ytarchive/internal/youtube"
)

// MarkPlayed records videoID of a tracked channel as played now.
func (s *Service) MarkPlayed(ctx context.Context, user auth.User, channelID, videoID string) (time.Time, error) {
	at := s.now().UTC().Truncate(time.Second)
	err := s.updateChannel(ctx, user, channelID, func(cs *storage.ChannelState) bool {
		cs.Played[videoID] = at
		return true
	})
	return at, err
}

// MarkUnplayed clears the played mark of videoID.
func (s *Service) MarkUnplayed(ctx context.Context, user auth.User, channelID, videoID string) error {
	return s.updateChannel(ctx, user, channelID, func(cs *storage.ChannelState) bool {
		if _, ok := cs.Played[videoID]; !ok {
			return false
		}
		delete(cs.Played, videoID)
		return true
	})
}

// updateChannel applies fn to a tracked channel and saves if fn reports a
// change.
func (s *Service) updateChannel(ctx context.Context, user auth.User, channelID string, fn func(cs *storage.ChannelState) bool) error {
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return err
	}
	cs, ok := st.User(user.ID)[channelID]
	if !ok || cs == nil {
		return fmt.Errorf("%w: %s", ErrChannelNotTracked, channelID)
	}
	if !fn(cs) {
		return nil
	}
	return s.save(ctx, st)
}

// VideoQuery filters ChannelVideos. Nil pointers match everything and a
// zero Limit means no limit.
type VideoQuery struct {
	Played   *bool
	Archived *bool
	Limit    int
}

func (q VideoQuery) match(v VideoState) bool {
	if q.Played != nil && *q.Played != v.Played {
		return false
	}
	if q.Archived != nil && *q.Archived != v.Archived {
		return false
	}
	return true
}

// VideoState is a channel video joined with the user's local state.
type VideoState struct {
	youtube.Video
	Played      bool      `json:"played"`
	PlayedAt    time.Time `json:"played_at"`
	Archived    bool      `json:"archived"`
	ContainerID string    `json:"container_id,omitempty"`
}

var errStop = errors.New("stop")

// ChannelVideos lists a tracked channel's uploads in the platform's order,
// joined with played and archived state and filtered by q.
func (s *Service) ChannelVideos(ctx context.Context, user auth.User, channelID string, q VideoQuery) ([]VideoState, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	cs, ok := st.User(user.ID)[channelID]
	if !ok || cs == nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotTracked, channelID)
	}

	channels, err := s.lookupChannels(ctx, []string{channelID})
	if err != nil {
		return nil, fmt.Errorf("look up channel %s: %w", channelID, err)
	}
	ch, ok := channels[channelID]
	if !ok || ch.UploadsPlaylistID == "" {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}

	var out []VideoState
	err = youtube.Collect(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.PlaylistItem], error) {
		return s.remote.ListPlaylistItems(ctx, youtube.ItemFilter{PlaylistID: ch.UploadsPlaylistID}, cursor)
	}, func(it youtube.PlaylistItem) error {
		vs := VideoState{Video: youtube.Video{
			ID:           it.VideoID,
			Title:        it.Title,
			ChannelID:    channelID,
			ChannelTitle: ch.Title,
			PublishedAt:  it.PublishedAt,
		}}
		vs.PlayedAt, vs.Played = cs.Played[it.VideoID]
		vs.ContainerID, vs.Archived = cs.Archived[it.VideoID]
		if !q.match(vs) {
			return nil
		}
		out = append(out, vs)
		if q.Limit > 0 && len(out) >= q.Limit {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, fmt.Errorf("list uploads of %s: %w", channelID, err)
	}
	return out, nil
}

// PickMode selects the candidate set and strategy of Pick.
type PickMode string

const (
	PickNextUnplayed   PickMode = "next-unplayed"
	PickRandomUnplayed PickMode = "random-unplayed"
	PickRandomArchived PickMode = "random-archived"
	PickRandom         PickMode = "random"
)

// ParsePickMode validates a mode name.
func ParsePickMode(s string) (PickMode, error) {
	switch m := PickMode(s); m {
	case PickNextUnplayed, PickRandomUnplayed, PickRandomArchived, PickRandom:
		return m, nil
	}
	return "", fmt.Errorf("unknown pick mode %q", s)
}

// Pick chooses one video of a tracked channel. PickNextUnplayed returns the
// oldest unplayed upload; the other modes choose uniformly at random.
func (s *Service) Pick(ctx context.Context, user auth.User, channelID string, mode PickMode) (VideoState, error) {
	var q VideoQuery
	yes, no := true, false
	switch mode {
	case PickNextUnplayed, PickRandomUnplayed:
		q.Played = &no
	case PickRandomArchived:
		q.Archived = &yes
	case PickRandom:
	default:
		return VideoState{}, fmt.Errorf("unknown pick mode %q", mode)
	}

	videos, err := s.ChannelVideos(ctx, user, channelID, q)
	if err != nil {
		return VideoState{}, err
	}
	if len(videos) == 0 {
		return VideoState{}, fmt.Errorf("%w: %s in %s", ErrNoVideos, mode, channelID)
	}

	if mode == PickNextUnplayed {
		oldest := videos[0]
		for _, v := range videos[1:] {
			if v.PublishedAt.Before(oldest.PublishedAt) {
				oldest = v
			}
		}
		return oldest, nil
	}
	return videos[s.intn(len(videos))], nil
}
