package archive

import (
	"context"
	"fmt"

	"ytarchive/internal/auth"
	"ytarchive/internal/youtube"
)

// Rate sets the user's rating of a video.
func (s *Service) Rate(ctx context.Context, user auth.User, videoID string, rating youtube.Rating) error {
	if !rating.Valid() {
		return fmt.Errorf("rate %s: invalid rating %q", videoID, rating)
	}
	if err := s.remote.Rate(ctx, videoID, rating); err != nil {
		return fmt.Errorf("rate %s: %w", videoID, err)
	}
	s.userLog(user.ID).Debug().Str("video", videoID).Str("rating", string(rating)).Msg("rated video")
	return nil
}

// Ratings returns the user's rating of each video.
func (s *Service) Ratings(ctx context.Context, user auth.User, videoIDs []string) (map[string]youtube.Rating, error) {
	if len(videoIDs) == 0 {
		return map[string]youtube.Rating{}, nil
	}
	r, err := s.remote.GetRatings(ctx, videoIDs)
	if err != nil {
		return nil, fmt.Errorf("get ratings: %w", err)
	}
	return r, nil
}

// PlaylistMembership is an owned playlist flagged with whether it holds a
// given video.
type PlaylistMembership struct {
	youtube.Playlist
	Member bool `json:"member"`
	// Archive marks the user's archive containers.
	Archive bool `json:"archive"`
}

// VideoPlaylists lists the user's own playlists and whether each one holds
// videoID.
func (s *Service) VideoPlaylists(ctx context.Context, user auth.User, videoID string) ([]PlaylistMembership, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec := st.User(user.ID)
	pattern := s.policy.titlePattern()
	referenced := make(map[string]bool)
	for _, cs := range rec {
		for _, cont := range cs.Archived {
			referenced[cont] = true
		}
	}

	playlists, err := youtube.CollectAll(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.Playlist], error) {
		return s.remote.ListPlaylists(ctx, youtube.PlaylistFilter{Mine: true}, cursor)
	})
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}

	out := make([]PlaylistMembership, 0, len(playlists))
	for _, pl := range playlists {
		page, err := s.remote.ListPlaylistItems(ctx, youtube.ItemFilter{PlaylistID: pl.ID, VideoID: videoID}, "")
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("check %s: %w", pl.ID, err)
		}
		out = append(out, PlaylistMembership{
			Playlist: pl,
			Member:   len(page.Items) > 0,
			Archive:  referenced[pl.ID] || s.policy.isContainer(pattern, user, pl),
		})
	}
	return out, nil
}

// TogglePlaylist adds videoID to or removes it from one of the user's
// playlists. Archive containers are refused; use ArchiveVideo and
// Unarchive for those.
func (s *Service) TogglePlaylist(ctx context.Context, user auth.User, videoID, playlistID string, member bool) error {
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, cs := range st.User(user.ID) {
		for _, cont := range cs.Archived {
			if cont == playlistID {
				return fmt.Errorf("%w: %s", ErrArchiveContainer, playlistID)
			}
		}
	}

	if !member {
		if err := s.removeFromPlaylist(ctx, playlistID, videoID); err != nil {
			return fmt.Errorf("remove %s from %s: %w", videoID, playlistID, err)
		}
		return nil
	}

	page, err := s.remote.ListPlaylistItems(ctx, youtube.ItemFilter{PlaylistID: playlistID, VideoID: videoID}, "")
	if err != nil {
		return fmt.Errorf("check %s: %w", playlistID, err)
	}
	if len(page.Items) > 0 {
		return nil
	}
	if _, err := s.remote.InsertPlaylistItem(ctx, playlistID, videoID); err != nil {
		return fmt.Errorf("add %s to %s: %w", videoID, playlistID, err)
	}
	return nil
}
