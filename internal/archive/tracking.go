package archive

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"ytarchive/internal/auth"
	"ytarchive/internal/youtube"
)

// Track starts tracking channelID for the user. It reports whether the
// channel was newly tracked.
func (s *Service) Track(ctx context.Context, user auth.User, channelID string) (bool, error) {
	if channelID == "" {
		return false, fmt.Errorf("track: empty channel id")
	}
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if _, created := st.User(user.ID).Channel(channelID); !created {
		return false, nil
	}
	if err := s.save(ctx, st); err != nil {
		return false, err
	}
	s.userLog(user.ID).Info().Str("channel", channelID).Msg("tracking channel")
	return true, nil
}

// UntrackResult counts the best-effort remote evictions of Untrack.
type UntrackResult struct {
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Untrack stops tracking channelID. When the policy evicts on untrack, each
// archived video of the channel is removed from its container first;
// failures are logged and counted but never block the local removal.
// Cancelling ctx stops the evictions, counts the rest as failed and still
// removes the channel locally. Untracking an untracked channel does nothing.
func (s *Service) Untrack(ctx context.Context, user auth.User, channelID string) (*UntrackResult, error) {
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec := st.User(user.ID)
	cs, ok := rec[channelID]
	if !ok {
		return &UntrackResult{}, nil
	}

	res := &UntrackResult{}
	log := s.userLog(user.ID).With().Str("channel", channelID).Logger()
	if s.policy.EvictOnUntrack && cs != nil {
		videos := sortedKeys(cs.Archived)
		for i, vid := range videos {
			if ctx.Err() != nil {
				log.Warn().Int("skipped", len(videos)-i).Msg("eviction cancelled")
				res.Failed += len(videos) - i
				break
			}
			cont := cs.Archived[vid]
			if err := s.removeFromPlaylist(ctx, cont, vid); err != nil {
				log.Warn().Err(err).Str("video", vid).Str("container", cont).Msg("could not evict archived video")
				res.Failed++
				continue
			}
			res.Removed++
		}
	}

	delete(rec, channelID)
	if err := s.save(context.WithoutCancel(ctx), st); err != nil {
		return nil, err
	}
	log.Info().Int("evicted", res.Removed).Int("failed", res.Failed).Msg("untracked channel")
	return res, nil
}

// ResolveAndTrack resolves query to a channel and tracks it. Resolution
// failures are returned as *ResolutionError with nothing changed.
func (s *Service) ResolveAndTrack(ctx context.Context, user auth.User, query string, kind QueryKind) (youtube.Channel, error) {
	q, err := ClassifyAs(query, kind)
	if err != nil {
		return youtube.Channel{}, err
	}
	ch, err := s.resolver.Resolve(ctx, q)
	if err != nil {
		return youtube.Channel{}, err
	}
	if _, err := s.Track(ctx, user, ch.ID); err != nil {
		return youtube.Channel{}, err
	}
	return ch, nil
}

// SetTracked applies a batch of track (true) and untrack (false) flags in
// one save. Untracking here never touches remote containers.
func (s *Service) SetTracked(ctx context.Context, user auth.User, flags map[string]bool) (added, removed []string, err error) {
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	rec := st.User(user.ID)
	for _, cid := range sortedKeys(flags) {
		if cid == "" {
			continue
		}
		if flags[cid] {
			if _, created := rec.Channel(cid); created {
				added = append(added, cid)
			}
			continue
		}
		if _, ok := rec[cid]; ok {
			delete(rec, cid)
			removed = append(removed, cid)
		}
	}
	if len(added)+len(removed) == 0 {
		return nil, nil, nil
	}
	if err := s.save(ctx, st); err != nil {
		return nil, nil, err
	}
	return added, removed, nil
}

// SortOrder orders ListTracked results.
type SortOrder string

const (
	SortByTitle  SortOrder = "title"
	SortByPlayed SortOrder = "played"
)

// ChannelSummary is one tracked channel with its local progress.
type ChannelSummary struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	VideoCount    uint64  `json:"video_count"`
	Played        int     `json:"played"`
	Archived      int     `json:"archived"`
	PlayedPercent float64 `json:"played_percent"`
}

// ListTracked returns the user's tracked channels with metadata. Channels
// the platform no longer returns are listed by ID.
func (s *Service) ListTracked(ctx context.Context, user auth.User, order SortOrder) ([]ChannelSummary, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec := st.User(user.ID)
	ids := rec.ChannelIDs()
	meta, err := s.lookupChannels(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("look up channels: %w", err)
	}

	out := make([]ChannelSummary, 0, len(ids))
	for _, id := range ids {
		cs := rec[id]
		sum := ChannelSummary{ID: id, Title: id, Played: len(cs.Played), Archived: len(cs.Archived)}
		if ch, ok := meta[id]; ok {
			sum.Title = ch.Title
			sum.VideoCount = ch.VideoCount
		}
		if sum.VideoCount > 0 {
			sum.PlayedPercent = min(100, float64(sum.Played)*100/float64(sum.VideoCount))
		}
		out = append(out, sum)
	}

	col := collate.New(language.Und, collate.IgnoreCase)
	byTitle := func(a, b ChannelSummary) int {
		if c := col.CompareString(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}
	switch order {
	case SortByPlayed:
		slices.SortFunc(out, func(a, b ChannelSummary) int {
			if c := cmp.Compare(b.PlayedPercent, a.PlayedPercent); c != 0 {
				return c
			}
			return byTitle(a, b)
		})
	default:
		slices.SortFunc(out, byTitle)
	}
	return out, nil
}

// SubscriptionSummary is a subscription flagged with tracking status.
type SubscriptionSummary struct {
	youtube.Subscription
	Tracked bool `json:"tracked"`
}

// Subscriptions lists the user's subscriptions alphabetically.
func (s *Service) Subscriptions(ctx context.Context, user auth.User) ([]SubscriptionSummary, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec := st.User(user.ID)

	subs, err := youtube.CollectAll(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.Subscription], error) {
		return s.remote.ListSubscriptions(ctx, youtube.SubscriptionFilter{Mine: true}, cursor)
	})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	out := make([]SubscriptionSummary, 0, len(subs))
	for _, sub := range subs {
		_, tracked := rec[sub.ChannelID]
		out = append(out, SubscriptionSummary{Subscription: sub, Tracked: tracked})
	}
	col := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(out, func(a, b SubscriptionSummary) int {
		return col.CompareString(a.Title, b.Title)
	})
	return out, nil
}
