package archive

import (
	"context"
	"fmt"

	"ytarchive/internal/auth"
	"ytarchive/internal/youtube"
)

func (s *Service) findSubscription(ctx context.Context, channelID string) (*youtube.Subscription, error) {
	page, err := s.remote.ListSubscriptions(ctx, youtube.SubscriptionFilter{Mine: true, ChannelID: channelID}, "")
	if err != nil {
		return nil, err
	}
	for _, sub := range page.Items {
		if sub.ChannelID == channelID {
			return &sub, nil
		}
	}
	return nil, nil
}

// Subscribe subscribes the user to channelID. An existing subscription is
// returned as is.
func (s *Service) Subscribe(ctx context.Context, user auth.User, channelID string) (youtube.Subscription, error) {
	existing, err := s.findSubscription(ctx, channelID)
	if err != nil {
		return youtube.Subscription{}, fmt.Errorf("subscribe %s: %w", channelID, err)
	}
	if existing != nil {
		return *existing, nil
	}
	sub, err := s.remote.Subscribe(ctx, channelID)
	if err != nil {
		return youtube.Subscription{}, fmt.Errorf("subscribe %s: %w", channelID, err)
	}
	s.userLog(user.ID).Info().Str("channel", channelID).Msg("subscribed")
	return sub, nil
}

// Unsubscribe removes the user's subscription to channelID. It reports
// whether a subscription existed.
func (s *Service) Unsubscribe(ctx context.Context, user auth.User, channelID string) (bool, error) {
	existing, err := s.findSubscription(ctx, channelID)
	if err != nil {
		return false, fmt.Errorf("unsubscribe %s: %w", channelID, err)
	}
	if existing == nil {
		return false, nil
	}
	if err := s.remote.Unsubscribe(ctx, existing.ID); err != nil && !isNotFound(err) {
		return false, fmt.Errorf("unsubscribe %s: %w", channelID, err)
	}
	s.userLog(user.ID).Info().Str("channel", channelID).Msg("unsubscribed")
	return true, nil
}

// Comments returns the comment threads of videoID, with every reply when
// withReplies is set.
func (s *Service) Comments(ctx context.Context, user auth.User, videoID string, withReplies bool) ([]youtube.CommentThread, error) {
	threads, err := youtube.CollectAll(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.CommentThread], error) {
		return s.remote.ListCommentThreads(ctx, videoID, cursor)
	})
	if err != nil {
		return nil, fmt.Errorf("list comments of %s: %w", videoID, err)
	}
	if !withReplies {
		return threads, nil
	}
	for i := range threads {
		if threads[i].ReplyCount == 0 {
			continue
		}
		replies, err := youtube.CollectAll(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.Comment], error) {
			return s.remote.ListReplies(ctx, threads[i].Top.ID, cursor)
		})
		if err != nil {
			return nil, fmt.Errorf("list replies to %s: %w", threads[i].Top.ID, err)
		}
		threads[i].Replies = replies
	}
	return threads, nil
}
