package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"ytarchive/internal/retry"
)

var errFound = errors.New("found")

// Quota costs per call type, in Data API units.
const (
	quotaRead  = 1
	quotaWrite = 50
)

// APIOptions configures an APIClient.
type APIOptions struct {
	// HTTPClient carries authentication and the rate-limited transport.
	HTTPClient *http.Client
	// Endpoint overrides the API base URL. Tests point it at httptest servers.
	Endpoint string
	// Retry is applied to every call; only retryable RemoteErrors are repeated.
	Retry  retry.Config
	Logger zerolog.Logger
	// Observe, when set, is told about every call after retries settle.
	Observe func(op string, d time.Duration, err error)
}

// APIClient implements Client on the YouTube Data API v3.
type APIClient struct {
	svc     *yt.Service
	retry   retry.Config
	log     zerolog.Logger
	observe func(op string, d time.Duration, err error)
	quota   atomic.Int64
}

// NewAPIClient creates a client. opts.HTTPClient is required.
func NewAPIClient(ctx context.Context, opts APIOptions) (*APIClient, error) {
	if opts.HTTPClient == nil {
		return nil, fmt.Errorf("youtube: http client required")
	}
	clientOpts := []option.ClientOption{option.WithHTTPClient(opts.HTTPClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	c := &APIClient{
		svc:     svc,
		retry:   opts.Retry,
		log:     opts.Logger.With().Str("component", "youtube").Logger(),
		observe: opts.Observe,
	}
	return c, nil
}

// QuotaUsed returns the estimated Data API units spent by this client.
func (c *APIClient) QuotaUsed() int64 {
	return c.quota.Load()
}

// call runs fn under the retry policy and normalizes its error.
func (c *APIClient) call(ctx context.Context, op string, units int64, fn func(ctx context.Context) error) error {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("wait", wait).Msg("retrying remote call")
	}

	start := time.Now()
	err := retry.Do(ctx, cfg, IsRetryable, func(ctx context.Context) error {
		c.quota.Add(units)
		return Classify(op, fn(ctx))
	})
	if err != nil {
		var rerr *RemoteError
		if errors.As(err, &rerr) {
			err = rerr
		} else {
			err = Classify(op, err)
		}
	}
	if c.observe != nil {
		c.observe(op, time.Since(start), err)
	}
	return err
}

// insert runs a non-idempotent write under the retry policy. Before the
// write is sent again, committed checks whether an earlier attempt already
// landed; if so the loop ends without another write.
func (c *APIClient) insert(ctx context.Context, op string, write, committed func(ctx context.Context) (bool, error)) error {
	attempt := 0
	return c.call(ctx, op, quotaWrite, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			found, err := committed(ctx)
			if err != nil {
				return err
			}
			if found {
				c.log.Debug().Str("op", op).Int("attempt", attempt).Msg("earlier attempt committed")
				return nil
			}
		}
		_, err := write(ctx)
		return err
	})
}

// ListChannels implements Client.
func (c *APIClient) ListChannels(ctx context.Context, f ChannelFilter, cursor string) (Page[Channel], error) {
	var page Page[Channel]
	err := c.call(ctx, "channels.list", quotaRead, func(ctx context.Context) error {
		call := c.svc.Channels.List([]string{"snippet", "contentDetails", "statistics"}).
			MaxResults(MaxIDsPerCall).
			Context(ctx)
		switch {
		case len(f.IDs) > 0:
			call = call.Id(f.IDs...)
		case f.Username != "":
			call = call.ForUsername(f.Username)
		case f.Handle != "":
			call = call.ForHandle(f.Handle)
		case f.Mine:
			call = call.Mine(true)
		}
		if cursor != "" {
			call = call.PageToken(cursor)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		page = Page[Channel]{NextCursor: resp.NextPageToken}
		for _, ch := range resp.Items {
			page.Items = append(page.Items, convertChannel(ch))
		}
		return nil
	})
	return page, err
}

// ListVideos implements Client.
func (c *APIClient) ListVideos(ctx context.Context, f VideoFilter, cursor string) (Page[Video], error) {
	var page Page[Video]
	if len(f.IDs) > MaxIDsPerCall {
		return page, &RemoteError{Op: "videos.list", Err: fmt.Errorf("%d ids exceeds limit of %d", len(f.IDs), MaxIDsPerCall)}
	}
	err := c.call(ctx, "videos.list", quotaRead, func(ctx context.Context) error {
		call := c.svc.Videos.List([]string{"snippet", "contentDetails"}).
			Id(f.IDs...).
			Context(ctx)
		if cursor != "" {
			call = call.PageToken(cursor)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		page = Page[Video]{NextCursor: resp.NextPageToken}
		for _, v := range resp.Items {
			page.Items = append(page.Items, convertVideo(v))
		}
		return nil
	})
	return page, err
}

// ListPlaylists implements Client.
func (c *APIClient) ListPlaylists(ctx context.Context, f PlaylistFilter, cursor string) (Page[Playlist], error) {
	var page Page[Playlist]
	err := c.call(ctx, "playlists.list", quotaRead, func(ctx context.Context) error {
		call := c.svc.Playlists.List([]string{"snippet", "contentDetails", "status"}).
			MaxResults(MaxIDsPerCall).
			Context(ctx)
		switch {
		case len(f.IDs) > 0:
			call = call.Id(f.IDs...)
		case f.ChannelID != "":
			call = call.ChannelId(f.ChannelID)
		case f.Mine:
			call = call.Mine(true)
		}
		if cursor != "" {
			call = call.PageToken(cursor)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		page = Page[Playlist]{NextCursor: resp.NextPageToken}
		for _, p := range resp.Items {
			page.Items = append(page.Items, convertPlaylist(p))
		}
		return nil
	})
	return page, err
}

// ListPlaylistItems implements Client.
func (c *APIClient) ListPlaylistItems(ctx context.Context, f ItemFilter, cursor string) (Page[PlaylistItem], error) {
	var page Page[PlaylistItem]
	err := c.call(ctx, "playlistItems.list", quotaRead, func(ctx context.Context) error {
		call := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(f.PlaylistID).
			MaxResults(MaxIDsPerCall).
			Context(ctx)
		if f.VideoID != "" {
			call = call.VideoId(f.VideoID)
		}
		if cursor != "" {
			call = call.PageToken(cursor)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		page = Page[PlaylistItem]{NextCursor: resp.NextPageToken}
		for _, it := range resp.Items {
			page.Items = append(page.Items, convertItem(it))
		}
		return nil
	})
	return page, err
}

// ListSubscriptions implements Client.
func (c *APIClient) ListSubscriptions(ctx context.Context, f SubscriptionFilter, cursor string) (Page[Subscription], error) {
	var page Page[Subscription]
	err := c.call(ctx, "subscriptions.list", quotaRead, func(ctx context.Context) error {
		call := c.svc.Subscriptions.List([]string{"snippet"}).
			Mine(f.Mine).
			Order("alphabetical").
			MaxResults(MaxIDsPerCall).
			Context(ctx)
		if f.ChannelID != "" {
			call = call.ForChannelId(f.ChannelID)
		}
		if cursor != "" {
			call = call.PageToken(cursor)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		page = Page[Subscription]{NextCursor: resp.NextPageToken}
		for _, s := range resp.Items {
			sub := Subscription{ID: s.Id}
			if s.Snippet != nil {
				sub.Title = s.Snippet.Title
				if s.Snippet.ResourceId != nil {
					sub.ChannelID = s.Snippet.ResourceId.ChannelId
				}
			}
			page.Items = append(page.Items, sub)
		}
		return nil
	})
	return page, err
}

// ListCommentThreads implements Client.
func (c *APIClient) ListCommentThreads(ctx context.Context, videoID, cursor string) (Page[CommentThread], error) {
	var page Page[CommentThread]
	err := c.call(ctx, "commentThreads.list", quotaRead, func(ctx context.Context) error {
		call := c.svc.CommentThreads.List([]string{"snippet"}).
			VideoId(videoID).
			TextFormat("plainText").
			MaxResults(100).
			Context(ctx)
		if cursor != "" {
			call = call.PageToken(cursor)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		page = Page[CommentThread]{NextCursor: resp.NextPageToken}
		for _, th := range resp.Items {
			thread := CommentThread{ID: th.Id, VideoID: videoID}
			if th.Snippet != nil {
				thread.ReplyCount = th.Snippet.TotalReplyCount
				thread.Top = convertComment(th.Snippet.TopLevelComment)
			}
			page.Items = append(page.Items, thread)
		}
		return nil
	})
	return page, err
}

// ListReplies implements Client.
func (c *APIClient) ListReplies(ctx context.Context, parentID, cursor string) (Page[Comment], error) {
	var page Page[Comment]
	err := c.call(ctx, "comments.list", quotaRead, func(ctx context.Context) error {
		call := c.svc.Comments.List([]string{"snippet"}).
			ParentId(parentID).
			TextFormat("plainText").
			MaxResults(100).
			Context(ctx)
		if cursor != "" {
			call = call.PageToken(cursor)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		page = Page[Comment]{NextCursor: resp.NextPageToken}
		for _, cm := range resp.Items {
			page.Items = append(page.Items, convertComment(cm))
		}
		return nil
	})
	return page, err
}

// GetRatings implements Client.
func (c *APIClient) GetRatings(ctx context.Context, videoIDs []string) (map[string]Rating, error) {
	out := make(map[string]Rating, len(videoIDs))
	for _, ids := range Chunk(videoIDs) {
		err := c.call(ctx, "videos.getRating", quotaRead, func(ctx context.Context) error {
			resp, err := c.svc.Videos.GetRating(ids).Context(ctx).Do()
			if err != nil {
				return err
			}
			for _, r := range resp.Items {
				out[r.VideoId] = Rating(r.Rating)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertPlaylistItem implements Client. A retry first looks the video up in
// the playlist, so a committed insert is never repeated.
func (c *APIClient) InsertPlaylistItem(ctx context.Context, playlistID, videoID string) (PlaylistItem, error) {
	var item PlaylistItem
	err := c.insert(ctx, "playlistItems.insert", func(ctx context.Context) (bool, error) {
		resp, err := c.svc.PlaylistItems.Insert([]string{"snippet"}, &yt.PlaylistItem{
			Snippet: &yt.PlaylistItemSnippet{
				PlaylistId: playlistID,
				ResourceId: &yt.ResourceId{Kind: "youtube#video", VideoId: videoID},
			},
		}).Context(ctx).Do()
		if err != nil {
			return false, err
		}
		item = convertItem(resp)
		return true, nil
	}, func(ctx context.Context) (bool, error) {
		resp, err := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			VideoId(videoID).
			MaxResults(1).
			Context(ctx).
			Do()
		if err != nil {
			return false, err
		}
		if len(resp.Items) == 0 {
			return false, nil
		}
		item = convertItem(resp.Items[0])
		return true, nil
	})
	return item, err
}

// DeletePlaylistItem implements Client.
func (c *APIClient) DeletePlaylistItem(ctx context.Context, itemID string) error {
	return c.call(ctx, "playlistItems.delete", quotaWrite, func(ctx context.Context) error {
		return c.svc.PlaylistItems.Delete(itemID).Context(ctx).Do()
	})
}

// CreatePlaylist implements Client. A retry first searches the user's
// playlists for the title, so a committed create is never repeated.
func (c *APIClient) CreatePlaylist(ctx context.Context, title, description, privacy string) (Playlist, error) {
	var pl Playlist
	err := c.insert(ctx, "playlists.insert", func(ctx context.Context) (bool, error) {
		resp, err := c.svc.Playlists.Insert([]string{"snippet", "status", "contentDetails"}, &yt.Playlist{
			Snippet: &yt.PlaylistSnippet{Title: title, Description: description},
			Status:  &yt.PlaylistStatus{PrivacyStatus: privacy},
		}).Context(ctx).Do()
		if err != nil {
			return false, err
		}
		pl = convertPlaylist(resp)
		return true, nil
	}, func(ctx context.Context) (bool, error) {
		found := false
		err := c.svc.Playlists.List([]string{"snippet", "contentDetails", "status"}).
			Mine(true).
			MaxResults(MaxIDsPerCall).
			Pages(ctx, func(resp *yt.PlaylistListResponse) error {
				for _, p := range resp.Items {
					if p.Snippet != nil && p.Snippet.Title == title {
						pl = convertPlaylist(p)
						found = true
						return errFound
					}
				}
				return nil
			})
		if err != nil && !errors.Is(err, errFound) {
			return false, err
		}
		return found, nil
	})
	return pl, err
}

// RenamePlaylist implements Client. The current snippet is fetched first so
// the description survives the update.
func (c *APIClient) RenamePlaylist(ctx context.Context, playlistID, title string) (Playlist, error) {
	var pl Playlist
	err := c.call(ctx, "playlists.update", quotaWrite, func(ctx context.Context) error {
		cur, err := c.svc.Playlists.List([]string{"snippet"}).Id(playlistID).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(cur.Items) == 0 {
			return &RemoteError{Op: "playlists.update", StatusCode: http.StatusNotFound, Err: ErrNotFound}
		}
		snippet := cur.Items[0].Snippet
		if snippet == nil {
			snippet = &yt.PlaylistSnippet{}
		}
		snippet.Title = title
		resp, err := c.svc.Playlists.Update([]string{"snippet", "contentDetails", "status"}, &yt.Playlist{
			Id:      playlistID,
			Snippet: snippet,
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		pl = convertPlaylist(resp)
		return nil
	})
	return pl, err
}

// Subscribe implements Client. A retry first checks for the subscription.
func (c *APIClient) Subscribe(ctx context.Context, channelID string) (Subscription, error) {
	var sub Subscription
	convert := func(s *yt.Subscription) {
		sub = Subscription{ID: s.Id, ChannelID: channelID}
		if s.Snippet != nil {
			sub.Title = s.Snippet.Title
		}
	}
	err := c.insert(ctx, "subscriptions.insert", func(ctx context.Context) (bool, error) {
		resp, err := c.svc.Subscriptions.Insert([]string{"snippet"}, &yt.Subscription{
			Snippet: &yt.SubscriptionSnippet{
				ResourceId: &yt.ResourceId{Kind: "youtube#channel", ChannelId: channelID},
			},
		}).Context(ctx).Do()
		if err != nil {
			return false, err
		}
		convert(resp)
		return true, nil
	}, func(ctx context.Context) (bool, error) {
		resp, err := c.svc.Subscriptions.List([]string{"snippet"}).
			Mine(true).
			ForChannelId(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return false, err
		}
		if len(resp.Items) == 0 {
			return false, nil
		}
		convert(resp.Items[0])
		return true, nil
	})
	return sub, err
}

// Unsubscribe implements Client.
func (c *APIClient) Unsubscribe(ctx context.Context, subscriptionID string) error {
	return c.call(ctx, "subscriptions.delete", quotaWrite, func(ctx context.Context) error {
		return c.svc.Subscriptions.Delete(subscriptionID).Context(ctx).Do()
	})
}

// Rate implements Client.
func (c *APIClient) Rate(ctx context.Context, videoID string, rating Rating) error {
	if !rating.Valid() {
		return &RemoteError{Op: "videos.rate", Err: fmt.Errorf("invalid rating %q", rating)}
	}
	return c.call(ctx, "videos.rate", quotaWrite, func(ctx context.Context) error {
		return c.svc.Videos.Rate(videoID, string(rating)).Context(ctx).Do()
	})
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func convertChannel(ch *yt.Channel) Channel {
	out := Channel{ID: ch.Id}
	if ch.Snippet != nil {
		out.Title = ch.Snippet.Title
		out.CustomURL = ch.Snippet.CustomUrl
		if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
			out.Thumbnail = ch.Snippet.Thumbnails.Default.Url
		}
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		out.UploadsPlaylistID = ch.ContentDetails.RelatedPlaylists.Uploads
	}
	if ch.Statistics != nil {
		out.VideoCount = ch.Statistics.VideoCount
	}
	return out
}

func convertVideo(v *yt.Video) Video {
	out := Video{ID: v.Id}
	if v.Snippet != nil {
		out.Title = v.Snippet.Title
		out.Description = v.Snippet.Description
		out.ChannelID = v.Snippet.ChannelId
		out.ChannelTitle = v.Snippet.ChannelTitle
		out.PublishedAt = parseTime(v.Snippet.PublishedAt)
		if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.Default != nil {
			out.Thumbnail = v.Snippet.Thumbnails.Default.Url
		}
	}
	if v.ContentDetails != nil {
		out.Duration = v.ContentDetails.Duration
	}
	return out
}

func convertPlaylist(p *yt.Playlist) Playlist {
	out := Playlist{ID: p.Id}
	if p.Snippet != nil {
		out.Title = p.Snippet.Title
		out.ChannelID = p.Snippet.ChannelId
		out.PublishedAt = parseTime(p.Snippet.PublishedAt)
	}
	if p.ContentDetails != nil {
		out.ItemCount = p.ContentDetails.ItemCount
	}
	if p.Status != nil {
		out.Privacy = p.Status.PrivacyStatus
	}
	return out
}

func convertItem(it *yt.PlaylistItem) PlaylistItem {
	out := PlaylistItem{ID: it.Id}
	if it.Snippet != nil {
		out.PlaylistID = it.Snippet.PlaylistId
		out.Title = it.Snippet.Title
		out.Position = it.Snippet.Position
		if it.Snippet.ResourceId != nil {
			out.VideoID = it.Snippet.ResourceId.VideoId
		}
	}
	if it.ContentDetails != nil {
		if out.VideoID == "" {
			out.VideoID = it.ContentDetails.VideoId
		}
		out.PublishedAt = parseTime(it.ContentDetails.VideoPublishedAt)
	}
	return out
}

func convertComment(cm *yt.Comment) Comment {
	if cm == nil {
		return Comment{}
	}
	out := Comment{ID: cm.Id}
	if cm.Snippet != nil {
		out.ParentID = cm.Snippet.ParentId
		out.Author = cm.Snippet.AuthorDisplayName
		out.Text = cm.Snippet.TextDisplay
		out.LikeCount = cm.Snippet.LikeCount
		out.PublishedAt = parseTime(cm.Snippet.PublishedAt)
	}
	return out
}
