// Package youtube is the remote collection client: typed, page-at-a-time
// access to the channels, videos, playlists, playlist items, subscriptions,
// comments and ratings of the YouTube Data API.
//
// List operations never follow cursors on their own. Use Collect to gather
// a complete result set.
package youtube

import (
	"context"
	"time"
)

// Channel is a content owner.
type Channel struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	CustomURL         string `json:"custom_url,omitempty"`
	Thumbnail         string `json:"thumbnail,omitempty"`
	UploadsPlaylistID string `json:"uploads_playlist_id,omitempty"`
	VideoCount        uint64 `json:"video_count"`
}

// Video is a single upload.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	Duration     string    `json:"duration,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
}

// Playlist is a remote ordered collection. Archive containers are playlists.
type Playlist struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ChannelID   string    `json:"channel_id,omitempty"`
	ItemCount   int64     `json:"item_count"`
	Privacy     string    `json:"privacy,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// PlaylistItem is one membership record of a video in a playlist.
type PlaylistItem struct {
	ID          string    `json:"id"`
	PlaylistID  string    `json:"playlist_id"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title,omitempty"`
	Position    int64     `json:"position"`
	PublishedAt time.Time `json:"published_at"`
}

// Subscription links the authenticated user to a channel.
type Subscription struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Title     string `json:"title"`
}

// Comment is a top-level comment or a reply.
type Comment struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	PublishedAt time.Time `json:"published_at"`
}

// CommentThread is a top-level comment with its reply count.
type CommentThread struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"video_id"`
	Top        Comment   `json:"top"`
	ReplyCount int64     `json:"reply_count"`
	Replies    []Comment `json:"replies,omitempty"`
}

// Rating is the authenticated user's rating of a video.
type Rating string

// Ratings accepted by Rate.
const (
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
	RatingNone    Rating = "none"
)

// Valid reports whether r is one of the accepted ratings.
func (r Rating) Valid() bool {
	switch r {
	case RatingLike, RatingDislike, RatingNone:
		return true
	}
	return false
}

// Page is one page of a list result. NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// ChannelFilter selects channels. Exactly one field should be set.
type ChannelFilter struct {
	IDs      []string
	Username string // legacy /user/ name
	Handle   string // @handle
	Mine     bool
}

// VideoFilter selects videos by ID. The API accepts at most MaxIDsPerCall IDs.
type VideoFilter struct {
	IDs []string
}

// PlaylistFilter selects playlists.
type PlaylistFilter struct {
	IDs       []string
	Mine      bool
	ChannelID string
}

// ItemFilter selects the items of one playlist, optionally for one video.
type ItemFilter struct {
	PlaylistID string
	VideoID    string
}

// SubscriptionFilter selects the authenticated user's subscriptions,
// optionally only the one for ChannelID.
type SubscriptionFilter struct {
	Mine      bool
	ChannelID string
}

// MaxIDsPerCall is the API limit on IDs per list call and on page size.
const MaxIDsPerCall = 50

// Client is the remote collection client. Every method returns a
// *RemoteError on failure.
type Client interface {
	ListChannels(ctx context.Context, f ChannelFilter, cursor string) (Page[Channel], error)
	ListVideos(ctx context.Context, f VideoFilter, cursor string) (Page[Video], error)
	ListPlaylists(ctx context.Context, f PlaylistFilter, cursor string) (Page[Playlist], error)
	ListPlaylistItems(ctx context.Context, f ItemFilter, cursor string) (Page[PlaylistItem], error)
	ListSubscriptions(ctx context.Context, f SubscriptionFilter, cursor string) (Page[Subscription], error)
	ListCommentThreads(ctx context.Context, videoID, cursor string) (Page[CommentThread], error)
	ListReplies(ctx context.Context, parentID, cursor string) (Page[Comment], error)
	GetRatings(ctx context.Context, videoIDs []string) (map[string]Rating, error)

	InsertPlaylistItem(ctx context.Context, playlistID, videoID string) (PlaylistItem, error)
	DeletePlaylistItem(ctx context.Context, itemID string) error
	CreatePlaylist(ctx context.Context, title, description, privacy string) (Playlist, error)
	RenamePlaylist(ctx context.Context, playlistID, title string) (Playlist, error)
	Subscribe(ctx context.Context, channelID string) (Subscription, error)
	Unsubscribe(ctx context.Context, subscriptionID string) error
	Rate(ctx context.Context, videoID string, rating Rating) error
}
