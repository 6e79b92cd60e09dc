// Package testutil provides an in-memory video platform for tests.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"ytarchive/internal/youtube"
)

// Request is one recorded call to the fake.
type Request struct {
	Op  string
	Arg string
}

type fakePlaylist struct {
	meta  youtube.Playlist
	items []youtube.PlaylistItem
	owned bool
	// extra inflates ItemCount without materializing items.
	extra int64
}

// FakeRemote implements youtube.Client in memory. All exported helpers are
// safe for concurrent use.
type FakeRemote struct {
	mu sync.Mutex

	// PageSize bounds every listing except video lookups by ID. Zero means
	// youtube.MaxIDsPerCall.
	PageSize int
	// Hook, when set, is consulted before every call. A non-nil error is
	// classified and returned instead of performing the call.
	Hook func(op, arg string) error

	owner     youtube.Channel
	channels  map[string]youtube.Channel
	usernames map[string]string
	handles   map[string]string
	videos    map[string]youtube.Video
	playlists map[string]*fakePlaylist
	order     []string
	subs      []youtube.Subscription
	ratings   map[string]youtube.Rating
	threads   map[string][]youtube.CommentThread
	replies   map[string][]youtube.Comment

	failures map[string]error
	requests []Request
	seq      int
	clock    time.Time
}

// NewFakeRemote returns an empty platform whose authenticated user owns the
// given channel.
func NewFakeRemote(owner youtube.Channel) *FakeRemote {
	f := &FakeRemote{
		owner:     owner,
		channels:  make(map[string]youtube.Channel),
		usernames: make(map[string]string),
		handles:   make(map[string]string),
		videos:    make(map[string]youtube.Video),
		playlists: make(map[string]*fakePlaylist),
		ratings:   make(map[string]youtube.Rating),
		threads:   make(map[string][]youtube.CommentThread),
		replies:   make(map[string][]youtube.Comment),
		failures:  make(map[string]error),
		clock:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if owner.ID != "" {
		f.channels[owner.ID] = owner
	}
	return f
}

var _ youtube.Client = (*FakeRemote)(nil)

func (f *FakeRemote) nextID(prefix string) string {
	f.seq++
	return prefix + strconv.Itoa(f.seq)
}

func (f *FakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Hour)
	return f.clock
}

func notFound(op, what string) error {
	return &youtube.RemoteError{
		Op:         op,
		StatusCode: http.StatusNotFound,
		Reason:     what + "NotFound",
		Err:        youtube.ErrNotFound,
	}
}

// enter records the call and returns an injected failure, if any.
func (f *FakeRemote) enter(op, arg string) error {
	f.requests = append(f.requests, Request{Op: op, Arg: arg})
	if err, ok := f.failures[op]; ok {
		return youtube.Classify(op, err)
	}
	if f.Hook != nil {
		if err := f.Hook(op, arg); err != nil {
			return youtube.Classify(op, err)
		}
	}
	return nil
}

func page[T any](items []T, cursor string, size int) (youtube.Page[T], error) {
	if size <= 0 {
		size = youtube.MaxIDsPerCall
	}
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(items) {
			return youtube.Page[T]{}, fmt.Errorf("bad cursor %q", cursor)
		}
		start = n
	}
	end := min(start+size, len(items))
	p := youtube.Page[T]{Items: slices.Clone(items[start:end])}
	if end < len(items) {
		p.NextCursor = strconv.Itoa(end)
	}
	return p, nil
}

// Seeding helpers.

// AddChannel registers a channel, optionally reachable by a legacy username
// and a handle. An uploads playlist is created for it.
func (f *FakeRemote) AddChannel(ch youtube.Channel, username, handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch.UploadsPlaylistID == "" {
		ch.UploadsPlaylistID = "UU" + strings.TrimPrefix(ch.ID, "UC")
	}
	f.channels[ch.ID] = ch
	if username != "" {
		f.usernames[strings.ToLower(username)] = ch.ID
	}
	if handle != "" {
		f.handles[strings.ToLower(strings.TrimPrefix(handle, "@"))] = ch.ID
	}
	if _, ok := f.playlists[ch.UploadsPlaylistID]; !ok {
		f.playlists[ch.UploadsPlaylistID] = &fakePlaylist{
			meta: youtube.Playlist{ID: ch.UploadsPlaylistID, Title: "Uploads from " + ch.Title, ChannelID: ch.ID},
		}
		f.order = append(f.order, ch.UploadsPlaylistID)
	}
}

// AddVideo registers a video and appends it to its channel's uploads.
func (f *FakeRemote) AddVideo(v youtube.Video) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.PublishedAt.IsZero() {
		v.PublishedAt = f.tick()
	}
	f.videos[v.ID] = v
	ch, ok := f.channels[v.ChannelID]
	if !ok {
		return
	}
	ch.VideoCount++
	f.channels[ch.ID] = ch
	if pl := f.playlists[ch.UploadsPlaylistID]; pl != nil {
		f.appendItem(pl, v.ID)
	}
}

// RemoveVideo makes a video disappear from lookups, as if deleted. Playlist
// memberships stay in place.
func (f *FakeRemote) RemoveVideo(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.videos, id)
}

// AddPlaylist creates a playlist with the given title and creation time.
// Owned playlists are listed by PlaylistFilter{Mine: true}.
func (f *FakeRemote) AddPlaylist(id, title string, created time.Time, owned bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlists[id] = &fakePlaylist{
		meta:  youtube.Playlist{ID: id, Title: title, ChannelID: f.owner.ID, PublishedAt: created, Privacy: "private"},
		owned: owned,
	}
	f.order = append(f.order, id)
}

// SetItemCount pads a playlist's reported ItemCount to n without adding
// items. It never shrinks below the real membership.
func (f *FakeRemote) SetItemCount(id string, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pl := f.playlists[id]; pl != nil {
		pl.extra = max(n-int64(len(pl.items)), 0)
	}
}

// AddItem puts a video into a playlist and returns the item ID.
func (f *FakeRemote) AddItem(playlistID, videoID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl := f.playlists[playlistID]
	if pl == nil {
		panic("testutil: unknown playlist " + playlistID)
	}
	return f.appendItem(pl, videoID).ID
}

func (f *FakeRemote) appendItem(pl *fakePlaylist, videoID string) youtube.PlaylistItem {
	it := youtube.PlaylistItem{
		ID:          f.nextID("item-"),
		PlaylistID:  pl.meta.ID,
		VideoID:     videoID,
		Title:       f.videos[videoID].Title,
		Position:    int64(len(pl.items)),
		PublishedAt: f.videos[videoID].PublishedAt,
	}
	pl.items = append(pl.items, it)
	return it
}

// AddSubscription subscribes the owner to a channel.
func (f *FakeRemote) AddSubscription(channelID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, youtube.Subscription{ID: f.nextID("sub-"), ChannelID: channelID, Title: title})
}

// AddCommentThread attaches a thread and its replies to a video.
func (f *FakeRemote) AddCommentThread(videoID string, top youtube.Comment, replies ...youtube.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range replies {
		replies[i].ParentID = top.ID
	}
	f.threads[videoID] = append(f.threads[videoID], youtube.CommentThread{
		ID:         "th-" + top.ID,
		VideoID:    videoID,
		Top:        top,
		ReplyCount: int64(len(replies)),
	})
	f.replies[top.ID] = append(f.replies[top.ID], replies...)
}

// FailOn makes every call to op fail with err until ClearFailures.
func (f *FakeRemote) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// ClearFailures removes all failures registered with FailOn.
func (f *FakeRemote) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.failures)
}

// Inspection helpers.

// Members returns the video IDs in a playlist, in order.
func (f *FakeRemote) Members(playlistID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl := f.playlists[playlistID]
	if pl == nil {
		return nil
	}
	out := make([]string, 0, len(pl.items))
	for _, it := range pl.items {
		out = append(out, it.VideoID)
	}
	return out
}

// Playlist returns the current metadata of a playlist.
func (f *FakeRemote) Playlist(id string) (youtube.Playlist, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl := f.playlists[id]
	if pl == nil {
		return youtube.Playlist{}, false
	}
	return f.snapshot(pl), true
}

// OwnedPlaylists returns the owned playlists in creation order.
func (f *FakeRemote) OwnedPlaylists() []youtube.Playlist {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []youtube.Playlist
	for _, id := range f.order {
		if pl := f.playlists[id]; pl.owned {
			out = append(out, f.snapshot(pl))
		}
	}
	return out
}

// Subscriptions returns the owner's subscriptions.
func (f *FakeRemote) Subscriptions() []youtube.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.subs)
}

// Rating returns the stored rating of a video.
func (f *FakeRemote) Rating(videoID string) youtube.Rating {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.ratings[videoID]; ok {
		return r
	}
	return youtube.RatingNone
}

// Calls returns how many times op was invoked.
func (f *FakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Op == op {
			n++
		}
	}
	return n
}

// Requests returns every recorded call in order.
func (f *FakeRemote) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// ResetCalls forgets the recorded calls.
func (f *FakeRemote) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

func (f *FakeRemote) snapshot(pl *fakePlaylist) youtube.Playlist {
	p := pl.meta
	p.ItemCount = int64(len(pl.items)) + pl.extra
	return p
}

// youtube.Client

func (f *FakeRemote) ListChannels(ctx context.Context, flt youtube.ChannelFilter, cursor string) (youtube.Page[youtube.Channel], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var arg string
	var out []youtube.Channel
	switch {
	case len(flt.IDs) > 0:
		arg = "id:" + strings.Join(flt.IDs, ",")
		for _, id := range flt.IDs {
			if ch, ok := f.channels[id]; ok {
				out = append(out, ch)
			}
		}
	case flt.Username != "":
		arg = "user:" + flt.Username
		if id, ok := f.usernames[strings.ToLower(flt.Username)]; ok {
			out = append(out, f.channels[id])
		}
	case flt.Handle != "":
		arg = "handle:" + flt.Handle
		if id, ok := f.handles[strings.ToLower(strings.TrimPrefix(flt.Handle, "@"))]; ok {
			out = append(out, f.channels[id])
		}
	case flt.Mine:
		arg = "mine"
		if f.owner.ID != "" {
			out = append(out, f.channels[f.owner.ID])
		}
	}
	if err := f.enter("channels.list", arg); err != nil {
		return youtube.Page[youtube.Channel]{}, err
	}
	return page(out, cursor, f.PageSize)
}

func (f *FakeRemote) ListVideos(ctx context.Context, flt youtube.VideoFilter, cursor string) (youtube.Page[youtube.Video], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("videos.list", strings.Join(flt.IDs, ",")); err != nil {
		return youtube.Page[youtube.Video]{}, err
	}
	if len(flt.IDs) > youtube.MaxIDsPerCall {
		return youtube.Page[youtube.Video]{}, &youtube.RemoteError{Op: "videos.list", StatusCode: http.StatusBadRequest, Err: fmt.Errorf("too many ids: %d", len(flt.IDs))}
	}
	var out []youtube.Video
	for _, id := range flt.IDs {
		if v, ok := f.videos[id]; ok {
			out = append(out, v)
		}
	}
	// ID lookups return every match in one page, as the platform does.
	return page(out, cursor, youtube.MaxIDsPerCall)
}

func (f *FakeRemote) ListPlaylists(ctx context.Context, flt youtube.PlaylistFilter, cursor string) (youtube.Page[youtube.Playlist], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var arg string
	var out []youtube.Playlist
	switch {
	case len(flt.IDs) > 0:
		arg = "id:" + strings.Join(flt.IDs, ",")
		for _, id := range flt.IDs {
			if pl := f.playlists[id]; pl != nil {
				out = append(out, f.snapshot(pl))
			}
		}
	case flt.ChannelID != "":
		arg = "channel:" + flt.ChannelID
		for _, id := range f.order {
			if pl := f.playlists[id]; pl.meta.ChannelID == flt.ChannelID {
				out = append(out, f.snapshot(pl))
			}
		}
	case flt.Mine:
		arg = "mine"
		for _, id := range f.order {
			if pl := f.playlists[id]; pl.owned {
				out = append(out, f.snapshot(pl))
			}
		}
	}
	if err := f.enter("playlists.list", arg); err != nil {
		return youtube.Page[youtube.Playlist]{}, err
	}
	return page(out, cursor, f.PageSize)
}

func (f *FakeRemote) ListPlaylistItems(ctx context.Context, flt youtube.ItemFilter, cursor string) (youtube.Page[youtube.PlaylistItem], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("playlistItems.list", flt.PlaylistID); err != nil {
		return youtube.Page[youtube.PlaylistItem]{}, err
	}
	pl := f.playlists[flt.PlaylistID]
	if pl == nil {
		return youtube.Page[youtube.PlaylistItem]{}, notFound("playlistItems.list", "playlist")
	}
	items := pl.items
	if flt.VideoID != "" {
		items = nil
		for _, it := range pl.items {
			if it.VideoID == flt.VideoID {
				items = append(items, it)
			}
		}
	}
	return page(items, cursor, f.PageSize)
}

func (f *FakeRemote) ListSubscriptions(ctx context.Context, flt youtube.SubscriptionFilter, cursor string) (youtube.Page[youtube.Subscription], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("subscriptions.list", flt.ChannelID); err != nil {
		return youtube.Page[youtube.Subscription]{}, err
	}
	var out []youtube.Subscription
	for _, s := range f.subs {
		if flt.ChannelID == "" || s.ChannelID == flt.ChannelID {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b youtube.Subscription) int {
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
	return page(out, cursor, f.PageSize)
}

func (f *FakeRemote) ListCommentThreads(ctx context.Context, videoID, cursor string) (youtube.Page[youtube.CommentThread], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("commentThreads.list", videoID); err != nil {
		return youtube.Page[youtube.CommentThread]{}, err
	}
	if _, ok := f.videos[videoID]; !ok {
		return youtube.Page[youtube.CommentThread]{}, notFound("commentThreads.list", "video")
	}
	return page(f.threads[videoID], cursor, f.PageSize)
}

func (f *FakeRemote) ListReplies(ctx context.Context, parentID, cursor string) (youtube.Page[youtube.Comment], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("comments.list", parentID); err != nil {
		return youtube.Page[youtube.Comment]{}, err
	}
	return page(f.replies[parentID], cursor, f.PageSize)
}

func (f *FakeRemote) GetRatings(ctx context.Context, videoIDs []string) (map[string]youtube.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("videos.getRating", strings.Join(videoIDs, ",")); err != nil {
		return nil, err
	}
	out := make(map[string]youtube.Rating, len(videoIDs))
	for _, id := range videoIDs {
		if r, ok := f.ratings[id]; ok {
			out[id] = r
		} else {
			out[id] = youtube.RatingNone
		}
	}
	return out, nil
}

func (f *FakeRemote) InsertPlaylistItem(ctx context.Context, playlistID, videoID string) (youtube.PlaylistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("playlistItems.insert", playlistID+"/"+videoID); err != nil {
		return youtube.PlaylistItem{}, err
	}
	pl := f.playlists[playlistID]
	if pl == nil {
		return youtube.PlaylistItem{}, notFound("playlistItems.insert", "playlist")
	}
	if _, ok := f.videos[videoID]; !ok {
		return youtube.PlaylistItem{}, notFound("playlistItems.insert", "video")
	}
	return f.appendItem(pl, videoID), nil
}

func (f *FakeRemote) DeletePlaylistItem(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("playlistItems.delete", itemID); err != nil {
		return err
	}
	for _, pl := range f.playlists {
		for i, it := range pl.items {
			if it.ID == itemID {
				pl.items = slices.Delete(pl.items, i, i+1)
				return nil
			}
		}
	}
	return notFound("playlistItems.delete", "playlistItem")
}

func (f *FakeRemote) CreatePlaylist(ctx context.Context, title, description, privacy string) (youtube.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("playlists.insert", title); err != nil {
		return youtube.Playlist{}, err
	}
	pl := &fakePlaylist{
		meta: youtube.Playlist{
			ID:          f.nextID("PLnew"),
			Title:       title,
			ChannelID:   f.owner.ID,
			Privacy:     privacy,
			PublishedAt: f.tick(),
		},
		owned: true,
	}
	f.playlists[pl.meta.ID] = pl
	f.order = append(f.order, pl.meta.ID)
	return f.snapshot(pl), nil
}

func (f *FakeRemote) RenamePlaylist(ctx context.Context, playlistID, title string) (youtube.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("playlists.update", playlistID); err != nil {
		return youtube.Playlist{}, err
	}
	pl := f.playlists[playlistID]
	if pl == nil {
		return youtube.Playlist{}, notFound("playlists.update", "playlist")
	}
	pl.meta.Title = title
	return f.snapshot(pl), nil
}

func (f *FakeRemote) Subscribe(ctx context.Context, channelID string) (youtube.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("subscriptions.insert", channelID); err != nil {
		return youtube.Subscription{}, err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return youtube.Subscription{}, notFound("subscriptions.insert", "channel")
	}
	for _, s := range f.subs {
		if s.ChannelID == channelID {
			return youtube.Subscription{}, &youtube.RemoteError{
				Op: "subscriptions.insert", StatusCode: http.StatusBadRequest,
				Reason: "subscriptionDuplicate", Err: fmt.Errorf("already subscribed"),
			}
		}
	}
	sub := youtube.Subscription{ID: f.nextID("sub-"), ChannelID: channelID, Title: ch.Title}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *FakeRemote) Unsubscribe(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("subscriptions.delete", subscriptionID); err != nil {
		return err
	}
	for i, s := range f.subs {
		if s.ID == subscriptionID {
			f.subs = slices.Delete(f.subs, i, i+1)
			return nil
		}
	}
	return notFound("subscriptions.delete", "subscription")
}

func (f *FakeRemote) Rate(ctx context.Context, videoID string, rating youtube.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("videos.rate", videoID+"="+string(rating)); err != nil {
		return err
	}
	if !rating.Valid() {
		return &youtube.RemoteError{Op: "videos.rate", StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid rating %q", rating)}
	}
	if _, ok := f.videos[videoID]; !ok {
		return notFound("videos.rate", "video")
	}
	if rating == youtube.RatingNone {
		delete(f.ratings, videoID)
	} else {
		f.ratings[videoID] = rating
	}
	return nil
}
