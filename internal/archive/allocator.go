package archive

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"ytarchive/internal/auth"
	"ytarchive/internal/storage"
	"ytarchive/internal/youtube"
)

// Container is an archive playlist known for a user.
type Container struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ItemCount int64     `json:"item_count"`
	CreatedAt time.Time `json:"created_at"`
	// Owned is false for playlists referenced by local state that the
	// user's own playlist listing does not return. They are never
	// allocation targets.
	Owned bool `json:"owned"`
	// Local is the number of videos local state places in this container.
	Local int `json:"local"`
}

// containerTitle renders the naming template.
func (p Policy) containerTitle(userName string, n int) string {
	return strings.NewReplacer("{user}", userName, "{n}", strconv.Itoa(n)).Replace(p.NameTemplate)
}

// titlePattern matches titles produced by containerTitle for any display
// name, so containers survive a rename of the owner. The first submatch is
// the container number.
func (p Policy) titlePattern() *regexp.Regexp {
	quoted := regexp.QuoteMeta(p.NameTemplate)
	quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta("{user}"), `.+`)
	quoted = strings.Replace(quoted, regexp.QuoteMeta("{n}"), `(\d+)`, 1)
	quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta("{n}"), `\d+`)
	return regexp.MustCompile("^" + quoted + "$")
}

// isContainer reports whether pl looks like one of user's archive
// containers. Playlists of another channel never are.
func (p Policy) isContainer(pattern *regexp.Regexp, user auth.User, pl youtube.Playlist) bool {
	if pl.ChannelID != "" && pl.ChannelID != user.ID {
		return false
	}
	return pattern.MatchString(pl.Title)
}

// nextNumber returns the number for a new container: one past the highest
// number in use, and never less than len(known)+1.
func (p Policy) nextNumber(known []Container) int {
	pattern := p.titlePattern()
	next := len(known) + 1
	for _, c := range known {
		m := pattern.FindStringSubmatch(c.Title)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

// knownContainers lists the user's archive containers: owned playlists whose
// title matches the naming template plus every container referenced by
// local state. Owned containers come first, oldest first with ties broken
// by ID; referenced containers missing from the owned listing follow, by ID.
func (s *Service) knownContainers(ctx context.Context, user auth.User, rec storage.UserRecord) ([]Container, error) {
	referenced := make(map[string]int)
	for _, cs := range rec {
		if cs == nil {
			continue
		}
		for _, cont := range cs.Archived {
			referenced[cont]++
		}
	}

	pattern := s.policy.titlePattern()
	var owned []Container
	seen := make(map[string]bool)
	err := youtube.Collect(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.Playlist], error) {
		return s.remote.ListPlaylists(ctx, youtube.PlaylistFilter{Mine: true}, cursor)
	}, func(pl youtube.Playlist) error {
		_, ref := referenced[pl.ID]
		if seen[pl.ID] || (!ref && !s.policy.isContainer(pattern, user, pl)) {
			return nil
		}
		seen[pl.ID] = true
		owned = append(owned, Container{
			ID:        pl.ID,
			Title:     pl.Title,
			ItemCount: pl.ItemCount,
			CreatedAt: pl.PublishedAt,
			Owned:     true,
			Local:     referenced[pl.ID],
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	slices.SortFunc(owned, func(a, b Container) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var orphans []Container
	for id, n := range referenced {
		if !seen[id] {
			orphans = append(orphans, Container{ID: id, Local: n})
		}
	}
	slices.SortFunc(orphans, func(a, b Container) int { return cmp.Compare(a.ID, b.ID) })

	return append(owned, orphans...), nil
}

// allocator places videos into containers for one user during one locked
// operation. It keeps item counts current across placements so a batch
// does not need to relist containers.
type allocator struct {
	s     *Service
	user  auth.User
	known []Container
}

func (s *Service) newAllocator(ctx context.Context, user auth.User, rec storage.UserRecord) (*allocator, error) {
	known, err := s.knownContainers(ctx, user, rec)
	if err != nil {
		return nil, err
	}
	return &allocator{s: s, user: user, known: known}, nil
}

// target returns the first owned container with room, creating a new one
// when every container is full.
func (a *allocator) target(ctx context.Context) (int, error) {
	for i, c := range a.known {
		if c.Owned && c.ItemCount < a.s.policy.Capacity {
			return i, nil
		}
	}

	title := a.s.policy.containerTitle(a.user.Name, a.s.policy.nextNumber(a.known))
	pl, err := a.s.remote.CreatePlaylist(ctx, title, "", a.s.policy.Privacy)
	if err != nil {
		return -1, err
	}
	a.s.metrics.IncContainersCreated()
	a.s.userLog(a.user.ID).Info().
		Str("container", pl.ID).
		Str("title", title).
		Msg("created archive container")

	a.known = append(a.known, Container{
		ID:        pl.ID,
		Title:     pl.Title,
		ItemCount: pl.ItemCount,
		CreatedAt: pl.PublishedAt,
		Owned:     true,
	})
	return len(a.known) - 1, nil
}

// place inserts videoID into a container with room and returns its ID.
func (a *allocator) place(ctx context.Context, videoID string) (string, error) {
	i, err := a.target(ctx)
	if err != nil {
		return "", &AllocationError{VideoID: videoID, Err: err}
	}
	c := &a.known[i]
	if _, err := a.s.remote.InsertPlaylistItem(ctx, c.ID, videoID); err != nil {
		return "", &AllocationError{VideoID: videoID, ContainerID: c.ID, Err: err}
	}
	c.ItemCount++
	c.Local++
	return c.ID, nil
}

// Allocate inserts videoID into the user's first container with room,
// creating a container when all are full, and returns the container ID.
// Local state is not modified; ArchiveVideo records the association.
func (s *Service) Allocate(ctx context.Context, user auth.User, videoID string) (string, error) {
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	a, err := s.newAllocator(ctx, user, st.User(user.ID))
	if err != nil {
		return "", &AllocationError{VideoID: videoID, Err: err}
	}
	return a.place(ctx, videoID)
}

// ArchiveResult describes an archived video.
type ArchiveResult struct {
	VideoID     string `json:"video_id"`
	ChannelID   string `json:"channel_id"`
	ContainerID string `json:"container_id"`
	// Existing is true when the video was already archived.
	Existing bool `json:"existing"`
	// Tracked is true when archiving started tracking the channel.
	Tracked bool `json:"tracked"`
}

// ArchiveVideo places videoID in an archive container and records it under
// its channel, tracking the channel if needed. Archiving an archived video
// returns the recorded association without remote calls.
func (s *Service) ArchiveVideo(ctx context.Context, user auth.User, videoID string) (*ArchiveResult, error) {
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec := st.User(user.ID)
	if ch, cont, ok := findArchived(rec, videoID); ok {
		return &ArchiveResult{VideoID: videoID, ChannelID: ch, ContainerID: cont, Existing: true}, nil
	}

	videos, err := s.lookupVideos(ctx, []string{videoID})
	if err != nil {
		return nil, fmt.Errorf("look up video %s: %w", videoID, err)
	}
	v, ok := videos[videoID]
	if !ok || v.ChannelID == "" {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	a, err := s.newAllocator(ctx, user, rec)
	if err != nil {
		return nil, &AllocationError{VideoID: videoID, Err: err}
	}
	cont, err := a.place(ctx, videoID)
	if err != nil {
		return nil, err
	}

	cs, created := rec.Channel(v.ChannelID)
	cs.Archived[videoID] = cont
	if err := s.save(ctx, st); err != nil {
		return nil, err
	}
	s.userLog(user.ID).Debug().Str("video", videoID).Str("container", cont).Msg("archived video")
	return &ArchiveResult{VideoID: videoID, ChannelID: v.ChannelID, ContainerID: cont, Tracked: created}, nil
}

// Unarchive removes videoID from its recorded container and forgets the
// association. A remote failure leaves local state unchanged.
func (s *Service) Unarchive(ctx context.Context, user auth.User, videoID string) error {
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return err
	}
	rec := st.User(user.ID)
	ch, cont, ok := findArchived(rec, videoID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotArchived, videoID)
	}
	if err := s.removeFromPlaylist(ctx, cont, videoID); err != nil {
		return fmt.Errorf("remove %s from %s: %w", videoID, cont, err)
	}
	delete(rec[ch].Archived, videoID)
	return s.save(ctx, st)
}

// ImportResult summarizes ImportPlaylist.
type ImportResult struct {
	Imported   []ArchiveResult `json:"imported"`
	Skipped    []string        `json:"skipped"`
	Unresolved []string        `json:"unresolved"`
}

// ImportPlaylist archives every video of playlistID. Archived videos are
// skipped and state is saved after each placement. The first failure stops
// the import; the partial result is returned with it.
func (s *Service) ImportPlaylist(ctx context.Context, user auth.User, playlistID string) (*ImportResult, error) {
	defer s.lock(user.ID)()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec := st.User(user.ID)

	items, err := youtube.CollectAll(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.PlaylistItem], error) {
		return s.remote.ListPlaylistItems(ctx, youtube.ItemFilter{PlaylistID: playlistID}, cursor)
	})
	if err != nil {
		return nil, fmt.Errorf("list playlist %s: %w", playlistID, err)
	}

	res := &ImportResult{}
	var todo []string
	queued := make(map[string]bool)
	for _, it := range items {
		if it.VideoID == "" || queued[it.VideoID] {
			continue
		}
		queued[it.VideoID] = true
		if _, _, ok := findArchived(rec, it.VideoID); ok {
			res.Skipped = append(res.Skipped, it.VideoID)
			continue
		}
		todo = append(todo, it.VideoID)
	}
	if len(todo) == 0 {
		return res, nil
	}

	videos, err := s.lookupVideos(ctx, todo)
	if err != nil {
		return res, fmt.Errorf("look up videos: %w", err)
	}
	a, err := s.newAllocator(ctx, user, rec)
	if err != nil {
		return res, &AllocationError{VideoID: todo[0], Err: err}
	}

	log := s.userLog(user.ID)
	for _, id := range todo {
		v, ok := videos[id]
		if !ok || v.ChannelID == "" {
			res.Unresolved = append(res.Unresolved, id)
			continue
		}
		cont, err := a.place(ctx, id)
		if err != nil {
			return res, err
		}
		cs, created := rec.Channel(v.ChannelID)
		cs.Archived[id] = cont
		if err := s.save(ctx, st); err != nil {
			return res, err
		}
		res.Imported = append(res.Imported, ArchiveResult{VideoID: id, ChannelID: v.ChannelID, ContainerID: cont, Tracked: created})
	}
	log.Info().
		Str("playlist", playlistID).
		Int("imported", len(res.Imported)).
		Int("skipped", len(res.Skipped)).
		Int("unresolved", len(res.Unresolved)).
		Msg("imported playlist")
	return res, nil
}

// ListArchives returns the user's known containers in scan order.
func (s *Service) ListArchives(ctx context.Context, user auth.User) ([]Container, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.knownContainers(ctx, user, st.User(user.ID))
}

// RenameArchive changes the title of one of the user's owned containers.
// A container renamed away from the naming template stays known only while
// local state references it.
func (s *Service) RenameArchive(ctx context.Context, user auth.User, containerID, title string) (*Container, error) {
	defer s.lock(user.ID)()

	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("rename %s: empty title", containerID)
	}
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	known, err := s.knownContainers(ctx, user, st.User(user.ID))
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(known, func(c Container) bool { return c.ID == containerID && c.Owned })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContainer, containerID)
	}
	pl, err := s.remote.RenamePlaylist(ctx, containerID, title)
	if err != nil {
		return nil, fmt.Errorf("rename %s: %w", containerID, err)
	}
	c := known[i]
	c.Title = pl.Title
	return &c, nil
}
