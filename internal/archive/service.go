// Package archive keeps a user's local channel state and their remote
// archive playlists in agreement.
//
// A Service owns the read-modify-write cycle over the local store. Every
// mutating operation runs under a per-user lock for the whole cycle: load,
// remote effects, replace. The local store is written only after the remote
// effects it describes have been confirmed.
package archive

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ytarchive/internal/storage"
	"ytarchive/internal/youtube"
)

// Policy controls how archive containers are filled and named.
type Policy struct {
	// Capacity is the item count at which a container is full.
	Capacity int64
	// NameTemplate names new containers. {user} is replaced by the user's
	// display name and {n} by the container number.
	NameTemplate string
	// Privacy is the privacy status of new containers.
	Privacy string
	// EvictOnUntrack removes a channel's archived videos from their
	// containers when the channel is untracked.
	EvictOnUntrack bool
}

// DefaultPolicy returns the platform limit of 5000 items per playlist and
// private containers named "{user}'s Archive #{n}".
func DefaultPolicy() Policy {
	return Policy{
		Capacity:       5000,
		NameTemplate:   "{user}'s Archive #{n}",
		Privacy:        "private",
		EvictOnUntrack: true,
	}
}

func (p Policy) validate() error {
	if p.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", p.Capacity)
	}
	if !strings.Contains(p.NameTemplate, "{n}") {
		return fmt.Errorf("name template %q lacks {n}", p.NameTemplate)
	}
	switch p.Privacy {
	case "private", "unlisted", "public":
	default:
		return fmt.Errorf("unknown privacy %q", p.Privacy)
	}
	return nil
}

// Metrics receives archive-level events.
type Metrics interface {
	ObserveReconcile(d time.Duration, added, removed, relocated int)
	IncContainersCreated()
}

type noopMetrics struct{}

func (noopMetrics) ObserveReconcile(time.Duration, int, int, int) {}
func (noopMetrics) IncContainersCreated()                         {}

// Option configures a Service.
type Option func(*Service)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock sets the time source used for played timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand sets the random source used by Pick. r must not be shared with
// other goroutines.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.intn = r.IntN }
}

// Service implements archive allocation, reconciliation, channel tracking
// and the per-video features on top of a Store and a remote Client.
type Service struct {
	store    storage.Store
	remote   youtube.Client
	resolver *Resolver
	policy   Policy
	log      zerolog.Logger
	metrics  Metrics
	now      func() time.Time
	intn     func(n int) int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a Service. The policy is validated here.
func NewService(store storage.Store, remote youtube.Client, opts ...Option) (*Service, error) {
	s := &Service{
		store:    store,
		remote:   remote,
		resolver: NewResolver(remote),
		policy:   DefaultPolicy(),
		log:      zerolog.Nop(),
		metrics:  noopMetrics{},
		now:      time.Now,
		intn:     rand.IntN,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.validate(); err != nil {
		return nil, fmt.Errorf("archive policy: %w", err)
	}
	s.log = s.log.With().Str("component", "archive").Logger()
	return s, nil
}

// Policy returns the active policy.
func (s *Service) Policy() Policy { return s.policy }

// lock serializes mutations of one user's record.
func (s *Service) lock(userID string) func() {
	s.mu.Lock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Service) load(ctx context.Context) (storage.State, error) {
	st, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return st, nil
}

func (s *Service) save(ctx context.Context, st storage.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.store.Replace(ctx, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *Service) userLog(userID string) *zerolog.Logger {
	l := s.log.With().Str("user", userID).Logger()
	return &l
}

// State returns a copy of the whole persisted state.
func (s *Service) State(ctx context.Context) (storage.State, error) {
	return s.load(ctx)
}

// findArchived returns the channel and container recording videoID.
func findArchived(rec storage.UserRecord, videoID string) (channelID, containerID string, ok bool) {
	for _, cid := range rec.ChannelIDs() {
		if cs := rec[cid]; cs != nil {
			if cont, ok := cs.Archived[videoID]; ok {
				return cid, cont, true
			}
		}
	}
	return "", "", false
}

// lookupVideos fetches metadata for ids in batches, keyed by video ID.
// Videos the platform does not return are absent from the result.
func (s *Service) lookupVideos(ctx context.Context, ids []string) (map[string]youtube.Video, error) {
	out := make(map[string]youtube.Video, len(ids))
	for _, batch := range youtube.Chunk(ids) {
		err := youtube.Collect(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.Video], error) {
			return s.remote.ListVideos(ctx, youtube.VideoFilter{IDs: batch}, cursor)
		}, func(v youtube.Video) error {
			out[v.ID] = v
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// lookupChannels fetches channel metadata for ids in batches.
func (s *Service) lookupChannels(ctx context.Context, ids []string) (map[string]youtube.Channel, error) {
	out := make(map[string]youtube.Channel, len(ids))
	for _, batch := range youtube.Chunk(ids) {
		err := youtube.Collect(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.Channel], error) {
			return s.remote.ListChannels(ctx, youtube.ChannelFilter{IDs: batch}, cursor)
		}, func(ch youtube.Channel) error {
			out[ch.ID] = ch
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// removeFromPlaylist deletes every item of videoID in playlistID. Items or
// playlists that are already gone count as removed.
func (s *Service) removeFromPlaylist(ctx context.Context, playlistID, videoID string) error {
	items, err := youtube.CollectAll(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.PlaylistItem], error) {
		return s.remote.ListPlaylistItems(ctx, youtube.ItemFilter{PlaylistID: playlistID, VideoID: videoID}, cursor)
	})
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.VideoID != videoID {
			continue
		}
		if err := s.remote.DeletePlaylistItem(ctx, it.ID); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, youtube.ErrNotFound)
}
