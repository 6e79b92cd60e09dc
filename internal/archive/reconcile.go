package archive

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"ytarchive/internal/auth"
	"ytarchive/internal/youtube"
)

// Drift is one correction made by Reconcile.
type Drift struct {
	VideoID     string `json:"video_id"`
	ChannelID   string `json:"channel_id"`
	ContainerID string `json:"container_id"`
	// From is the previously recorded container of a relocated video.
	From string `json:"from,omitempty"`
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	// Containers is the number of containers scanned.
	Containers int `json:"containers"`
	// Confirmed counts local entries found in a container.
	Confirmed int `json:"confirmed"`
	// Added are remote memberships recorded locally.
	Added []Drift `json:"added"`
	// Removed are local entries no container holds.
	Removed []Drift `json:"removed"`
	// Relocated are local entries whose container was corrected.
	Relocated []Drift `json:"relocated"`
	// Duplicates counts memberships beyond the first, remote or local.
	Duplicates int `json:"duplicates"`
	// Unresolved are container members the platform no longer returns.
	Unresolved []string      `json:"unresolved"`
	Duration   time.Duration `json:"duration"`
}

// Changed reports whether the pass corrected anything.
func (r *ReconcileReport) Changed() bool {
	return len(r.Added)+len(r.Removed)+len(r.Relocated) > 0
}

type localEntry struct {
	channel   string
	container string
}

// Reconcile makes the user's local archived entries equal to the remote
// membership of their containers. Each video is attributed to the earliest
// container holding it. Videos present remotely but unknown locally are
// recorded under their channel, which is tracked if needed; local entries
// no container holds are dropped. State is saved once at the end. Any remote
// error aborts the pass with nothing saved.
func (s *Service) Reconcile(ctx context.Context, user auth.User) (*ReconcileReport, error) {
	defer s.lock(user.ID)()

	start := time.Now()
	log := s.userLog(user.ID)

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rec := st.User(user.ID)
	report := &ReconcileReport{}

	// A video recorded under several channels keeps the lexically first.
	local := make(map[string]localEntry)
	for _, cid := range rec.ChannelIDs() {
		cs := rec[cid]
		for _, vid := range sortedKeys(cs.Archived) {
			if prev, dup := local[vid]; dup {
				log.Warn().Str("video", vid).Str("channel", cid).Str("kept", prev.channel).Msg("dropping duplicate local entry")
				delete(cs.Archived, vid)
				report.Duplicates++
				continue
			}
			local[vid] = localEntry{channel: cid, container: cs.Archived[vid]}
		}
	}

	known, err := s.knownContainers(ctx, user, rec)
	if err != nil {
		return nil, err
	}
	report.Containers = len(known)

	confirmed := make(map[string]string)
	forward := make(map[string]string)
	var forwardOrder []string

	for _, c := range known {
		err := youtube.Collect(ctx, func(ctx context.Context, cursor string) (youtube.Page[youtube.PlaylistItem], error) {
			return s.remote.ListPlaylistItems(ctx, youtube.ItemFilter{PlaylistID: c.ID}, cursor)
		}, func(it youtube.PlaylistItem) error {
			vid := it.VideoID
			if vid == "" {
				return nil
			}
			if _, ok := confirmed[vid]; ok {
				report.Duplicates++
				return nil
			}
			if _, ok := forward[vid]; ok {
				report.Duplicates++
				return nil
			}
			e, ok := local[vid]
			if !ok {
				forward[vid] = c.ID
				forwardOrder = append(forwardOrder, vid)
				return nil
			}
			confirmed[vid] = c.ID
			if e.container != c.ID {
				rec[e.channel].Archived[vid] = c.ID
				report.Relocated = append(report.Relocated, Drift{VideoID: vid, ChannelID: e.channel, ContainerID: c.ID, From: e.container})
			}
			return nil
		})
		if isNotFound(err) {
			log.Warn().Str("container", c.ID).Msg("container not found, treating as empty")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan container %s: %w", c.ID, err)
		}
	}
	report.Confirmed = len(confirmed)

	if len(forwardOrder) > 0 {
		videos, err := s.lookupVideos(ctx, forwardOrder)
		if err != nil {
			return nil, fmt.Errorf("look up drifted videos: %w", err)
		}
		for _, vid := range forwardOrder {
			v, ok := videos[vid]
			if !ok || v.ChannelID == "" {
				report.Unresolved = append(report.Unresolved, vid)
				continue
			}
			cs, created := rec.Channel(v.ChannelID)
			if created {
				log.Info().Str("channel", v.ChannelID).Msg("tracking channel of archived video")
			}
			cs.Archived[vid] = forward[vid]
			report.Added = append(report.Added, Drift{VideoID: vid, ChannelID: v.ChannelID, ContainerID: forward[vid]})
		}
	}

	for vid, e := range local {
		if _, ok := confirmed[vid]; ok {
			continue
		}
		delete(rec[e.channel].Archived, vid)
		report.Removed = append(report.Removed, Drift{VideoID: vid, ChannelID: e.channel, ContainerID: e.container})
	}
	slices.SortFunc(report.Removed, func(a, b Drift) int { return cmp.Compare(a.VideoID, b.VideoID) })

	if err := s.save(ctx, st); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	s.metrics.ObserveReconcile(report.Duration, len(report.Added), len(report.Removed), len(report.Relocated))
	log.Info().
		Int("containers", report.Containers).
		Int("confirmed", report.Confirmed).
		Int("added", len(report.Added)).
		Int("removed", len(report.Removed)).
		Int("relocated", len(report.Relocated)).
		Int("duplicates", report.Duplicates).
		Int("unresolved", len(report.Unresolved)).
		Dur("duration", report.Duration).
		Msg("reconciled archive")
	return report, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
