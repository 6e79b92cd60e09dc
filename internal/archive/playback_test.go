package archive

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/internal/storage"
	"ytarchive/internal/youtube"
)

func TestMarkPlayed(t *testing.T) {
	h := newHarness(t)
	h.seed(storage.UserRecord{"UCabc": storage.NewChannelState()})

	at, err := h.svc.MarkPlayed(h.ctx, ann, "UCabc", "vid1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), at)
	assert.Equal(t, at, h.record()["UCabc"].Played["vid1"])

	require.NoError(t, h.svc.MarkUnplayed(h.ctx, ann, "UCabc", "vid1"))
	assert.Empty(t, h.record()["UCabc"].Played)

	// Clearing an unplayed video saves nothing.
	before := h.replaceCount()
	require.NoError(t, h.svc.MarkUnplayed(h.ctx, ann, "UCabc", "vid1"))
	assert.Equal(t, before, h.replaceCount())

	_, err = h.svc.MarkPlayed(h.ctx, ann, "UCother", "vid1")
	assert.ErrorIs(t, err, ErrChannelNotTracked)
	assert.ErrorIs(t, h.svc.MarkUnplayed(h.ctx, ann, "UCother", "vid1"), ErrChannelNotTracked)
}

// videosFixture tracks UCabc with uploads v1 (oldest) .. v5, where v1 and
// v2 are played and v2 and v4 are archived.
func videosFixture(t *testing.T, opts ...Option) *harness {
	h := newHarness(t, opts...)
	h.channel("UCabc", "Abc")
	for i, id := range []string{"v1", "v2", "v3", "v4", "v5"} {
		h.remote.AddVideo(youtube.Video{ID: id, Title: "T" + id, ChannelID: "UCabc", PublishedAt: day(i + 1)})
	}
	h.seed(storage.UserRecord{"UCabc": channelState(
		map[string]string{"v2": "PL1", "v4": "PL1"},
		map[string]time.Time{"v1": fixedNow, "v2": fixedNow},
	)})
	return h
}

func ids(vs []VideoState) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

func TestChannelVideos(t *testing.T) {
	h := videosFixture(t)
	h.remote.PageSize = 2
	yes, no := true, false

	all, err := h.svc.ChannelVideos(h.ctx, ann, "UCabc", VideoQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v3", "v4", "v5"}, ids(all))
	assert.True(t, all[1].Played)
	assert.Equal(t, "PL1", all[1].ContainerID)
	assert.Equal(t, "Tv1", all[0].Title)
	assert.Equal(t, "Abc", all[0].ChannelTitle)
	assert.Equal(t, day(1), all[0].PublishedAt)

	unplayed, err := h.svc.ChannelVideos(h.ctx, ann, "UCabc", VideoQuery{Played: &no})
	require.NoError(t, err)
	assert.Equal(t, []string{"v3", "v4", "v5"}, ids(unplayed))

	archivedUnplayed, err := h.svc.ChannelVideos(h.ctx, ann, "UCabc", VideoQuery{Played: &no, Archived: &yes})
	require.NoError(t, err)
	assert.Equal(t, []string{"v4"}, ids(archivedUnplayed))

	h.remote.ResetCalls()
	limited, err := h.svc.ChannelVideos(h.ctx, ann, "UCabc", VideoQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, ids(limited))
	assert.Equal(t, 1, h.remote.Calls("playlistItems.list"))

	_, err = h.svc.ChannelVideos(h.ctx, ann, "UCnope", VideoQuery{})
	assert.ErrorIs(t, err, ErrChannelNotTracked)
}

func TestChannelVideos_ChannelGoneRemotely(t *testing.T) {
	h := newHarness(t)
	h.seed(storage.UserRecord{"UCgone": storage.NewChannelState()})

	_, err := h.svc.ChannelVideos(h.ctx, ann, "UCgone", VideoQuery{})
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestPick(t *testing.T) {
	h := videosFixture(t, WithRand(rand.New(rand.NewPCG(1, 2))))

	next, err := h.svc.Pick(h.ctx, ann, "UCabc", PickNextUnplayed)
	require.NoError(t, err)
	assert.Equal(t, "v3", next.ID)

	for range 20 {
		v, err := h.svc.Pick(h.ctx, ann, "UCabc", PickRandomUnplayed)
		require.NoError(t, err)
		assert.Contains(t, []string{"v3", "v4", "v5"}, v.ID)

		v, err = h.svc.Pick(h.ctx, ann, "UCabc", PickRandomArchived)
		require.NoError(t, err)
		assert.Contains(t, []string{"v2", "v4"}, v.ID)

		v, err = h.svc.Pick(h.ctx, ann, "UCabc", PickRandom)
		require.NoError(t, err)
		assert.Contains(t, []string{"v1", "v2", "v3", "v4", "v5"}, v.ID)
	}

	_, err = h.svc.Pick(h.ctx, ann, "UCabc", PickMode("sideways"))
	assert.Error(t, err)
}

func TestPick_NoCandidates(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("v1", "UCabc")
	h.seed(storage.UserRecord{"UCabc": channelState(nil, map[string]time.Time{"v1": fixedNow})})

	_, err := h.svc.Pick(h.ctx, ann, "UCabc", PickNextUnplayed)
	assert.ErrorIs(t, err, ErrNoVideos)
	_, err = h.svc.Pick(h.ctx, ann, "UCabc", PickRandomArchived)
	assert.ErrorIs(t, err, ErrNoVideos)
}

func TestParsePickMode(t *testing.T) {
	for _, s := range []string{"next-unplayed", "random-unplayed", "random-archived", "random"} {
		m, err := ParsePickMode(s)
		require.NoError(t, err)
		assert.Equal(t, PickMode(s), m)
	}
	_, err := ParsePickMode("next")
	assert.Error(t, err)
}
