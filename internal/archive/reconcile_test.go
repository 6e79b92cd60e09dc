package archive

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/internal/storage"
	"ytarchive/internal/youtube"
)

func TestReconcile_RemovesEntriesMissingRemotely(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.video("vid2", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddItem("PL1", "vid1")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PL1", "vid2": "PL1"}, nil)})

	report, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Containers)
	assert.Equal(t, 1, report.Confirmed)
	assert.Equal(t, []Drift{{VideoID: "vid2", ChannelID: "UCabc", ContainerID: "PL1"}}, report.Removed)
	assert.Empty(t, report.Added)
	assert.Equal(t, map[string]string{"vid1": "PL1"}, h.record()["UCabc"].Archived)
	assert.Equal(t, 1, h.replaceCount())
}

func TestReconcile_AddsRemoteOnlyVideosAndTracksChannel(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.channel("UCnew", "New")
	h.video("vid1", "UCabc")
	h.video("vid3", "UCnew")
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddItem("PL1", "vid1")
	h.remote.AddItem("PL1", "vid3")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PL1"}, nil)})

	report, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)

	assert.Equal(t, []Drift{{VideoID: "vid3", ChannelID: "UCnew", ContainerID: "PL1"}}, report.Added)
	rec := h.record()
	require.Contains(t, rec, "UCnew")
	assert.Equal(t, "PL1", rec["UCnew"].Archived["vid3"])
	assert.Empty(t, rec["UCnew"].Played)
}

func TestReconcile_EarliestContainerWins(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.video("vid2", "UCabc")
	h.archiveContainer("PLnew", 2, day(9))
	h.archiveContainer("PLold", 1, day(1))
	h.remote.AddItem("PLnew", "vid1")
	h.remote.AddItem("PLold", "vid1")
	h.remote.AddItem("PLnew", "vid2")
	h.remote.AddItem("PLold", "vid2")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PLnew"}, nil)})

	report, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)

	assert.Equal(t, []Drift{{VideoID: "vid1", ChannelID: "UCabc", ContainerID: "PLold", From: "PLnew"}}, report.Relocated)
	assert.Equal(t, []Drift{{VideoID: "vid2", ChannelID: "UCabc", ContainerID: "PLold"}}, report.Added)
	assert.Equal(t, 2, report.Duplicates)
	assert.Equal(t, map[string]string{"vid1": "PLold", "vid2": "PLold"}, h.record()["UCabc"].Archived)
}

func TestReconcile_LocalDuplicateKeepsFirstChannel(t *testing.T) {
	h := newHarness(t)
	h.channel("UCa", "A")
	h.video("vid1", "UCa")
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddItem("PL1", "vid1")
	h.seed(storage.UserRecord{
		"UCb": channelState(map[string]string{"vid1": "PL1"}, nil),
		"UCa": channelState(map[string]string{"vid1": "PL1"}, nil),
	})

	report, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Duplicates)

	rec := h.record()
	assert.Equal(t, "PL1", rec["UCa"].Archived["vid1"])
	assert.Empty(t, rec["UCb"].Archived)
	assert.Contains(t, rec, "UCb")
}

func TestReconcile_UnresolvedVideosAreNotRecorded(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddItem("PL1", "vid1")
	h.remote.RemoveVideo("vid1")

	report, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, []string{"vid1"}, report.Unresolved)
	assert.Empty(t, report.Added)
	assert.Empty(t, h.record())
}

func TestReconcile_MissingContainerCountsAsEmpty(t *testing.T) {
	h := newHarness(t)
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PLgone"}, nil)})

	report, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Containers)
	assert.Len(t, report.Removed, 1)
	assert.Empty(t, h.record()["UCabc"].Archived)
}

func TestReconcile_RemoteErrorPersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.archiveContainer("PL2", 2, day(2))
	h.remote.AddItem("PL1", "vid1")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid2": "PL1"}, nil)})
	h.remote.Hook = func(op, arg string) error {
		if op == "playlistItems.list" && arg == "PL2" {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := h.svc.Reconcile(h.ctx, ann)
	var rerr *youtube.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rerr.Retryable)

	assert.Equal(t, map[string]string{"vid2": "PL1"}, h.record()["UCabc"].Archived)
	assert.Zero(t, h.replaceCount())
}

func TestReconcile_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	for i := range 5 {
		h.video(fmt.Sprintf("vid%d", i), "UCabc")
	}
	h.archiveContainer("PL1", 1, day(1))
	h.archiveContainer("PL2", 2, day(2))
	h.remote.AddItem("PL1", "vid0")
	h.remote.AddItem("PL1", "vid1")
	h.remote.AddItem("PL2", "vid1")
	h.remote.AddItem("PL2", "vid2")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PL2", "vid3": "PL1"}, nil)})

	first, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)
	assert.True(t, first.Changed())
	after := h.record()

	second, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)
	assert.False(t, second.Changed())
	assert.Equal(t, 3, second.Confirmed)
	assert.Equal(t, after, h.record())
}

func TestReconcile_BatchesMetadataLookups(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.archiveContainer("PL1", 1, day(1))
	for i := range 120 {
		id := fmt.Sprintf("vid%03d", i)
		h.video(id, "UCabc")
		h.remote.AddItem("PL1", id)
	}
	h.remote.PageSize = 7

	report, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)
	assert.Len(t, report.Added, 120)
	assert.Len(t, h.record()["UCabc"].Archived, 120)
	assert.Equal(t, 3, h.remote.Calls("videos.list"))
	assert.Equal(t, 18, h.remote.Calls("playlistItems.list"))
}

func TestReconcile_KnownVideosCostNoMetadataCalls(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddItem("PL1", "vid1")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PL1"}, nil)})

	_, err := h.svc.Reconcile(h.ctx, ann)
	require.NoError(t, err)
	assert.Zero(t, h.remote.Calls("videos.list"))
}
