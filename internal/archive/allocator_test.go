package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/internal/auth"
	"ytarchive/internal/storage"
	"ytarchive/internal/youtube"
)

func TestPolicy_ContainerTitle(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, "Ann's Archive #1", p.containerTitle("Ann", 1))
	assert.Equal(t, "Ann's Archive #12", p.containerTitle("Ann", 12))

	re := p.titlePattern()
	assert.True(t, re.MatchString("A.n (x)'s Archive #3"))
	assert.True(t, re.MatchString("Ann's Archive #3"))
	assert.False(t, re.MatchString("A.n (x)'s Archive #3 copy"))
	assert.False(t, re.MatchString("'s Archive #3"))
	assert.False(t, re.MatchString("Ann's Archive #x"))
	assert.Equal(t, []string{"Ann's Archive #12", "12"}, re.FindStringSubmatch("Ann's Archive #12"))
}

func TestPolicy_IsContainer(t *testing.T) {
	p := DefaultPolicy()
	re := p.titlePattern()
	user := auth.User{ID: "UCme", Name: "Ann"}

	tests := []struct {
		name string
		pl   youtube.Playlist
		want bool
	}{
		{"own", youtube.Playlist{Title: "Ann's Archive #1", ChannelID: "UCme"}, true},
		{"earlier display name", youtube.Playlist{Title: "Annie's Archive #2", ChannelID: "UCme"}, true},
		{"channel unknown", youtube.Playlist{Title: "Ann's Archive #1"}, true},
		{"other channel", youtube.Playlist{Title: "Ann's Archive #1", ChannelID: "UCother"}, false},
		{"other title", youtube.Playlist{Title: "Music", ChannelID: "UCme"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.isContainer(re, user, tt.pl))
		})
	}
}

func TestPolicy_NextNumber(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 1, p.nextNumber(nil))
	assert.Equal(t, 3, p.nextNumber([]Container{{Title: "Ann's Archive #1"}, {Title: "Ann's Archive #2"}}))
	assert.Equal(t, 6, p.nextNumber([]Container{{Title: "Annie's Archive #5"}}))
	assert.Equal(t, 3, p.nextNumber([]Container{{Title: "Old stuff"}, {Title: "Annie's Archive #1"}}))
}

func TestArchiveVideo_FindsContainersAfterOwnerRename(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.remote.AddPlaylist("PL1", DefaultPolicy().containerTitle("Annie", 1), day(1), true)
	h.remote.AddPlaylist("PL2", DefaultPolicy().containerTitle("Annie", 2), day(2), true)
	h.remote.SetItemCount("PL1", DefaultPolicy().Capacity)
	h.remote.SetItemCount("PL2", DefaultPolicy().Capacity)

	_, err := h.svc.ArchiveVideo(h.ctx, ann, "vid1")
	require.NoError(t, err)

	owned := h.remote.OwnedPlaylists()
	require.Len(t, owned, 3)
	assert.Equal(t, ann.Name+"'s Archive #3", owned[2].Title)
}

func TestArchiveVideo_CreatesFirstContainer(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")

	res, err := h.svc.ArchiveVideo(h.ctx, ann, "vid1")
	require.NoError(t, err)

	owned := h.remote.OwnedPlaylists()
	require.Len(t, owned, 1)
	assert.Equal(t, "Ann's Archive #1", owned[0].Title)
	assert.Equal(t, "private", owned[0].Privacy)
	assert.Equal(t, []string{"vid1"}, h.remote.Members(owned[0].ID))

	assert.Equal(t, &ArchiveResult{VideoID: "vid1", ChannelID: "UCabc", ContainerID: owned[0].ID, Tracked: true}, res)
	assert.Equal(t, owned[0].ID, h.record()["UCabc"].Archived["vid1"])
	assert.Equal(t, 1, h.replaceCount())
}

func TestArchiveVideo_SkipsFullContainers(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.archiveContainer("PL2", 2, day(2))
	h.remote.SetItemCount("PL1", 5000)
	h.remote.SetItemCount("PL2", 4999)

	res, err := h.svc.ArchiveVideo(h.ctx, ann, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "PL2", res.ContainerID)
	assert.Equal(t, []string{"vid1"}, h.remote.Members("PL2"))
	assert.Zero(t, h.remote.Calls("playlists.insert"))
}

func TestArchiveVideo_AllFullCreatesNextNumber(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.archiveContainer("PL2", 2, day(2))
	h.remote.SetItemCount("PL1", 5000)
	h.remote.SetItemCount("PL2", 5000)
	// Not an archive container: ignored for allocation and numbering.
	h.remote.AddPlaylist("PLmusic", "Music", day(3), true)

	res, err := h.svc.ArchiveVideo(h.ctx, ann, "vid1")
	require.NoError(t, err)

	created, ok := h.remote.Playlist(res.ContainerID)
	require.True(t, ok)
	assert.Equal(t, "Ann's Archive #3", created.Title)
	assert.Empty(t, h.remote.Members("PLmusic"))
}

func TestArchiveVideo_OldestContainerFirst(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PLb", 2, day(5))
	h.archiveContainer("PLa", 1, day(5))
	h.archiveContainer("PLz", 3, day(1))

	res, err := h.svc.ArchiveVideo(h.ctx, ann, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "PLz", res.ContainerID)

	archives, err := h.svc.ListArchives(h.ctx, ann)
	require.NoError(t, err)
	var ids []string
	for _, c := range archives {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"PLz", "PLa", "PLb"}, ids)
}

func TestArchiveVideo_AlreadyArchivedMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PL1"}, nil)})

	res, err := h.svc.ArchiveVideo(h.ctx, ann, "vid1")
	require.NoError(t, err)
	assert.Equal(t, &ArchiveResult{VideoID: "vid1", ChannelID: "UCabc", ContainerID: "PL1", Existing: true}, res)
	assert.Empty(t, h.remote.Requests())
	assert.Zero(t, h.replaceCount())
}

func TestArchiveVideo_UnknownVideo(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ArchiveVideo(h.ctx, ann, "ghost")
	assert.ErrorIs(t, err, ErrVideoNotFound)
	assert.Zero(t, h.remote.Calls("playlistItems.insert"))
}

func TestArchiveVideo_InsertFailureRecordsNothing(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.remote.FailOn("playlistItems.insert", errors.New("backend down"))

	_, err := h.svc.ArchiveVideo(h.ctx, ann, "vid1")
	var aerr *AllocationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "vid1", aerr.VideoID)
	assert.Equal(t, "PL1", aerr.ContainerID)

	var rerr *youtube.RemoteError
	assert.ErrorAs(t, err, &rerr)
	assert.Empty(t, h.record())
	assert.Zero(t, h.replaceCount())
}

func TestArchiveVideo_CreateFailure(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.remote.FailOn("playlists.insert", errors.New("quota"))

	_, err := h.svc.ArchiveVideo(h.ctx, ann, "vid1")
	var aerr *AllocationError
	require.ErrorAs(t, err, &aerr)
	assert.Empty(t, aerr.ContainerID)
	assert.Empty(t, h.record())
}

func TestAllocate_DoesNotRecord(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PL1", 1, day(1))

	cont, err := h.svc.Allocate(h.ctx, ann, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "PL1", cont)
	assert.Equal(t, []string{"vid1"}, h.remote.Members("PL1"))
	assert.Empty(t, h.record())
}

func TestUnarchive(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.video("vid2", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddItem("PL1", "vid1")
	h.remote.AddItem("PL1", "vid2")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PL1", "vid2": "PL1"}, nil)})

	require.NoError(t, h.svc.Unarchive(h.ctx, ann, "vid1"))
	assert.Equal(t, []string{"vid2"}, h.remote.Members("PL1"))
	assert.Equal(t, map[string]string{"vid2": "PL1"}, h.record()["UCabc"].Archived)

	err := h.svc.Unarchive(h.ctx, ann, "vid1")
	assert.ErrorIs(t, err, ErrNotArchived)
}

func TestUnarchive_AbsentItemStillSucceeds(t *testing.T) {
	h := newHarness(t)
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PLgone"}, nil)})

	require.NoError(t, h.svc.Unarchive(h.ctx, ann, "vid1"))
	assert.Empty(t, h.record()["UCabc"].Archived)
}

func TestUnarchive_RemoteFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	h.video("vid1", "UCabc")
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddItem("PL1", "vid1")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"vid1": "PL1"}, nil)})
	h.remote.FailOn("playlistItems.delete", errors.New("flaky"))

	require.Error(t, h.svc.Unarchive(h.ctx, ann, "vid1"))
	assert.Equal(t, "PL1", h.record()["UCabc"].Archived["vid1"])
	assert.Zero(t, h.replaceCount())
}

func TestImportPlaylist(t *testing.T) {
	h := newHarness(t, WithPolicy(Policy{Capacity: 2, NameTemplate: "{user}'s Archive #{n}", Privacy: "unlisted"}))
	h.channel("UCabc", "Abc")
	h.channel("UCxyz", "Xyz")
	for _, id := range []string{"v1", "v2", "v3"} {
		h.video(id, "UCabc")
	}
	h.video("v4", "UCxyz")
	h.video("gone", "UCabc")

	h.remote.AddPlaylist("PLsrc", "Favourites", day(1), false)
	for _, id := range []string{"v1", "v2", "v1", "gone", "v3", "v4"} {
		h.remote.AddItem("PLsrc", id)
	}
	h.remote.RemoveVideo("gone")
	h.seed(storage.UserRecord{"UCabc": channelState(map[string]string{"v2": "PLold"}, nil)})

	res, err := h.svc.ImportPlaylist(h.ctx, ann, "PLsrc")
	require.NoError(t, err)

	assert.Equal(t, []string{"v2"}, res.Skipped)
	assert.Equal(t, []string{"gone"}, res.Unresolved)
	require.Len(t, res.Imported, 3)

	owned := h.remote.OwnedPlaylists()
	require.Len(t, owned, 2)
	assert.Equal(t, "Ann's Archive #2", owned[0].Title)
	assert.Equal(t, "unlisted", owned[0].Privacy)
	assert.Equal(t, []string{"v1", "v3"}, h.remote.Members(owned[0].ID))
	assert.Equal(t, []string{"v4"}, h.remote.Members(owned[1].ID))

	rec := h.record()
	assert.Equal(t, owned[1].ID, rec["UCxyz"].Archived["v4"])
	assert.True(t, res.Imported[2].Tracked)
	assert.Equal(t, 1, h.remote.Calls("playlists.list"))
	assert.Equal(t, 3, h.replaceCount())
}

func TestImportPlaylist_StopsAtFirstFailure(t *testing.T) {
	h := newHarness(t)
	h.channel("UCabc", "Abc")
	for _, id := range []string{"v1", "v2", "v3"} {
		h.video(id, "UCabc")
	}
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddPlaylist("PLsrc", "Favourites", day(1), false)
	for _, id := range []string{"v1", "v2", "v3"} {
		h.remote.AddItem("PLsrc", id)
	}
	h.remote.Hook = func(op, arg string) error {
		if op == "playlistItems.insert" && arg == "PL1/v2" {
			return errors.New("boom")
		}
		return nil
	}

	res, err := h.svc.ImportPlaylist(h.ctx, ann, "PLsrc")
	var aerr *AllocationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "v2", aerr.VideoID)
	require.Len(t, res.Imported, 1)

	assert.Equal(t, map[string]string{"v1": "PL1"}, h.record()["UCabc"].Archived)
}

func TestRenameArchive(t *testing.T) {
	h := newHarness(t)
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddPlaylist("PLmusic", "Music", day(2), true)

	c, err := h.svc.RenameArchive(h.ctx, ann, "PL1", "Old stuff")
	require.NoError(t, err)
	assert.Equal(t, "Old stuff", c.Title)
	pl, _ := h.remote.Playlist("PL1")
	assert.Equal(t, "Old stuff", pl.Title)

	_, err = h.svc.RenameArchive(h.ctx, ann, "PLmusic", "x")
	assert.ErrorIs(t, err, ErrUnknownContainer)
	_, err = h.svc.RenameArchive(h.ctx, ann, "PL1", "  ")
	assert.Error(t, err)
}

func TestListArchives_ReferencedContainersLast(t *testing.T) {
	h := newHarness(t)
	h.archiveContainer("PL1", 1, day(1))
	h.remote.AddPlaylist("PLrenamed", "Keep", day(2), true)
	h.seed(storage.UserRecord{
		"UCabc": channelState(map[string]string{"v1": "PL1", "v2": "PLrenamed", "v3": "PLforeign", "v4": "PLforeign"}, nil),
	})

	got, err := h.svc.ListArchives(h.ctx, ann)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Container{ID: "PL1", Title: "Ann's Archive #1", CreatedAt: day(1), Owned: true, Local: 1}, got[0])
	assert.Equal(t, "PLrenamed", got[1].ID)
	assert.True(t, got[1].Owned)
	assert.Equal(t, Container{ID: "PLforeign", Local: 2}, got[2])
}
