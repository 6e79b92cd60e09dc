package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ytarchive/internal/archive"
	"ytarchive/internal/auth"
	"ytarchive/internal/config"
	"ytarchive/internal/di"
	"ytarchive/internal/metrics"
	"ytarchive/internal/storage"
	"ytarchive/internal/testutil"
	"ytarchive/internal/youtube"
)

var ann = auth.User{ID: "UCme", Name: "Ann"}

const chanA = "UCaaaaaaaaaaaaaaaaaaaaaa"

type cliHarness struct {
	t         *testing.T
	remote    *testutil.FakeRemote
	user      auth.User
	dir       string
	cfgPath   string
	statePath string
	stdin     string
	builds    int
}

func newCLI(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	h := &cliHarness{
		t:         t,
		remote:    testutil.NewFakeRemote(youtube.Channel{ID: ann.ID, Title: ann.Name}),
		user:      ann,
		dir:       dir,
		cfgPath:   filepath.Join(dir, "config.yaml"),
		statePath: filepath.Join(dir, "state.json"),
	}
	h.writeConfig("")
	h.remote.AddChannel(youtube.Channel{ID: chanA, Title: "Alpha"}, "alpha", "@alpha")
	for _, id := range []string{"v1", "v2", "v3"} {
		h.remote.AddVideo(youtube.Video{ID: id, Title: "video " + id, ChannelID: chanA})
	}
	return h
}

func day(n int) time.Time {
	return time.Date(2019, 1, n, 0, 0, 0, 0, time.UTC)
}

func (h *cliHarness) writeConfig(extra string) {
	h.t.Helper()
	cfg := "log:\n  level: error\n  console: never\n" + extra
	require.NoError(h.t, os.WriteFile(h.cfgPath, []byte(cfg), 0o600))
}

func (h *cliHarness) newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*di.App, func(), error) {
	h.builds++
	store, err := storage.Open(storage.Options{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path})
	if err != nil {
		return nil, nil, err
	}
	svc, err := archive.NewService(store, h.remote, archive.WithPolicy(cfg.Policy()), archive.WithLogger(log))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	app := di.NewApp(cfg, log, svc, auth.StaticAuthenticator{User: h.user}, store, metrics.New(cfg.Metrics.Enabled), nil)
	return app, func() { store.Close() }, nil
}

func (h *cliHarness) run(args ...string) (string, string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	opts := Options{
		Stdin:  strings.NewReader(h.stdin),
		Stdout: &stdout,
		Stderr: &stderr,
		NewApp: h.newApp,
	}
	full := append([]string{"--config", h.cfgPath, "--state", h.statePath}, args...)
	err := Run(context.Background(), full, opts)
	return stdout.String(), stderr.String(), err
}

func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, stderr, err := h.run(args...)
	require.NoError(h.t, err, "stderr: %s", stderr)
	return out
}

func (h *cliHarness) state() storage.UserRecord {
	h.t.Helper()
	s, err := storage.NewJSONStore(h.statePath)
	require.NoError(h.t, err)
	defer s.Close()
	st, err := s.Load(context.Background())
	require.NoError(h.t, err)
	return st.User(ann.ID)
}

func TestTrackAndChannels(t *testing.T) {
	h := newCLI(t)

	out := h.mustRun("track", "https://www.youtube.com/channel/"+chanA)
	assert.Contains(t, out, "Tracking Alpha ("+chanA+")")
	assert.Contains(t, h.state(), chanA)

	out = h.mustRun("channels")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, chanA)
	assert.Contains(t, out, "Alpha")
}

func TestTrack_UnresolvedQuery(t *testing.T) {
	h := newCLI(t)

	_, _, err := h.run("track", "@nobody")
	var rerr *archive.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Empty(t, h.state())
}

func TestArchiveFlow(t *testing.T) {
	h := newCLI(t)

	out := h.mustRun("archive", "v1", "v2")
	assert.Contains(t, out, "PLnew1")
	assert.Contains(t, out, "channel now tracked")
	assert.Equal(t, []string{"v1", "v2"}, h.remote.Members("PLnew1"))
	assert.Equal(t, map[string]string{"v1": "PLnew1", "v2": "PLnew1"}, h.state()[chanA].Archived)

	out = h.mustRun("archives")
	assert.Contains(t, out, "Ann's Archive #1")
	assert.Contains(t, out, "2/5000")

	h.mustRun("unarchive", "v2")
	assert.Equal(t, []string{"v1"}, h.remote.Members("PLnew1"))
	assert.NotContains(t, h.state()[chanA].Archived, "v2")
}

func TestSync_JSONReport(t *testing.T) {
	h := newCLI(t)
	h.remote.AddPlaylist("PLold", "Ann's Archive #1", day(1), true)
	h.remote.AddItem("PLold", "v3")

	out := h.mustRun("--format", "json", "sync")
	var rep archive.ReconcileReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Added, 1)
	assert.Equal(t, "v3", rep.Added[0].VideoID)
	assert.Equal(t, "PLold", h.state()[chanA].Archived["v3"])
}

func TestVideos_SyncsFirstUnlessDisabled(t *testing.T) {
	h := newCLI(t)
	h.mustRun("track", chanA)
	h.remote.AddPlaylist("PLold", "Ann's Archive #1", day(1), true)
	h.remote.AddItem("PLold", "v2")

	out := h.mustRun("videos", "--no-sync", "--archived", "yes", chanA)
	assert.NotContains(t, out, "v2")
	assert.Zero(t, h.remote.Calls("playlists.list"))

	out = h.mustRun("videos", "--archived", "yes", chanA)
	assert.Contains(t, out, "v2")
	assert.Contains(t, out, "PLold")
}

func TestVideos_BadFilter(t *testing.T) {
	h := newCLI(t)
	_, _, err := h.run("videos", "--played", "maybe", chanA)
	assert.ErrorContains(t, err, "--played")
	assert.Zero(t, h.builds)
}

func TestPlayAndPick(t *testing.T) {
	h := newCLI(t)
	h.mustRun("track", chanA)

	out := h.mustRun("play", chanA, "v1")
	assert.Contains(t, out, "Marked 1 videos played")
	assert.Contains(t, h.state()[chanA].Played, "v1")

	out = h.mustRun("--format", "yaml", "pick", chanA)
	var picked map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &picked))
	assert.Equal(t, false, picked["archived"])

	out = h.mustRun("pick", "--mode", "next-unplayed", chanA)
	assert.Contains(t, out, "v2")

	h.mustRun("unplay", chanA, "v1")
	assert.NotContains(t, h.state()[chanA].Played, "v1")
}

func TestPlay_UntrackedChannel(t *testing.T) {
	h := newCLI(t)
	_, _, err := h.run("play", chanA, "v1")
	assert.ErrorIs(t, err, archive.ErrChannelNotTracked)
}

func TestSubscriptions(t *testing.T) {
	h := newCLI(t)
	h.remote.AddSubscription(chanA, "Alpha")

	out := h.mustRun("subscriptions")
	assert.Contains(t, out, "Alpha")

	h.mustRun("subscriptions", "--track", chanA)
	assert.Contains(t, h.state(), chanA)

	out = h.mustRun("--format", "json", "subscriptions")
	var subs []archive.SubscriptionSummary
	require.NoError(t, json.Unmarshal([]byte(out), &subs))
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Tracked)

	out = h.mustRun("unsubscribe", chanA)
	assert.Contains(t, out, "Unsubscribed from "+chanA)
	out = h.mustRun("unsubscribe", chanA)
	assert.Contains(t, out, "Not subscribed")
}

func TestRate(t *testing.T) {
	h := newCLI(t)

	h.mustRun("rate", "v1", "like")
	assert.Equal(t, youtube.RatingLike, h.remote.Rating("v1"))

	out := h.mustRun("rate", "v1")
	assert.Contains(t, out, "v1: like")

	_, _, err := h.run("rate", "v1", "love")
	assert.Error(t, err)
}

func TestAuthStatus(t *testing.T) {
	h := newCLI(t)
	out := h.mustRun("auth", "status")
	assert.Contains(t, out, "Logged in as Ann (UCme)")

	h.user = auth.User{}
	out = h.mustRun("--format", "json", "auth", "status")
	assert.JSONEq(t, `{"authenticated": false}`, out)
}

func TestNotAuthenticatedHint(t *testing.T) {
	h := newCLI(t)
	h.user = auth.User{}

	_, _, err := h.run("channels")
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestStateExport(t *testing.T) {
	h := newCLI(t)
	h.mustRun("archive", "v1")

	out := h.mustRun("state", "export")
	assert.Contains(t, out, `"archived": {`)
	assert.Contains(t, out, `"v1": "PLnew1"`)

	path := filepath.Join(h.dir, "export.json")
	_, stderr, err := h.run("state", "export", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Exported 1 users")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
	assert.Equal(t, 1, h.builds, "export must not assemble the app")
}

func TestMetricsTextfile(t *testing.T) {
	h := newCLI(t)
	prom := filepath.Join(h.dir, "ytarchive.prom")
	h.writeConfig("metrics:\n  enabled: true\n  textfile: " + prom + "\n")

	h.mustRun("archives")
	_, err := os.Stat(prom)
	assert.NoError(t, err)
}

func TestGlobalFlagValidation(t *testing.T) {
	h := newCLI(t)

	_, _, err := h.run("--format", "xml", "channels")
	assert.ErrorContains(t, err, "unknown format")

	_, _, err = h.run("channels", "--sort", "views")
	assert.ErrorContains(t, err, "unknown sort")
}

func TestStatePathSelectsDriver(t *testing.T) {
	h := newCLI(t)
	h.statePath = filepath.Join(h.dir, "state.db")

	h.mustRun("track", chanA)
	s, err := storage.NewSQLiteStore(h.statePath)
	require.NoError(t, err)
	defer s.Close()
	st, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, st.User(ann.ID), chanA)
}
