package archive

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/internal/auth"
	"ytarchive/internal/storage"
	"ytarchive/internal/testutil"
	"ytarchive/internal/youtube"
)

var ann = auth.User{ID: "UCme", Name: "Ann"}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 500, time.UTC)

type harness struct {
	t        *testing.T
	ctx      context.Context
	svc      *Service
	remote   *testutil.FakeRemote
	store    storage.Store
	mu       sync.Mutex
	replaces int
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	js, err := storage.NewJSONStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	t.Cleanup(func() { js.Close() })

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		remote: testutil.NewFakeRemote(youtube.Channel{ID: ann.ID, Title: ann.Name}),
	}
	h.store = storage.WithObserver(js, func(op string, d time.Duration, err error) {
		if op == "replace" {
			h.mu.Lock()
			h.replaces++
			h.mu.Unlock()
		}
	})

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	h.svc, err = NewService(h.store, h.remote, opts...)
	require.NoError(t, err)
	return h
}

// seed replaces the persisted state and resets the replace counter.
func (h *harness) seed(rec storage.UserRecord) {
	h.t.Helper()
	require.NoError(h.t, h.store.Replace(h.ctx, storage.State{ann.ID: rec}))
	h.mu.Lock()
	h.replaces = 0
	h.mu.Unlock()
}

func (h *harness) record() storage.UserRecord {
	h.t.Helper()
	st, err := h.store.Load(h.ctx)
	require.NoError(h.t, err)
	return st.User(ann.ID)
}

func (h *harness) replaceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.replaces
}

func (h *harness) channel(id, title string) {
	h.remote.AddChannel(youtube.Channel{ID: id, Title: title}, "", "")
}

func (h *harness) video(id, channelID string) {
	h.remote.AddVideo(youtube.Video{ID: id, Title: "title " + id, ChannelID: channelID})
}

// archiveContainer adds an owned playlist named like the n-th archive.
func (h *harness) archiveContainer(id string, n int, created time.Time) {
	h.remote.AddPlaylist(id, DefaultPolicy().containerTitle(ann.Name, n), created, true)
}

func channelState(archived map[string]string, played map[string]time.Time) *storage.ChannelState {
	cs := storage.NewChannelState()
	for k, v := range archived {
		cs.Archived[k] = v
	}
	for k, v := range played {
		cs.Played[k] = v
	}
	return cs
}

func day(n int) time.Time {
	return time.Date(2019, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestNewService_ValidatesPolicy(t *testing.T) {
	remote := testutil.NewFakeRemote(youtube.Channel{ID: ann.ID})
	tests := []struct {
		name   string
		policy Policy
	}{
		{"zero capacity", Policy{Capacity: 0, NameTemplate: "{n}", Privacy: "private"}},
		{"template without number", Policy{Capacity: 10, NameTemplate: "{user}'s Archive", Privacy: "private"}},
		{"bad privacy", Policy{Capacity: 10, NameTemplate: "#{n}", Privacy: "secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(nil, remote, WithPolicy(tt.policy))
			assert.Error(t, err)
		})
	}

	svc, err := NewService(nil, remote)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), svc.Policy())
}

func TestService_PerUserLockPreventsLostUpdates(t *testing.T) {
	h := newHarness(t)
	h.seed(storage.UserRecord{"UCabc": storage.NewChannelState()})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.MarkPlayed(h.ctx, ann, "UCabc", "vid"+string(rune('a'+i)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.record()["UCabc"].Played, 20)
}

func TestService_CanceledContextPersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.seed(storage.UserRecord{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.svc.Track(ctx, ann, "UCabc")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.record())
}
