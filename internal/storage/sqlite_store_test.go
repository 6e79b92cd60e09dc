package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/internal/storage/migrations"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_EmptyDatabase(t *testing.T) {
	s := newSQLiteStore(t)

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st)
	assert.NoError(t, migrations.Status(s.db))
}

func TestSQLiteStore_ReplaceThenLoad(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.Replace(ctx, sampleState()))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

func TestSQLiteStore_ReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	require.NoError(t, s.Replace(ctx, sampleState()))

	next := State{}
	cs, _ := next.User("UCother").Channel("UCq")
	cs.Archived["v9"] = "PL9"
	require.NoError(t, s.Replace(ctx, next))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got)
}

func TestSQLiteStore_KeepsUsersWithoutChannels(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	st := State{}
	st.User("lonely")
	require.NoError(t, s.Replace(ctx, st))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, got, "lonely")
	assert.Empty(t, got["lonely"])
}

func TestSQLiteStore_InvalidStateRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	require.NoError(t, s.Replace(ctx, sampleState()))

	err := s.Replace(ctx, State{"": UserRecord{}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Replace(ctx, sampleState()))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

func TestMigrations_Latest(t *testing.T) {
	v, err := migrations.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}
