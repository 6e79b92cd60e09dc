package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"ytarchive/internal/auth"
	"ytarchive/internal/config"
	"ytarchive/internal/metrics"
	"ytarchive/internal/youtube"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Auth.ClientSecrets = filepath.Join("..", "auth", "testdata", "client_secret.json")
	cfg.Auth.TokenFile = filepath.Join(dir, "token.json")
	cfg.Storage.Path = filepath.Join(dir, "state.json")
	return cfg
}

func saveToken(t *testing.T, cfg *config.Config) {
	t.Helper()
	tok := &oauth2.Token{AccessToken: "live", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, auth.NewTokenStore(cfg.Auth.TokenFile).Save(tok))
}

func TestInitializeApp_RequiresToken(t *testing.T) {
	cfg := testConfig(t)

	_, _, err := InitializeApp(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestInitializeApp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	saveToken(t, cfg)

	app, cleanup, err := InitializeApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()

	assert.Same(t, cfg, app.Config)
	assert.NotNil(t, app.Service)
	assert.IsType(t, &auth.TokenAuthenticator{}, app.Auth)
	assert.IsType(t, &metrics.Prometheus{}, app.Metrics)
	assert.IsType(t, &youtube.APIClient{}, app.Quota)
	assert.Equal(t, int64(0), app.Quota.QuotaUsed())
	assert.Equal(t, cfg.Policy(), app.Service.Policy())

	st, err := app.Store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st)
}

func TestProvideRemote_Cache(t *testing.T) {
	cfg := testConfig(t)
	saveToken(t, cfg)
	app, cleanup, err := InitializeApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()
	api := app.Quota.(*youtube.APIClient)

	cfg.Cache.Enabled = true
	assert.IsType(t, &youtube.CachedClient{}, ProvideRemote(cfg, api, metrics.Noop{}))

	cfg.Cache.Enabled = false
	assert.Same(t, api, ProvideRemote(cfg, api, metrics.Noop{}))
}

func TestProvideStore_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "bolt"

	_, _, err := ProvideStore(cfg, metrics.Noop{})
	assert.Error(t, err)
}

func TestInitializeOAuth_MissingSecrets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.ClientSecrets = filepath.Join(t.TempDir(), "missing.json")

	_, err := InitializeOAuth(cfg)
	assert.Error(t, err)
}
