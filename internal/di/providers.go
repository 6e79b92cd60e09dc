// Package di assembles the application from configuration.
package di

import (
	"context"
	"net/http"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"ytarchive/internal/archive"
	"ytarchive/internal/auth"
	"ytarchive/internal/config"
	"ytarchive/internal/metrics"
	"ytarchive/internal/storage"
	"ytarchive/internal/transport"
	"ytarchive/internal/youtube"
)

// QuotaReporter reports the Data API units spent so far.
type QuotaReporter interface {
	QuotaUsed() int64
}

// App is everything a command needs.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Service *archive.Service
	Auth    auth.Authenticator
	Store   storage.Store
	Metrics metrics.Recorder
	Quota   QuotaReporter
}

// NewApp bundles the assembled components.
func NewApp(cfg *config.Config, log zerolog.Logger, svc *archive.Service, a auth.Authenticator,
	store storage.Store, rec metrics.Recorder, quota QuotaReporter) *App {
	return &App{
		Config:  cfg,
		Log:     log,
		Service: svc,
		Auth:    a,
		Store:   store,
		Metrics: rec,
		Quota:   quota,
	}
}

// ProviderSet builds an App from *config.Config, zerolog.Logger and a context.
var ProviderSet = wire.NewSet(
	ProvideMetrics,
	ProvideTransport,
	ProvideTokenStore,
	ProvideOAuth,
	ProvideHTTPClient,
	ProvideAPIClient,
	ProvideRemote,
	ProvideAuthenticator,
	ProvideStore,
	ProvideService,
	wire.Bind(new(QuotaReporter), new(*youtube.APIClient)),
	NewApp,
)

func ProvideMetrics(cfg *config.Config) metrics.Recorder {
	return metrics.New(cfg.Metrics.Enabled)
}

func ProvideTransport(cfg *config.Config, rec metrics.Recorder) *transport.Transport {
	t := transport.New(cfg.TransportConfig(), nil)
	t.Observe = rec.ObserveHTTP
	return t
}

func ProvideTokenStore(cfg *config.Config) *auth.TokenStore {
	return auth.NewTokenStore(cfg.Auth.TokenFile)
}

func ProvideOAuth(cfg *config.Config, tokens *auth.TokenStore) (*auth.OAuth, error) {
	return auth.NewOAuth(cfg.Auth.ClientSecrets, tokens)
}

// ProvideHTTPClient authorizes requests on top of the rate-limited transport.
func ProvideHTTPClient(ctx context.Context, cfg *config.Config, o *auth.OAuth, t *transport.Transport) (*http.Client, error) {
	c, err := o.Client(ctx, t)
	if err != nil {
		return nil, err
	}
	c.Timeout = cfg.Transport.Timeout
	return c, nil
}

func ProvideAPIClient(ctx context.Context, cfg *config.Config, hc *http.Client, rec metrics.Recorder, log zerolog.Logger) (*youtube.APIClient, error) {
	return youtube.NewAPIClient(ctx, youtube.APIOptions{
		HTTPClient: hc,
		Retry:      cfg.RetryConfig(),
		Logger:     log,
		Observe:    rec.ObserveRemoteCall,
	})
}

// ProvideRemote puts the metadata cache in front of the API client when
// enabled.
func ProvideRemote(cfg *config.Config, api *youtube.APIClient, rec metrics.Recorder) youtube.Client {
	if !cfg.Cache.Enabled {
		return api
	}
	return youtube.NewCachedClient(api, cfg.Cache.SizeMB, cfg.Cache.TTL, rec)
}

// ProvideAuthenticator identifies the user through the uncached client.
func ProvideAuthenticator(tokens *auth.TokenStore, api *youtube.APIClient) auth.Authenticator {
	return auth.NewTokenAuthenticator(tokens, api)
}

// ProvideStore opens the configured backend. The cleanup closes it.
func ProvideStore(cfg *config.Config, rec metrics.Recorder) (storage.Store, func(), error) {
	s, err := storage.Open(storage.Options{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path})
	if err != nil {
		return nil, nil, err
	}
	return storage.WithObserver(s, rec.ObserveStore), func() { s.Close() }, nil
}

func ProvideService(cfg *config.Config, store storage.Store, remote youtube.Client, rec metrics.Recorder, log zerolog.Logger) (*archive.Service, error) {
	return archive.NewService(store, remote,
		archive.WithPolicy(cfg.Policy()),
		archive.WithLogger(log),
		archive.WithMetrics(rec),
	)
}
