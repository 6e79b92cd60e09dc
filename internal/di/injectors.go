//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"ytarchive/internal/auth"
	"ytarchive/internal/config"
)

func InitializeApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}

func InitializeOAuth(cfg *config.Config) (*auth.OAuth, error) {
	wire.Build(ProvideTokenStore, ProvideOAuth)
	return nil, nil
}
