// Package auth holds the OAuth token of the local user and answers who that
// user is on the platform.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ytarchive/internal/youtube"
)

// ErrNotAuthenticated is returned when no usable token is stored.
var ErrNotAuthenticated = errors.New("auth: not authenticated")

// User is the authenticated platform user. Name is the display name used
// when naming archive containers.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Authenticator reports whether a session exists and who it belongs to.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
	CurrentUser(ctx context.Context) (User, error)
}

// ChannelLister is the part of youtube.Client needed to identify the user.
type ChannelLister interface {
	ListChannels(ctx context.Context, f youtube.ChannelFilter, cursor string) (youtube.Page[youtube.Channel], error)
}

// TokenAuthenticator identifies the user behind a stored OAuth token by
// asking the platform for the caller's own channel.
type TokenAuthenticator struct {
	tokens   *TokenStore
	channels ChannelLister

	mu   sync.Mutex
	user *User
}

// NewTokenAuthenticator creates an Authenticator backed by tokens.
func NewTokenAuthenticator(tokens *TokenStore, channels ChannelLister) *TokenAuthenticator {
	return &TokenAuthenticator{tokens: tokens, channels: channels}
}

// IsAuthenticated reports whether a token is stored that is either still
// valid or refreshable.
func (a *TokenAuthenticator) IsAuthenticated(ctx context.Context) bool {
	tok, err := a.tokens.Load()
	if err != nil {
		return false
	}
	return tok.Valid() || tok.RefreshToken != ""
}

// CurrentUser returns the owner of the stored token. The answer is cached
// for the lifetime of the authenticator.
func (a *TokenAuthenticator) CurrentUser(ctx context.Context) (User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user != nil {
		return *a.user, nil
	}
	if !a.IsAuthenticated(ctx) {
		return User{}, ErrNotAuthenticated
	}

	page, err := a.channels.ListChannels(ctx, youtube.ChannelFilter{Mine: true}, "")
	if err != nil {
		return User{}, fmt.Errorf("identify user: %w", err)
	}
	if len(page.Items) == 0 {
		return User{}, fmt.Errorf("identify user: %w: account has no channel", ErrNotAuthenticated)
	}
	ch := page.Items[0]
	a.user = &User{ID: ch.ID, Name: ch.Title}
	return *a.user, nil
}

// StaticAuthenticator always answers with the same user. An empty ID means
// unauthenticated.
type StaticAuthenticator struct {
	User User
}

func (s StaticAuthenticator) IsAuthenticated(context.Context) bool { return s.User.ID != "" }

func (s StaticAuthenticator) CurrentUser(context.Context) (User, error) {
	if s.User.ID == "" {
		return User{}, ErrNotAuthenticated
	}
	return s.User, nil
}
