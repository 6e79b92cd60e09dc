package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"
)

// OAuth drives the installed-application flow and builds authenticated
// HTTP clients from the stored token.
type OAuth struct {
	cfg    *oauth2.Config
	tokens *TokenStore
}

// NewOAuth reads the client secrets file downloaded from the Google Cloud
// console.
func NewOAuth(secretsPath string, tokens *TokenStore) (*OAuth, error) {
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, yt.YoutubeForceSslScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	return &OAuth{cfg: cfg, tokens: tokens}, nil
}

// NewState returns a random state parameter for AuthCodeURL.
func NewState() string {
	return uuid.NewString()
}

// AuthCodeURL returns the consent page URL. Offline access is requested so
// the token can be refreshed.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := o.tokens.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Client returns an HTTP client that authorizes every request over base and
// persists refreshed tokens. It fails with ErrNotAuthenticated when no token
// is stored.
func (o *OAuth) Client(ctx context.Context, base http.RoundTripper) (*http.Client, error) {
	tok, err := o.tokens.Load()
	if err != nil {
		return nil, err
	}
	// The refresh exchange goes through base as well.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	src := &savingSource{
		src:   o.cfg.TokenSource(ctx, tok),
		store: o.tokens,
		last:  tok.AccessToken,
	}
	return &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(tok, src), Base: base},
	}, nil
}

// ParseCode extracts the authorization code from what the user pasted: either
// the bare code or the full redirect URL. A redirect URL must carry state.
func ParseCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty authorization code")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	if got := q.Get("state"); got != state {
		return "", fmt.Errorf("state mismatch: got %q", got)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect url has no code")
	}
	return code, nil
}
