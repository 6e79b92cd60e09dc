// Package transport provides the HTTP plumbing shared by every remote call:
// per-host rate limiting, throttle backoff and a circuit breaker, packaged as
// an http.RoundTripper.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config configures the transport.
type Config struct {
	// RPS is the default requests per second per host. Zero disables limiting.
	RPS float64
	// Burst is the token bucket size.
	Burst int
	// HostRPS overrides RPS for specific hosts.
	HostRPS map[string]float64
	// Timeout bounds each request made through NewHTTPClient.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive transient failures that
	// opens a host's circuit.
	FailureThreshold int
	// RecoveryTimeout is how long a circuit stays open.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns conservative settings for the Data API.
func DefaultConfig() Config {
	return Config{
		RPS:              5,
		Burst:            1,
		HostRPS:          map[string]float64{},
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// ObserveFunc receives one event per completed round trip. status is 0 when
// the request failed without a response.
type ObserveFunc func(host string, status int, d time.Duration)

// Transport is an http.RoundTripper guarding Base with a Limiter and Breaker.
type Transport struct {
	Base    http.RoundTripper
	Limiter *Limiter
	Breaker *Breaker
	Observe ObserveFunc
}

// New builds a Transport from cfg on top of base (http.DefaultTransport when nil).
func New(cfg Config, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Base:    base,
		Limiter: NewLimiter(cfg.RPS, cfg.Burst, cfg.HostRPS),
		Breaker: NewBreaker(cfg.FailureThreshold, cfg.RecoveryTimeout),
	}
}

// NewHTTPClient wraps t in an http.Client with cfg.Timeout.
func NewHTTPClient(cfg Config, t http.RoundTripper) *http.Client {
	return &http.Client{Transport: t, Timeout: cfg.Timeout}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()

	if err := t.Breaker.Allow(host); err != nil {
		return nil, err
	}
	if err := t.Limiter.Wait(req.Context(), host); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		t.observe(host, 0, time.Since(start))
		if !errors.Is(err, context.Canceled) {
			t.Breaker.RecordFailure(host)
		}
		return nil, err
	}
	t.observe(host, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		t.Limiter.RecordThrottle(host, RetryAfter(resp.Header))
		t.Breaker.RecordFailure(host)
	case resp.StatusCode == http.StatusForbidden && isRateLimitBody(resp):
		t.Limiter.RecordThrottle(host, RetryAfter(resp.Header))
		t.Breaker.RecordFailure(host)
	case resp.StatusCode >= 500:
		t.Breaker.RecordFailure(host)
	default:
		t.Limiter.RecordSuccess(host)
		t.Breaker.RecordSuccess(host)
	}
	return resp, nil
}

func (t *Transport) observe(host string, status int, d time.Duration) {
	if t.Observe != nil {
		t.Observe(host, status, d)
	}
}

// rateLimitReasons are the Data API error reasons that mean "slow down".
var rateLimitReasons = []string{"rateLimitExceeded", "userRateLimitExceeded"}

// isRateLimitBody peeks at a 403 body for a rate-limit reason and restores
// the body for the caller.
func isRateLimitBody(resp *http.Response) bool {
	if resp.Body == nil {
		return false
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	rest := resp.Body
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), rest), rest}
	if err != nil {
		return false
	}
	body := string(data)
	for _, r := range rateLimitReasons {
		if strings.Contains(body, r) {
			return true
		}
	}
	return false
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
