package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RPS = 0
	cfg.FailureThreshold = 2
	cfg.RecoveryTimeout = time.Minute
	return cfg
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Hostname()
}

func TestTransport_PassesThroughAndObserves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	tr := New(testConfig(), nil)
	var seen []int
	tr.Observe = func(host string, status int, d time.Duration) { seen = append(seen, status) }
	client := NewHTTPClient(testConfig(), tr)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "ok", string(body))
	assert.Equal(t, []int{200}, seen)
}

func TestTransport_ThrottleRecordsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := New(testConfig(), nil)
	resp, err := NewHTTPClient(testConfig(), tr).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	st := tr.Limiter.State(hostOf(t, srv.URL))
	require.NotNil(t, st)
	assert.Equal(t, 3*time.Second, st.CurrentBackoff)
}

func TestTransport_RateLimit403KeepsBody(t *testing.T) {
	const payload = `{"error":{"code":403,"errors":[{"reason":"rateLimitExceeded"}]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	tr := New(testConfig(), nil)
	resp, err := NewHTTPClient(testConfig(), tr).Get(srv.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, payload, string(body))
	assert.NotNil(t, tr.Limiter.State(hostOf(t, srv.URL)))
}

func TestTransport_Plain403IsNotThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"errors":[{"reason":"forbidden"}]}}`)
	}))
	defer srv.Close()

	tr := New(testConfig(), nil)
	resp, err := NewHTTPClient(testConfig(), tr).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Nil(t, tr.Limiter.State(hostOf(t, srv.URL)))
}

func TestTransport_CircuitOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := New(testConfig(), nil)
	client := NewHTTPClient(testConfig(), tr)
	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	_, err := client.Get(srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Duration(0), RetryAfter(h))

	h.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, RetryAfter(h))

	h.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	assert.Greater(t, RetryAfter(h), 59*time.Minute)

	h.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), RetryAfter(h))
}
