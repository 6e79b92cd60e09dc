package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff tuning for throttled hosts.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0
	// CooldownPeriod is how long a host must stay quiet before its original
	// rate is restored.
	CooldownPeriod = 5 * time.Minute
	// MinRateFactor is the floor for rate reduction (25% of configured).
	MinRateFactor = 0.25
)

// BackoffState tracks throttling of one host.
type BackoffState struct {
	CurrentBackoff    time.Duration
	LastThrottle      time.Time
	ConsecutiveErrors int
	OriginalRPS       float64
	ReducedRPS        float64
}

// Limiter is a per-host token bucket whose rate drops while the host throttles
// us and recovers after a cooldown.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	backoff  map[string]*BackoffState
	rps      float64
	burst    int
	hostRPS  map[string]float64
	now      func() time.Time
}

// NewLimiter creates a limiter allowing rps requests per second per host,
// with per-host overrides. rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int, hostRPS map[string]float64) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	if hostRPS == nil {
		hostRPS = make(map[string]float64)
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		backoff:  make(map[string]*BackoffState),
		rps:      rps,
		burst:    burst,
		hostRPS:  hostRPS,
		now:      time.Now,
	}
}

func (l *Limiter) rateFor(host string) float64 {
	if r, ok := l.hostRPS[host]; ok {
		return r
	}
	return l.rps
}

// limiter returns the bucket for host, or nil when host is unlimited.
// Must be called with mu held.
func (l *Limiter) limiter(host string) *rate.Limiter {
	if lim, ok := l.limiters[host]; ok {
		return lim
	}
	r := l.rateFor(host)
	if r <= 0 {
		return nil
	}
	lim := rate.NewLimiter(rate.Limit(r), l.burst)
	l.limiters[host] = lim
	return lim
}

// Wait blocks until host has both left any throttle backoff and has a token.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	if err := l.waitBackoff(ctx, host); err != nil {
		return err
	}

	l.mu.Lock()
	lim := l.limiter(host)
	l.mu.Unlock()
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func (l *Limiter) waitBackoff(ctx context.Context, host string) error {
	remaining := l.Remaining(host)
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remaining reports how much of the current backoff window is left for host.
func (l *Limiter) Remaining(host string) time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.backoff[host]
	if !ok {
		return 0
	}
	return st.CurrentBackoff - l.now().Sub(st.LastThrottle)
}

// RecordThrottle notes a 429 or rate-limit 403 from host. The backoff doubles
// per consecutive throttle (never below retryAfter) and the bucket rate drops
// to 75%, 50%, then 25% of the configured rate. It returns the backoff now in
// effect.
func (l *Limiter) RecordThrottle(host string, retryAfter time.Duration) time.Duration {
	if l == nil {
		return retryAfter
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.backoff[host]
	if !ok {
		st = &BackoffState{CurrentBackoff: InitialBackoff, OriginalRPS: l.rateFor(host)}
		l.backoff[host] = st
	}
	st.LastThrottle = l.now()
	st.ConsecutiveErrors++

	if st.ConsecutiveErrors > 1 {
		st.CurrentBackoff = time.Duration(float64(st.CurrentBackoff) * BackoffMultiplier)
		if st.CurrentBackoff > MaxBackoff {
			st.CurrentBackoff = MaxBackoff
		}
	}
	if retryAfter > st.CurrentBackoff {
		st.CurrentBackoff = retryAfter
	}

	factor := MinRateFactor
	switch st.ConsecutiveErrors {
	case 1:
		factor = 0.75
	case 2:
		factor = 0.5
	}
	st.ReducedRPS = st.OriginalRPS * factor
	if lim := l.limiter(host); lim != nil && st.ReducedRPS > 0 {
		lim.SetLimit(rate.Limit(st.ReducedRPS))
	}
	return st.CurrentBackoff
}

// RecordSuccess lets host recover: after CooldownPeriod without throttling the
// original rate is restored, before that each success forgives one error and a
// fully forgiven host climbs back to half its rate.
func (l *Limiter) RecordSuccess(host string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.backoff[host]
	if !ok {
		return
	}
	lim := l.limiters[host]

	if l.now().Sub(st.LastThrottle) > CooldownPeriod {
		if lim != nil {
			lim.SetLimit(rate.Limit(st.OriginalRPS))
		}
		delete(l.backoff, host)
		return
	}

	if st.ConsecutiveErrors > 0 {
		st.ConsecutiveErrors--
		if st.ConsecutiveErrors == 0 {
			half := st.OriginalRPS * 0.5
			if half > st.ReducedRPS {
				st.ReducedRPS = half
				if lim != nil {
					lim.SetLimit(rate.Limit(half))
				}
			}
		}
	}
}

// State returns a copy of host's backoff state, or nil if it is not throttled.
func (l *Limiter) State(host string) *BackoffState {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.backoff[host]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}
