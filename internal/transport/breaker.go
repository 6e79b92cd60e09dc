package transport

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen fails requests fast.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of probe requests through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit for a host is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type circuit struct {
	state             CircuitState
	consecutiveErrors int
	lastChange        time.Time
	probes            int
}

// Breaker is a per-host circuit breaker. After threshold consecutive
// failures the host's circuit opens for recovery, then half-opens to admit
// maxProbes requests.
type Breaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	recovery  time.Duration
	maxProbes int
	now       func() time.Time
}

// NewBreaker creates a breaker. Non-positive arguments fall back to 5
// failures and 30 seconds.
func NewBreaker(threshold int, recovery time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recovery <= 0 {
		recovery = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		recovery:  recovery,
		maxProbes: 1,
		now:       time.Now,
	}
}

func (b *Breaker) get(host string) *circuit {
	c, ok := b.circuits[host]
	if !ok {
		c = &circuit{state: CircuitClosed, lastChange: b.now()}
		b.circuits[host] = c
	}
	return c
}

// Allow returns ErrCircuitOpen if host should not be contacted right now.
func (b *Breaker) Allow(host string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(host)
	switch c.state {
	case CircuitOpen:
		if b.now().Sub(c.lastChange) < b.recovery {
			return ErrCircuitOpen
		}
		c.state = CircuitHalfOpen
		c.lastChange = b.now()
		c.probes = 1
		return nil
	case CircuitHalfOpen:
		if c.probes >= b.maxProbes {
			return ErrCircuitOpen
		}
		c.probes++
	}
	return nil
}

// RecordSuccess closes the circuit for host.
func (b *Breaker) RecordSuccess(host string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(host)
	if c.state != CircuitClosed {
		c.lastChange = b.now()
	}
	c.state = CircuitClosed
	c.consecutiveErrors = 0
	c.probes = 0
}

// RecordFailure counts a transient failure against host.
func (b *Breaker) RecordFailure(host string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(host)
	c.consecutiveErrors++
	switch c.state {
	case CircuitClosed:
		if c.consecutiveErrors >= b.threshold {
			c.state = CircuitOpen
			c.lastChange = b.now()
		}
	case CircuitHalfOpen:
		c.state = CircuitOpen
		c.lastChange = b.now()
	}
}

// State reports the circuit state for host, accounting for an elapsed
// recovery window.
func (b *Breaker) State(host string) CircuitState {
	if b == nil {
		return CircuitClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[host]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && b.now().Sub(c.lastChange) >= b.recovery {
		return CircuitHalfOpen
	}
	return c.state
}
