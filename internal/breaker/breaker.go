// Package breaker implements a per-backend circuit breaker. Each key owns an
// independent three-state machine, so one overloaded backend never blocks
// unrelated ones.
package breaker

import (
	"sync"
	"time"

	"github.com/storyloom/orchestrator/internal/domain"
)

// State is the circuit state for one key.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 3
	DefaultRecoveryTimeout  = 45 * time.Second
)

// Breaker tracks circuit state per key (backend id, or backend id plus mode
// for backends used in two modes). Entries are locked individually; the
// outer map lock is held only for lookup.
type Breaker struct {
	mu      sync.RWMutex
	entries map[string]*entry

	threshold int
	recovery  time.Duration
	now       func() time.Time
}

type entry struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	probing             bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets the consecutive-failure count that opens the
// circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.threshold = n }
}

// WithRecoveryTimeout sets how long an open circuit waits before allowing a
// probe.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(b *Breaker) { b.recovery = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a breaker with the given options.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		entries:   make(map[string]*entry),
		threshold: DefaultFailureThreshold,
		recovery:  DefaultRecoveryTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) entryFor(key string) *entry {
	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()
	if ok {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok = b.entries[key]; ok {
		return e
	}
	e = &entry{state: Closed}
	b.entries[key] = e
	return e
}

// Allow reports whether a call for key may proceed. Open circuits reject
// with CircuitOpenError until the recovery timeout elapses; then exactly one
// probe passes in half-open and concurrent arrivals are rejected as if the
// circuit were still open.
func (b *Breaker) Allow(key string) error {
	e := b.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := b.now()
	switch e.state {
	case Closed:
		return nil
	case Open:
		elapsed := now.Sub(e.openedAt)
		if elapsed < b.recovery {
			return &domain.CircuitOpenError{Key: key, RetryAfter: b.recovery - elapsed}
		}
		e.state = HalfOpen
		e.probing = true
		return nil
	case HalfOpen:
		if e.probing {
			return &domain.CircuitOpenError{Key: key, RetryAfter: b.recovery}
		}
		e.probing = true
		return nil
	}
	return nil
}

// RecordSuccess reports a successful call for key.
func (b *Breaker) RecordSuccess(key string) {
	e := b.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures = 0
	e.probing = false
	e.state = Closed
}

// RecordFailure reports a failed call for key. In half-open the circuit
// reopens immediately and the recovery clock restarts; in closed the failure
// counter advances toward the threshold.
func (b *Breaker) RecordFailure(key string) {
	e := b.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case HalfOpen:
		e.state = Open
		e.openedAt = b.now()
		e.probing = false
	case Closed:
		e.consecutiveFailures++
		if e.consecutiveFailures >= b.threshold {
			e.state = Open
			e.openedAt = b.now()
		}
	case Open:
		// Late failure from a call admitted before the circuit opened.
		e.consecutiveFailures++
	}
}

// StateOf returns the current state for key. Keys never seen are Closed.
func (b *Breaker) StateOf(key string) State {
	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return Closed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns the state of every tracked key, for the stats endpoint.
func (b *Breaker) Snapshot() map[string]string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = b.StateOf(k).String()
	}
	return out
}
