// Package retry computes backoff decisions for failed backend calls. The
// policy never sleeps; it returns a delay and leaves scheduling to the
// caller.
package retry

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/storyloom/orchestrator/internal/domain"
)

const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 6
	DefaultJitter      = 0.25
)

// Policy decides whether and when to retry. Rate-limit and other transient
// errors share the same backoff shape but are counted separately for
// observability.
type Policy struct {
	base        time.Duration
	maxDelay    time.Duration
	maxAttempts int
	jitter      float64
	randFloat   func() float64

	rateLimitRetries atomic.Uint64
	transientRetries atomic.Uint64
}

// Decision is the outcome of one retry check.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Option configures a Policy.
type Option func(*Policy)

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) { p.base = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// WithMaxAttempts sets the total attempt budget per call.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.maxAttempts = n }
}

// WithJitter sets the jitter fraction (0 disables jitter, for tests).
func WithJitter(f float64) Option {
	return func(p *Policy) { p.jitter = f }
}

// WithRand overrides the random source, for tests.
func WithRand(f func() float64) Option {
	return func(p *Policy) { p.randFloat = f }
}

// New creates a policy with the given options.
func New(opts ...Option) *Policy {
	p := &Policy{
		base:        DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		maxAttempts: DefaultMaxAttempts,
		jitter:      DefaultJitter,
		randFloat:   rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide returns whether attempt (zero-based, counting completed attempts)
// should be retried after err, and how long to wait first. Non-retryable
// errors and exhausted budgets short-circuit to no-retry.
func (p *Policy) Decide(attempt int, err error) Decision {
	if err == nil || !domain.IsRetryable(err) {
		return Decision{}
	}
	if attempt+1 >= p.maxAttempts {
		return Decision{}
	}

	if domain.IsRateLimited(err) {
		p.rateLimitRetries.Add(1)
	} else {
		p.transientRetries.Add(1)
	}

	return Decision{Retry: true, Delay: p.jittered(p.BaseDelay(attempt))}
}

// BaseDelay returns the pre-jitter delay for an attempt: min(base*2^attempt,
// maxDelay). Exposed for tests of the backoff shape.
func (p *Policy) BaseDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Shift overflow guard: past 62 doublings everything is capped anyway.
	if attempt > 62 {
		return p.maxDelay
	}
	d := p.base << uint(attempt)
	if d <= 0 || d > p.maxDelay {
		return p.maxDelay
	}
	return d
}

// jittered perturbs d by ±jitter uniformly to desynchronize concurrent
// retries.
func (p *Policy) jittered(d time.Duration) time.Duration {
	if p.jitter <= 0 {
		return d
	}
	factor := 1 + p.jitter*(2*p.randFloat()-1)
	return time.Duration(float64(d) * factor)
}

// Stats reports how many retries were scheduled, split by cause.
func (p *Policy) Stats() (rateLimit, transient uint64) {
	return p.rateLimitRetries.Load(), p.transientRetries.Load()
}
