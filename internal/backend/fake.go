package backend

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// FakeBackend is a scripted in-process backend for tests and local
// development. Without a script it echoes a canned completion for every
// prompt.
type FakeBackend struct {
	id      string
	latency time.Duration
	script  func(call int, req *Request) (*Response, error)
	calls   atomic.Int64
}

// FakeOption configures a FakeBackend.
type FakeOption func(*FakeBackend)

// WithLatency makes each call sleep for d (honoring ctx) before responding.
func WithLatency(d time.Duration) FakeOption {
	return func(b *FakeBackend) { b.latency = d }
}

// WithScript supplies the per-call behavior. call is 1-based.
func WithScript(script func(call int, req *Request) (*Response, error)) FakeOption {
	return func(b *FakeBackend) { b.script = script }
}

// NewFake creates a fake backend with the given id.
func NewFake(id string, opts ...FakeOption) *FakeBackend {
	b := &FakeBackend{id: id}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID implements Backend.
func (b *FakeBackend) ID() string { return b.id }

// Calls returns how many times Generate has been invoked.
func (b *FakeBackend) Calls() int {
	return int(b.calls.Load())
}

// Generate implements Backend.
func (b *FakeBackend) Generate(ctx context.Context, req *Request) (*Response, error) {
	call := int(b.calls.Add(1))

	if b.latency > 0 {
		select {
		case <-time.After(b.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if b.script != nil {
		return b.script(call, req)
	}
	return &Response{
		Text:  fmt.Sprintf("generated %s for item %s", req.Field, req.ItemID),
		Model: b.id,
	}, nil
}
