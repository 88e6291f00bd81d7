// Package registry holds the catalog of available model backends. The
// catalog is replaced atomically on hot reload; readers always see a
// consistent snapshot.
package registry

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/storyloom/orchestrator/internal/domain"
)

// Registry is the backend catalog. Zero value is unusable; create with New.
type Registry struct {
	snapshot atomic.Pointer[Snapshot]
}

// Snapshot is an immutable view of the registered backends with the sort
// orders the router needs precomputed.
type Snapshot struct {
	byID         map[string]domain.BackendDescriptor
	byCapability []domain.BackendDescriptor // descending capability score
	byLatency    []domain.BackendDescriptor // ascending typical latency
}

// New creates a registry from the given descriptors.
func New(backends []domain.BackendDescriptor) (*Registry, error) {
	snap, err := buildSnapshot(backends)
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.snapshot.Store(snap)
	return r, nil
}

// Replace swaps in a new set of descriptors atomically. In-flight routing
// decisions keep using the snapshot they already hold.
func (r *Registry) Replace(backends []domain.BackendDescriptor) error {
	snap, err := buildSnapshot(backends)
	if err != nil {
		return err
	}
	r.snapshot.Store(snap)
	return nil
}

// Snapshot returns the current catalog view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

func buildSnapshot(backends []domain.BackendDescriptor) (*Snapshot, error) {
	if len(backends) == 0 {
		return nil, &domain.ConfigurationError{Reason: "no backends registered"}
	}

	byID := make(map[string]domain.BackendDescriptor, len(backends))
	for _, b := range backends {
		if err := validate(b); err != nil {
			return nil, err
		}
		if _, dup := byID[b.ID]; dup {
			return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("duplicate backend id %q", b.ID)}
		}
		byID[b.ID] = b
	}

	byCapability := append([]domain.BackendDescriptor(nil), backends...)
	sort.SliceStable(byCapability, func(i, j int) bool {
		return byCapability[i].CapabilityScore > byCapability[j].CapabilityScore
	})

	byLatency := append([]domain.BackendDescriptor(nil), backends...)
	sort.SliceStable(byLatency, func(i, j int) bool {
		return byLatency[i].TypicalLatency() < byLatency[j].TypicalLatency()
	})

	return &Snapshot{byID: byID, byCapability: byCapability, byLatency: byLatency}, nil
}

func validate(b domain.BackendDescriptor) error {
	switch {
	case b.ID == "":
		return &domain.ConfigurationError{Reason: "backend with empty id"}
	case b.CostPerKTokens < 0:
		return &domain.ConfigurationError{Reason: fmt.Sprintf("backend %s: negative cost", b.ID)}
	case b.MaxLatency < b.MinLatency:
		return &domain.ConfigurationError{Reason: fmt.Sprintf("backend %s: max latency below min", b.ID)}
	}
	return nil
}

// Get looks up a backend by id.
func (s *Snapshot) Get(id string) (domain.BackendDescriptor, bool) {
	b, ok := s.byID[id]
	return b, ok
}

// All returns the descriptors in capability order (highest first).
func (s *Snapshot) All() []domain.BackendDescriptor {
	return s.byCapability
}

// Len returns the number of registered backends.
func (s *Snapshot) Len() int {
	return len(s.byID)
}

// HighestCapability returns the n-th backend by descending capability score
// (0 = best). ok is false when fewer than n+1 backends exist.
func (s *Snapshot) HighestCapability(n int) (domain.BackendDescriptor, bool) {
	if n < 0 || n >= len(s.byCapability) {
		return domain.BackendDescriptor{}, false
	}
	return s.byCapability[n], true
}

// LowestLatency returns the backend with the smallest typical latency.
func (s *Snapshot) LowestLatency() (domain.BackendDescriptor, bool) {
	if len(s.byLatency) == 0 {
		return domain.BackendDescriptor{}, false
	}
	return s.byLatency[0], true
}

// MidTier returns the middle backend by capability rank, the balanced
// default for ordinary tasks. With fewer than three backends it degrades to
// whatever is closest to the middle.
func (s *Snapshot) MidTier() (domain.BackendDescriptor, bool) {
	if len(s.byCapability) == 0 {
		return domain.BackendDescriptor{}, false
	}
	return s.byCapability[len(s.byCapability)/2], true
}

// VisualCapable returns the highest-capability backend tagged "visual".
func (s *Snapshot) VisualCapable() (domain.BackendDescriptor, bool) {
	for _, b := range s.byCapability {
		if b.HasTag("visual") {
			return b, true
		}
	}
	return domain.BackendDescriptor{}, false
}
