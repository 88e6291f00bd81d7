// Package router selects a primary and fallback backend for a classified
// task. Policy rules are evaluated in priority order; the first match wins.
package router

import (
	"fmt"

	"github.com/storyloom/orchestrator/internal/domain"
	"github.com/storyloom/orchestrator/internal/registry"
)

// Router turns a task classification into a routing decision against the
// current registry snapshot.
type Router struct {
	registry *registry.Registry
}

// New creates a router over the given registry.
func New(reg *registry.Registry) *Router {
	return &Router{registry: reg}
}

// Registry returns the registry this router reads from.
func (r *Router) Registry() *registry.Registry {
	return r.registry
}

// Select picks backends for the classification. Every decision carries a
// human-readable reasoning string and a cost estimate derived from the
// primary backend's declared rate.
//
// Policy, first match wins:
//  1. Visual tasks pin to a "visual"-tagged backend; no such backend is a
//     configuration error, never a silent fallback to a text-only backend.
//  2. Dialogue/character tasks route to the highest-capability backend.
//  3. Advanced or multi-party tasks route to the highest-capability backend.
//  4. Simple or urgent tasks route to the lowest-latency backend.
//  5. Everything else routes to a balanced mid-tier backend.
func (r *Router) Select(cls domain.TaskClassification) (domain.RoutingDecision, error) {
	snap := r.registry.Snapshot()

	if cls.RequiresVisual || cls.Type == domain.TaskVisual {
		primary, ok := snap.VisualCapable()
		if !ok {
			return domain.RoutingDecision{}, &domain.ConfigurationError{
				Reason: "visual task submitted but no backend is tagged \"visual\"",
			}
		}
		return r.decide(cls, primary, fallbackAfter(snap, primary),
			fmt.Sprintf("visual output requested; pinned to %s, the highest-capability backend tagged \"visual\"", primary.ID)), nil
	}

	if cls.Type == domain.TaskDialogue || cls.Type == domain.TaskCharacter {
		primary, ok := snap.HighestCapability(0)
		if !ok {
			return domain.RoutingDecision{}, &domain.ConfigurationError{Reason: "no backends registered"}
		}
		second, _ := snap.HighestCapability(1)
		return r.decide(cls, primary, optional(second, second.ID != "" && second.ID != primary.ID),
			fmt.Sprintf("%s task needs high creative fidelity; routed to %s regardless of cost", cls.Type, primary.ID)), nil
	}

	if cls.Complexity == domain.ComplexityAdvanced || cls.MultiParty {
		primary, ok := snap.HighestCapability(0)
		if !ok {
			return domain.RoutingDecision{}, &domain.ConfigurationError{Reason: "no backends registered"}
		}
		second, _ := snap.HighestCapability(1)
		why := "advanced complexity"
		if cls.MultiParty {
			why = "multi-party coordination"
		}
		return r.decide(cls, primary, optional(second, second.ID != "" && second.ID != primary.ID),
			fmt.Sprintf("%s; routed to highest-capability backend %s", why, primary.ID)), nil
	}

	if cls.Complexity == domain.ComplexitySimple || cls.Urgency == domain.UrgencyHigh {
		primary, ok := snap.LowestLatency()
		if !ok {
			return domain.RoutingDecision{}, &domain.ConfigurationError{Reason: "no backends registered"}
		}
		mid, _ := snap.MidTier()
		why := "simple task"
		if cls.Urgency == domain.UrgencyHigh {
			why = "high urgency"
		}
		return r.decide(cls, primary, optional(mid, mid.ID != "" && mid.ID != primary.ID),
			fmt.Sprintf("%s; trading capability for speed on %s", why, primary.ID)), nil
	}

	primary, ok := snap.MidTier()
	if !ok {
		return domain.RoutingDecision{}, &domain.ConfigurationError{Reason: "no backends registered"}
	}
	fast, _ := snap.LowestLatency()
	return r.decide(cls, primary, optional(fast, fast.ID != "" && fast.ID != primary.ID),
		fmt.Sprintf("%s task at %s complexity; balanced mid-tier backend %s", cls.Type, cls.Complexity, primary.ID)), nil
}

func (r *Router) decide(cls domain.TaskClassification, primary domain.BackendDescriptor, fallback *domain.BackendDescriptor, reasoning string) domain.RoutingDecision {
	return domain.RoutingDecision{
		Primary:          primary,
		Fallback:         fallback,
		Reasoning:        reasoning,
		EstimatedCost:    primary.CostPerKTokens * float64(cls.EstimatedTokens) / 1000,
		EstimatedLatency: primary.TypicalLatency(),
	}
}

// fallbackAfter returns the best non-primary backend, preferring capability.
func fallbackAfter(snap *registry.Snapshot, primary domain.BackendDescriptor) *domain.BackendDescriptor {
	for i := 0; ; i++ {
		b, ok := snap.HighestCapability(i)
		if !ok {
			return nil
		}
		if b.ID != primary.ID {
			return &b
		}
	}
}

func optional(b domain.BackendDescriptor, ok bool) *domain.BackendDescriptor {
	if !ok {
		return nil
	}
	return &b
}
