// Package classifier derives a routing-relevant classification from a work
// item's text and declared fields. Classification is a pure function of its
// input: no I/O, no hidden state, same answer on every call.
package classifier

import (
	"strings"

	"github.com/storyloom/orchestrator/internal/domain"
	"github.com/storyloom/orchestrator/internal/tokens"
)

// typeRule maps a named predicate to a task type. Rules are evaluated in
// order; the first match wins, which keeps the priority order auditable.
type typeRule struct {
	name  string
	match func(in input) bool
	typ   domain.TaskType
}

// complexityRule works the same way for the complexity tier.
type complexityRule struct {
	name       string
	match      func(in input) bool
	complexity domain.Complexity
}

type input struct {
	lower  string
	words  int
	item   domain.WorkItem
	visual bool
}

// Classifier tags work items with type, complexity, urgency, and an
// estimated token count.
type Classifier struct {
	estimator *tokens.Estimator
	typeRules []typeRule
	cplxRules []complexityRule
}

// New creates a classifier backed by the given token estimator.
func New(estimator *tokens.Estimator) *Classifier {
	return &Classifier{
		estimator: estimator,
		typeRules: buildTypeRules(),
		cplxRules: buildComplexityRules(),
	}
}

// Classify computes the classification for one work item. It never fails;
// unclassifiable input lands in the general/moderate bucket.
func (c *Classifier) Classify(item domain.WorkItem) domain.TaskClassification {
	in := input{
		lower:  strings.ToLower(item.InputText),
		words:  len(strings.Fields(item.InputText)),
		item:   item,
		visual: item.RequiresVisual(),
	}

	cls := domain.TaskClassification{
		Type:            domain.TaskGeneral,
		Complexity:      domain.ComplexityModerate,
		Urgency:         urgencyOf(in),
		EstimatedTokens: c.estimator.Estimate(item.InputText),
		RequiresVisual:  in.visual,
		MultiParty:      multiParty(in),
	}

	for _, r := range c.typeRules {
		if r.match(in) {
			cls.Type = r.typ
			break
		}
	}
	for _, r := range c.cplxRules {
		if r.match(in) {
			cls.Complexity = r.complexity
			break
		}
	}

	return cls
}

// buildTypeRules returns the type rules in priority order:
// dialogue/character signals first, then visual fields, then narration and
// summary signals.
func buildTypeRules() []typeRule {
	return []typeRule{
		{
			name: "dialogue",
			typ:  domain.TaskDialogue,
			match: func(in input) bool {
				return hasField(in.item, domain.FieldDialogue) ||
					containsAny(in.lower, "dialogue", "conversation between", "script for a scene")
			},
		},
		{
			name: "character",
			typ:  domain.TaskCharacter,
			match: func(in input) bool {
				return containsAny(in.lower, "character", "protagonist", "persona", "backstory")
			},
		},
		{
			name: "visual",
			typ:  domain.TaskVisual,
			match: func(in input) bool {
				return in.visual || containsAny(in.lower, "describe the image", "alt text", "illustration")
			},
		},
		{
			name: "narration",
			typ:  domain.TaskNarration,
			match: func(in input) bool {
				return hasField(in.item, domain.FieldNotes) ||
					containsAny(in.lower, "speaker notes", "narration", "voiceover")
			},
		},
		{
			name: "summary",
			typ:  domain.TaskSummary,
			match: func(in input) bool {
				return containsAny(in.lower, "summarize", "summary", "tl;dr", "condense")
			},
		},
	}
}

// buildComplexityRules returns the complexity rules in priority order:
// dialogue/character signals outrank generic complexity signals, which
// outrank length-only thresholds.
func buildComplexityRules() []complexityRule {
	return []complexityRule{
		{
			name:       "creative-fidelity",
			complexity: domain.ComplexityAdvanced,
			match: func(in input) bool {
				return hasField(in.item, domain.FieldDialogue) ||
					containsAny(in.lower, "dialogue", "character", "backstory", "persona")
			},
		},
		{
			name:       "generic-advanced",
			complexity: domain.ComplexityAdvanced,
			match: func(in input) bool {
				return containsAny(in.lower, "analyze", "multi-part", "in depth", "comprehensive", "weave together")
			},
		},
		{
			name:       "generic-simple",
			complexity: domain.ComplexitySimple,
			match: func(in input) bool {
				return containsAny(in.lower, "list ", "one sentence", "short caption", "title for")
			},
		},
		{
			name:       "long-input",
			complexity: domain.ComplexityAdvanced,
			match: func(in input) bool {
				return in.words > 200
			},
		},
		{
			name:       "short-input",
			complexity: domain.ComplexitySimple,
			match: func(in input) bool {
				return in.words > 0 && in.words < 10
			},
		},
	}
}

func urgencyOf(in input) domain.Urgency {
	if v, ok := in.item.Context["urgency"].(string); ok && v == string(domain.UrgencyHigh) {
		return domain.UrgencyHigh
	}
	return domain.UrgencyNormal
}

// multiParty detects tasks that coordinate several speakers or characters,
// which routes like advanced complexity.
func multiParty(in input) bool {
	return containsAny(in.lower, "conversation between", "multiple characters", "both speakers", "panel discussion")
}

func hasField(item domain.WorkItem, f domain.FieldType) bool {
	for _, df := range item.Fields {
		if df == f {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
