package classifier

import (
	"testing"

	"github.com/storyloom/orchestrator/internal/domain"
	"github.com/storyloom/orchestrator/internal/tokens"
)

func newTestClassifier() *Classifier {
	return New(tokens.NewEstimator())
}

func TestClassifyTaskType(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		name string
		item domain.WorkItem
		want domain.TaskType
	}{
		{
			name: "dialogue field",
			item: domain.WorkItem{ID: "1", InputText: "Write the scene opener", Fields: []domain.FieldType{domain.FieldDialogue}},
			want: domain.TaskDialogue,
		},
		{
			name: "dialogue keyword",
			item: domain.WorkItem{ID: "2", InputText: "Write a dialogue where the detective confronts the suspect"},
			want: domain.TaskDialogue,
		},
		{
			name: "character keyword",
			item: domain.WorkItem{ID: "3", InputText: "Develop a backstory for the protagonist of the mystery"},
			want: domain.TaskCharacter,
		},
		{
			name: "visual field",
			item: domain.WorkItem{ID: "4", InputText: "A windswept lighthouse at dusk", Fields: []domain.FieldType{domain.FieldAltText}},
			want: domain.TaskVisual,
		},
		{
			name: "visual keyword",
			item: domain.WorkItem{ID: "5", InputText: "Describe the image shown on the cover page of the report here"},
			want: domain.TaskVisual,
		},
		{
			name: "narration field",
			item: domain.WorkItem{ID: "6", InputText: "Walk the audience through the quarterly figures", Fields: []domain.FieldType{domain.FieldNotes}},
			want: domain.TaskNarration,
		},
		{
			name: "summary keyword",
			item: domain.WorkItem{ID: "7", InputText: "Summarize the meeting transcript into action points for the team"},
			want: domain.TaskSummary,
		},
		{
			name: "no signal falls back to general",
			item: domain.WorkItem{ID: "8", InputText: "Please expand on the following section with more supporting detail"},
			want: domain.TaskGeneral,
		},
		{
			name: "dialogue outranks summary",
			item: domain.WorkItem{ID: "9", InputText: "Summarize the plot, then write a dialogue between the two leads"},
			want: domain.TaskDialogue,
		},
		{
			name: "character outranks visual keyword",
			item: domain.WorkItem{ID: "10", InputText: "Write alt text describing the protagonist in the illustration"},
			want: domain.TaskCharacter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.item)
			if got.Type != tt.want {
				t.Errorf("Classify(%q).Type = %q, want %q", tt.item.InputText, got.Type, tt.want)
			}
		})
	}
}

func TestClassifyComplexity(t *testing.T) {
	c := newTestClassifier()

	longText := ""
	for i := 0; i < 210; i++ {
		longText += "word "
	}

	tests := []struct {
		name string
		item domain.WorkItem
		want domain.Complexity
	}{
		{
			name: "dialogue is always advanced",
			item: domain.WorkItem{ID: "1", InputText: "Short dialogue please", Fields: []domain.FieldType{domain.FieldDialogue}},
			want: domain.ComplexityAdvanced,
		},
		{
			name: "analysis keyword is advanced",
			item: domain.WorkItem{ID: "2", InputText: "Analyze the pacing of the second act and suggest concrete fixes"},
			want: domain.ComplexityAdvanced,
		},
		{
			name: "short caption is simple",
			item: domain.WorkItem{ID: "3", InputText: "Write a short caption for the team photo from the offsite event"},
			want: domain.ComplexitySimple,
		},
		{
			name: "very long input is advanced",
			item: domain.WorkItem{ID: "4", InputText: longText},
			want: domain.ComplexityAdvanced,
		},
		{
			name: "very short input is simple",
			item: domain.WorkItem{ID: "5", InputText: "Name this chapter"},
			want: domain.ComplexitySimple,
		},
		{
			name: "no signal is moderate",
			item: domain.WorkItem{ID: "6", InputText: "Rewrite the following paragraph so it flows better for a general audience"},
			want: domain.ComplexityModerate,
		},
		{
			name: "creative fidelity outranks short input",
			item: domain.WorkItem{ID: "7", InputText: "Quick persona sketch"},
			want: domain.ComplexityAdvanced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.item)
			if got.Complexity != tt.want {
				t.Errorf("Classify(%q).Complexity = %q, want %q", tt.item.InputText, got.Complexity, tt.want)
			}
		})
	}
}

func TestClassifyUrgencyAndMultiParty(t *testing.T) {
	c := newTestClassifier()

	urgent := c.Classify(domain.WorkItem{
		ID:        "u1",
		InputText: "Summarize the incident report for the stakeholder update",
		Context:   map[string]any{"urgency": "high"},
	})
	if urgent.Urgency != domain.UrgencyHigh {
		t.Errorf("urgency = %q, want high", urgent.Urgency)
	}

	normal := c.Classify(domain.WorkItem{ID: "u2", InputText: "Summarize the incident report for the stakeholder update"})
	if normal.Urgency != domain.UrgencyNormal {
		t.Errorf("urgency = %q, want normal", normal.Urgency)
	}

	multi := c.Classify(domain.WorkItem{ID: "m1", InputText: "Write a conversation between the captain and the engineer"})
	if !multi.MultiParty {
		t.Error("expected multi-party detection for conversation between two speakers")
	}
	if multi.Type != domain.TaskDialogue {
		t.Errorf("type = %q, want dialogue", multi.Type)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := newTestClassifier()
	item := domain.WorkItem{
		ID:        "d1",
		InputText: "Develop the character arc for the protagonist across three chapters",
		Fields:    []domain.FieldType{domain.FieldScript},
	}

	first := c.Classify(item)
	for i := 0; i < 10; i++ {
		if got := c.Classify(item); got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", got, first)
		}
	}
	if first.EstimatedTokens <= 0 {
		t.Errorf("EstimatedTokens = %d, want > 0", first.EstimatedTokens)
	}
}
