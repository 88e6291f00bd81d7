// Package domain defines the core types shared across the orchestration
// pipeline: work items, classifications, backend descriptors, routing
// decisions, and per-item outcomes.
package domain

import "time"

// FieldType identifies one requested output field of a work item.
type FieldType string

const (
	FieldScript    FieldType = "script"
	FieldNotes     FieldType = "notes"
	FieldDialogue  FieldType = "dialogue"
	FieldAltText   FieldType = "alt_text"
	FieldImageDesc FieldType = "image_description"
)

// VisualFields are the output fields that require a visually capable backend.
var VisualFields = map[FieldType]bool{
	FieldAltText:   true,
	FieldImageDesc: true,
}

// WorkItem is one unit of generation work. It is immutable once submitted;
// Context is an opaque payload passed through untouched.
type WorkItem struct {
	ID        string         `json:"id"`
	InputText string         `json:"input_text"`
	Fields    []FieldType    `json:"fields"`
	Context   map[string]any `json:"context,omitempty"`
}

// PrimaryField returns the first declared output field, or FieldScript when
// the item declares none. The cache and backend request are keyed by it.
func (w WorkItem) PrimaryField() FieldType {
	if len(w.Fields) > 0 {
		return w.Fields[0]
	}
	return FieldScript
}

// RequiresVisual reports whether any declared field needs a backend tagged
// with the "visual" capability.
func (w WorkItem) RequiresVisual() bool {
	for _, f := range w.Fields {
		if VisualFields[f] {
			return true
		}
	}
	return false
}

// TaskType is the routing-relevant category of a work item.
type TaskType string

const (
	TaskDialogue  TaskType = "dialogue_writing"
	TaskCharacter TaskType = "character_development"
	TaskVisual    TaskType = "visual_description"
	TaskNarration TaskType = "narration"
	TaskSummary   TaskType = "summary"
	TaskGeneral   TaskType = "general"
)

// Complexity is the estimated effort tier of a task.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityAdvanced Complexity = "advanced"
)

// Urgency marks tasks that should trade capability for latency.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// TaskClassification is derived once per work item at submission time.
type TaskClassification struct {
	Type            TaskType   `json:"type"`
	Complexity      Complexity `json:"complexity"`
	Urgency         Urgency    `json:"urgency"`
	EstimatedTokens int        `json:"estimated_tokens"`
	RequiresVisual  bool       `json:"requires_visual"`
	MultiParty      bool       `json:"multi_party"`
}

// BackendDescriptor declares the cost/latency/capability profile of one
// model-serving backend. Descriptors are read-only during operation; hot
// reload replaces the whole registry snapshot.
type BackendDescriptor struct {
	ID              string   `json:"id"`
	CostPerKTokens  float64  `json:"cost_per_k_tokens"`
	MinLatency      Duration `json:"min_latency"`
	MaxLatency      Duration `json:"max_latency"`
	CapabilityTags  []string `json:"capability_tags"`
	CapabilityScore int      `json:"capability_score"`
	MaxConcurrency  int      `json:"max_concurrency"`
}

// HasTag reports whether the descriptor carries the given capability tag.
func (b BackendDescriptor) HasTag(tag string) bool {
	for _, t := range b.CapabilityTags {
		if t == tag {
			return true
		}
	}
	return false
}

// TypicalLatency returns the midpoint of the declared latency range.
func (b BackendDescriptor) TypicalLatency() time.Duration {
	return (time.Duration(b.MinLatency) + time.Duration(b.MaxLatency)) / 2
}

// Duration is a time.Duration that unmarshals from strings like "800ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// RoutingDecision is the router's choice for one classified task. It is not
// persisted beyond the call it governs.
type RoutingDecision struct {
	Primary          BackendDescriptor  `json:"primary"`
	Fallback         *BackendDescriptor `json:"fallback,omitempty"`
	Reasoning        string             `json:"reasoning"`
	EstimatedCost    float64            `json:"estimated_cost"`
	EstimatedLatency time.Duration      `json:"estimated_latency"`
}

// Outcome is the terminal result of one work item.
type Outcome struct {
	ItemID    string    `json:"item_id"`
	OK        bool      `json:"ok"`
	Response  string    `json:"response,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	BackendID string    `json:"backend_id,omitempty"`
	Attempts  int       `json:"attempts"`
	CacheHit  bool      `json:"cache_hit"`
}

// ProgressEvent is pushed to the caller after each completed batch.
type ProgressEvent struct {
	JobID             string `json:"job_id"`
	Batch             int    `json:"batch"`
	Completed         int    `json:"completed"`
	Failed            int    `json:"failed"`
	Total             int    `json:"total"`
	LastBatchFailures int    `json:"last_batch_failures"`
}

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}
