// Package storage defines the persistence contract for job lifecycle
// records. The core works without a store; when one is configured, job
// summaries and per-item outcomes survive restarts.
package storage

import (
	"context"
	"time"
)

// JobRecord is the persisted summary of one batch job.
type JobRecord struct {
	ID        string
	SessionID string
	Status    string
	Total     int
	Completed int
	Failed    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutcomeRecord is the persisted terminal result of one work item.
type OutcomeRecord struct {
	JobID     string
	ItemID    string
	BackendID string
	OK        bool
	ErrorKind string
	Message   string
	Attempts  int
	CacheHit  bool
	Response  string
	CreatedAt time.Time
}

// JobStore persists job summaries and item outcomes.
type JobStore interface {
	CreateJob(ctx context.Context, job *JobRecord) error
	UpdateJob(ctx context.Context, id, status string, completed, failed int) error
	GetJob(ctx context.Context, id string) (*JobRecord, error)
	RecordOutcome(ctx context.Context, outcome *OutcomeRecord) error
	ListOutcomes(ctx context.Context, jobID string) ([]OutcomeRecord, error)
	Close() error
}
