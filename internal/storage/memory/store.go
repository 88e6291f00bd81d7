// Package memory is an in-memory storage.JobStore for tests and
// storage-less deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/storyloom/orchestrator/internal/storage"
)

// Store keeps job records in process memory.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*storage.JobRecord
	outcomes map[string][]storage.OutcomeRecord
}

var _ storage.JobStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*storage.JobRecord),
		outcomes: make(map[string][]storage.OutcomeRecord),
	}
}

func (s *Store) CreateJob(_ context.Context, job *storage.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *Store) UpdateJob(_ context.Context, id, status string, completed, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = status
	job.Completed = completed
	job.Failed = failed
	job.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*storage.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	copied := *job
	return &copied, nil
}

func (s *Store) RecordOutcome(_ context.Context, o *storage.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o.JobID] = append(s.outcomes[o.JobID], *o)
	return nil
}

func (s *Store) ListOutcomes(_ context.Context, jobID string) ([]storage.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.OutcomeRecord(nil), s.outcomes[jobID]...), nil
}

func (s *Store) Close() error {
	return nil
}
