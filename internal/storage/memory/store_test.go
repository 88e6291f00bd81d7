package memory

import (
	"context"
	"testing"
	"time"

	"github.com/storyloom/orchestrator/internal/storage"
)

func TestJobLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	job := &storage.JobRecord{
		ID:        "job-1",
		SessionID: "sess-1",
		Status:    "pending",
		Total:     10,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, job); err == nil {
		t.Error("duplicate CreateJob should fail")
	}

	if err := s.UpdateJob(ctx, "job-1", "running", 4, 1); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != "running" || got.Completed != 4 || got.Failed != 1 {
		t.Errorf("job = %+v", got)
	}

	// The returned record is a copy.
	got.Status = "mutated"
	again, _ := s.GetJob(ctx, "job-1")
	if again.Status != "running" {
		t.Error("GetJob must return a copy")
	}

	if err := s.UpdateJob(ctx, "missing", "running", 0, 0); err == nil {
		t.Error("UpdateJob on missing job should fail")
	}
	if _, err := s.GetJob(ctx, "missing"); err == nil {
		t.Error("GetJob on missing job should fail")
	}
}

func TestOutcomes(t *testing.T) {
	s := New()
	ctx := context.Background()

	outcomes := []storage.OutcomeRecord{
		{JobID: "job-1", ItemID: "item-1", BackendID: "b", OK: true, Response: "r1", Attempts: 1, CreatedAt: time.Now()},
		{JobID: "job-1", ItemID: "item-2", ErrorKind: "backend_call", Message: "boom", Attempts: 3, CreatedAt: time.Now()},
		{JobID: "job-2", ItemID: "item-1", OK: true, CacheHit: true, CreatedAt: time.Now()},
	}
	for i := range outcomes {
		if err := s.RecordOutcome(ctx, &outcomes[i]); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	got, err := s.ListOutcomes(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("outcomes for job-1 = %d, want 2", len(got))
	}
	if !got[0].OK || got[0].Response != "r1" {
		t.Errorf("outcome 0 = %+v", got[0])
	}
	if got[1].ErrorKind != "backend_call" || got[1].Attempts != 3 {
		t.Errorf("outcome 1 = %+v", got[1])
	}

	other, err := s.ListOutcomes(ctx, "job-2")
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(other) != 1 || !other[0].CacheHit {
		t.Errorf("outcomes for job-2 = %+v", other)
	}

	empty, err := s.ListOutcomes(ctx, "job-3")
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("outcomes for unknown job = %d, want 0", len(empty))
	}
}
