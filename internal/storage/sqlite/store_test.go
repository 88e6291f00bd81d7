package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/storyloom/orchestrator/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	job := &storage.JobRecord{
		ID:        "job-1",
		SessionID: "sess-1",
		Status:    "pending",
		Total:     10,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := s.UpdateJob(ctx, "job-1", "completed", 8, 2); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != "completed" || got.Completed != 8 || got.Failed != 2 || got.Total != 10 {
		t.Errorf("job = %+v", got)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("session id = %s", got.SessionID)
	}

	if err := s.UpdateJob(ctx, "missing", "running", 0, 0); err == nil {
		t.Error("UpdateJob on missing job should fail")
	}
	if _, err := s.GetJob(ctx, "missing"); err == nil {
		t.Error("GetJob on missing job should fail")
	}
}

func TestOutcomeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.CreateJob(ctx, &storage.JobRecord{
		ID: "job-1", Status: "running", Total: 2, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	records := []storage.OutcomeRecord{
		{JobID: "job-1", ItemID: "item-1", BackendID: "b", OK: true, Response: "text", Attempts: 1, CreatedAt: now},
		{JobID: "job-1", ItemID: "item-2", ErrorKind: "backend_call", Message: "boom", Attempts: 3, CreatedAt: now.Add(time.Second)},
	}
	for i := range records {
		if err := s.RecordOutcome(ctx, &records[i]); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	got, err := s.ListOutcomes(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(got))
	}
	if !got[0].OK || got[0].Response != "text" || got[0].BackendID != "b" {
		t.Errorf("outcome 0 = %+v", got[0])
	}
	if got[1].OK || got[1].ErrorKind != "backend_call" || got[1].Attempts != 3 {
		t.Errorf("outcome 1 = %+v", got[1])
	}

	// Re-recording the same item replaces the row.
	records[1].OK = true
	records[1].ErrorKind = ""
	if err := s.RecordOutcome(ctx, &records[1]); err != nil {
		t.Fatalf("RecordOutcome replace: %v", err)
	}
	got, err = s.ListOutcomes(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("outcomes after replace = %d, want 2", len(got))
	}
}
