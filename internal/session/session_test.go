package session

import (
	"sync"
	"testing"

	"github.com/storyloom/orchestrator/internal/domain"
)

func TestCreateValidation(t *testing.T) {
	m := NewManager()

	if _, err := m.Create("owner", 0); err == nil {
		t.Error("Create with zero budget should fail")
	}
	if _, err := m.Create("owner", -1); err == nil {
		t.Error("Create with negative budget should fail")
	}

	s, err := m.Create("owner", 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" {
		t.Error("session id must be assigned")
	}
}

func TestBudgetCountsAllCalls(t *testing.T) {
	m := NewManager()
	s, err := m.Create("owner", 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Failed calls consume budget the same as successful ones.
	outcomes := []struct {
		backendID string
		cost      float64
	}{
		{"backend-a", 0.5},
		{"backend-a", 0},
		{"backend-b", 1.5},
		{"cache", 0},
		{"backend-b", 0},
	}
	for i, o := range outcomes {
		if err := m.Authorize(s.ID); err != nil {
			t.Fatalf("Authorize call %d: %v", i+1, err)
		}
		if err := m.RecordCall(s.ID, o.backendID, o.cost); err != nil {
			t.Fatalf("RecordCall call %d: %v", i+1, err)
		}
	}

	// Sixth call exceeds the budget.
	err = m.Authorize(s.ID)
	if err == nil {
		t.Fatal("sixth Authorize should fail")
	}
	if !domain.IsSessionExhausted(err) {
		t.Errorf("error = %v, want SessionExhaustedError", err)
	}

	snap, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.CallCount != 5 {
		t.Errorf("CallCount = %d, want 5", snap.CallCount)
	}
	if snap.Active {
		t.Error("session must be inactive at budget")
	}
	if snap.CostAccumulated != 2.0 {
		t.Errorf("CostAccumulated = %v, want 2.0", snap.CostAccumulated)
	}
	if snap.PerBackendUsage["backend-a"] != 2 || snap.PerBackendUsage["backend-b"] != 2 || snap.PerBackendUsage["cache"] != 1 {
		t.Errorf("PerBackendUsage = %v", snap.PerBackendUsage)
	}
}

func TestAuthorizeReservesAgainstConcurrentWorkers(t *testing.T) {
	m := NewManager()
	s, err := m.Create("owner", 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	granted := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Authorize(s.ID); err == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	if count != 3 {
		t.Errorf("granted %d reservations, want exactly 3", count)
	}
}

func TestReleaseReturnsReservedSlot(t *testing.T) {
	m := NewManager()
	s, err := m.Create("owner", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Authorize(s.ID); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if err := m.Authorize(s.ID); err == nil {
		t.Fatal("second Authorize with budget 1 should fail")
	}

	m.Release(s.ID)
	if err := m.Authorize(s.ID); err != nil {
		t.Errorf("Authorize after Release: %v", err)
	}
}

func TestUnknownSession(t *testing.T) {
	m := NewManager()

	if err := m.Authorize("nope"); err == nil {
		t.Error("Authorize on unknown session should fail")
	}
	if err := m.RecordCall("nope", "b", 0); err == nil {
		t.Error("RecordCall on unknown session should fail")
	}
	if _, err := m.Get("nope"); err == nil {
		t.Error("Get on unknown session should fail")
	}
}

func TestExhaustedSessionDoesNotRenew(t *testing.T) {
	m := NewManager()
	s, err := m.Create("owner", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Authorize(s.ID); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if err := m.RecordCall(s.ID, "backend-a", 0.1); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := m.Authorize(s.ID); err == nil {
			t.Fatal("exhausted session must stay exhausted")
		}
	}
}
