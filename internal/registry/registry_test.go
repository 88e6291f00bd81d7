package registry

import (
	"testing"
	"time"

	"github.com/storyloom/orchestrator/internal/domain"
)

func testBackends() []domain.BackendDescriptor {
	return []domain.BackendDescriptor{
		{
			ID:              "creative-large",
			CostPerKTokens:  12.0,
			MinLatency:      domain.Duration(900 * time.Millisecond),
			MaxLatency:      domain.Duration(4 * time.Second),
			CapabilityTags:  []string{"dialogue", "visual"},
			CapabilityScore: 95,
		},
		{
			ID:              "general-medium",
			CostPerKTokens:  3.0,
			MinLatency:      domain.Duration(400 * time.Millisecond),
			MaxLatency:      domain.Duration(1500 * time.Millisecond),
			CapabilityTags:  []string{"dialogue"},
			CapabilityScore: 70,
		},
		{
			ID:              "fast-small",
			CostPerKTokens:  0.5,
			MinLatency:      domain.Duration(80 * time.Millisecond),
			MaxLatency:      domain.Duration(400 * time.Millisecond),
			CapabilityTags:  []string{"summary"},
			CapabilityScore: 40,
		},
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name     string
		backends []domain.BackendDescriptor
	}{
		{name: "empty catalog", backends: nil},
		{
			name:     "empty id",
			backends: []domain.BackendDescriptor{{ID: ""}},
		},
		{
			name:     "negative cost",
			backends: []domain.BackendDescriptor{{ID: "b", CostPerKTokens: -1}},
		},
		{
			name: "max latency below min",
			backends: []domain.BackendDescriptor{{
				ID:         "b",
				MinLatency: domain.Duration(2 * time.Second),
				MaxLatency: domain.Duration(1 * time.Second),
			}},
		},
		{
			name: "duplicate id",
			backends: []domain.BackendDescriptor{
				{ID: "b"},
				{ID: "b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.backends)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !domain.IsConfiguration(err) {
				t.Errorf("error = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestSnapshotAccessors(t *testing.T) {
	reg, err := New(testBackends())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snap := reg.Snapshot()

	if snap.Len() != 3 {
		t.Errorf("Len = %d, want 3", snap.Len())
	}

	if best, _ := snap.HighestCapability(0); best.ID != "creative-large" {
		t.Errorf("HighestCapability(0) = %s, want creative-large", best.ID)
	}
	if second, _ := snap.HighestCapability(1); second.ID != "general-medium" {
		t.Errorf("HighestCapability(1) = %s, want general-medium", second.ID)
	}
	if _, ok := snap.HighestCapability(3); ok {
		t.Error("HighestCapability(3) should report not ok")
	}

	if fast, _ := snap.LowestLatency(); fast.ID != "fast-small" {
		t.Errorf("LowestLatency = %s, want fast-small", fast.ID)
	}
	if mid, _ := snap.MidTier(); mid.ID != "general-medium" {
		t.Errorf("MidTier = %s, want general-medium", mid.ID)
	}
	if visual, ok := snap.VisualCapable(); !ok || visual.ID != "creative-large" {
		t.Errorf("VisualCapable = %s ok=%v, want creative-large", visual.ID, ok)
	}

	if b, ok := snap.Get("fast-small"); !ok || b.CapabilityScore != 40 {
		t.Errorf("Get(fast-small) = %+v ok=%v", b, ok)
	}
	if _, ok := snap.Get("missing"); ok {
		t.Error("Get(missing) should report not ok")
	}
}

func TestReplaceSwapsAtomically(t *testing.T) {
	reg, err := New(testBackends())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	old := reg.Snapshot()

	replacement := []domain.BackendDescriptor{
		{ID: "only", CapabilityScore: 10},
	}
	if err := reg.Replace(replacement); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if reg.Snapshot().Len() != 1 {
		t.Errorf("new snapshot Len = %d, want 1", reg.Snapshot().Len())
	}
	// Holders of the old snapshot keep a consistent view.
	if old.Len() != 3 {
		t.Errorf("old snapshot Len = %d, want 3", old.Len())
	}
}

func TestReplaceRejectsInvalidCatalog(t *testing.T) {
	reg, err := New(testBackends())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := reg.Replace(nil); err == nil {
		t.Fatal("Replace(nil) should fail")
	}
	// Failed replace keeps the previous catalog.
	if reg.Snapshot().Len() != 3 {
		t.Errorf("Len after failed Replace = %d, want 3", reg.Snapshot().Len())
	}
}
