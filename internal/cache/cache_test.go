package cache

import (
	"fmt"
	"testing"

	"github.com/storyloom/orchestrator/internal/domain"
)

func TestExactHitIgnoresFormatting(t *testing.T) {
	c := New()
	c.Insert(domain.FieldScript, "Write the opening scene", "INT. HARBOR - NIGHT")

	tests := []string{
		"Write the opening scene",
		"write the opening scene",
		"  Write   the\topening scene ",
		"WRITE THE OPENING SCENE",
	}
	for _, prompt := range tests {
		got, ok := c.Lookup(domain.FieldScript, prompt)
		if !ok {
			t.Errorf("Lookup(%q) missed, want hit", prompt)
			continue
		}
		if got != "INT. HARBOR - NIGHT" {
			t.Errorf("Lookup(%q) = %q", prompt, got)
		}
	}
}

func TestSimilarityHitAtThreshold(t *testing.T) {
	c := New(WithThreshold(0.85))
	c.Insert(domain.FieldScript, "one two three four five six seven", "cached")

	// 6 of max(7,7) words shared: 0.857 >= 0.85.
	got, ok := c.Lookup(domain.FieldScript, "one two three four five six other")
	if !ok {
		t.Fatal("expected similarity hit at 6/7 overlap")
	}
	if got != "cached" {
		t.Errorf("response = %q, want cached", got)
	}

	// 5 of 7 shared: 0.714 below threshold.
	if _, ok := c.Lookup(domain.FieldScript, "one two three four five other another"); ok {
		t.Error("expected miss below threshold")
	}
}

func TestFieldTypesAreIsolated(t *testing.T) {
	c := New()
	c.Insert(domain.FieldScript, "describe the sunset over the bay", "script answer")

	if _, ok := c.Lookup(domain.FieldAltText, "describe the sunset over the bay"); ok {
		t.Error("alt_text lookup must not hit a script entry")
	}
	if _, ok := c.Lookup(domain.FieldScript, "describe the sunset over the bay"); !ok {
		t.Error("script lookup must hit")
	}
}

func TestBulkEviction(t *testing.T) {
	c := New(WithCapacity(10), WithEvictFraction(0.2))

	for i := 0; i < 10; i++ {
		c.Insert(domain.FieldScript, fmt.Sprintf("unique prompt number %d alpha beta", i), "r")
	}
	if got := c.Len(); got != 10 {
		t.Fatalf("Len = %d, want 10", got)
	}

	// The next insert drops the two oldest entries in one pass, then adds.
	c.Insert(domain.FieldScript, "a brand new prompt past capacity gamma", "r")
	if got := c.Len(); got != 9 {
		t.Errorf("Len after eviction = %d, want 9", got)
	}

	if _, ok := c.Lookup(domain.FieldScript, "unique prompt number 0 alpha beta"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Lookup(domain.FieldScript, "unique prompt number 1 alpha beta"); ok {
		t.Error("second-oldest entry should have been evicted")
	}
	if _, ok := c.Lookup(domain.FieldScript, "unique prompt number 2 alpha beta"); !ok {
		t.Error("third-oldest entry should have survived")
	}
}

func TestSimilarityHitBumpsRecency(t *testing.T) {
	c := New(WithCapacity(3), WithEvictFraction(0.34))

	c.Insert(domain.FieldScript, "first apple banana cherry date elderberry fig", "first")
	c.Insert(domain.FieldScript, "second echo foxtrot golf hotel india juliet", "second")
	c.Insert(domain.FieldScript, "third kilo lima mike november oscar papa", "third")

	// Similarity hit (6 of 7 words) on the first entry makes it most
	// recently used.
	if _, ok := c.Lookup(domain.FieldScript, "first apple banana cherry date elderberry grape"); !ok {
		t.Fatal("expected similarity hit on first entry")
	}

	// Capacity 3, evict 1: the oldest is now the second entry.
	c.Insert(domain.FieldScript, "fourth quebec romeo sierra tango uniform victor", "fourth")

	if _, ok := c.Lookup(domain.FieldScript, "first apple banana cherry date elderberry fig"); !ok {
		t.Error("recency-bumped entry should survive eviction")
	}
	if _, ok := c.Lookup(domain.FieldScript, "second echo foxtrot golf hotel india juliet"); ok {
		t.Error("least recently used entry should have been evicted")
	}
}

func TestStatsAndLen(t *testing.T) {
	c := New()

	c.Lookup(domain.FieldScript, "nothing cached yet")
	c.Insert(domain.FieldScript, "the only cached prompt here now", "r")
	c.Lookup(domain.FieldScript, "the only cached prompt here now")
	c.Lookup(domain.FieldScript, "a completely different unrelated question")

	hits, misses := c.Stats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if misses != 2 {
		t.Errorf("misses = %d, want 2", misses)
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
}
