package scrape

import (
	"context"
	"path/filepath"
	"testing"
)

func TestUniversityCandidates(t *testing.T) {
	// WHAT: Selector candidates run from most to least specific: the full
	// name first, then its first two words.
	// WHY: Portal option texts truncate and re-punctuate long names; the
	// two-word prefix recovers those without matching unrelated entries.
	got := universityCandidates("Kyoto Institute of Technology")
	want := []string{"Kyoto Institute of Technology", "Kyoto Institute"}
	if len(got) != len(want) {
		t.Fatalf("candidates: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate %d = %q, want %q", i, got[i], want[i])
		}
	}

	single := universityCandidates("Sorbonne")
	if len(single) != 1 || single[0] != "Sorbonne" {
		t.Fatalf("single-word name should have no prefix candidate: %v", single)
	}
}

func TestIncrementalCrawler_UnlistedUniversityIsNotRetried(t *testing.T) {
	// WHAT: A university the portal does not list yields an empty mapping
	// set after a single search attempt.
	// WHY: The vacancy PDF advertises partners the portal has dropped;
	// treating them as failures burns the retry budget on every targeted
	// crawl.
	portal := twoCountryPortal()
	path := filepath.Join(t.TempDir(), "cp.json")
	c := NewIncrementalCrawler(fastConfig(), func() Portal { return portal }, NewCheckpointFile(path), nil)

	targets := []Target{{ID: "ghost", Name: "Ghost Polytechnic", Country: "France"}}
	data, err := c.Run(context.Background(), targets, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(data["ghost"]) != 0 {
		t.Fatalf("unlisted university should map nothing, got %v", data["ghost"])
	}
	if got := portal.searchCount(); got != 1 {
		t.Fatalf("searched %d times, want 1", got)
	}

	cp, _ := NewCheckpointFile(path).Load()
	if !cp.Completed("ghost") {
		t.Fatal("unlisted target should be checkpointed as completed")
	}
}
