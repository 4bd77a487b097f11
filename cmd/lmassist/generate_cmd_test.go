package main

import (
	"testing"
	"time"

	"github.com/langmartai/lmassist/internal/generator"
	"github.com/langmartai/lmassist/internal/knowledge"
)

func TestSortCandidatesByCompletedAtDescending(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candidates := []generator.Candidate{
		{AgentID: "a", CompletedAt: base},
		{AgentID: "b", CompletedAt: base.Add(2 * time.Hour)},
		{AgentID: "c", CompletedAt: base.Add(1 * time.Hour)},
	}

	sortCandidatesByCompletedAt(candidates)

	want := []string{"b", "c", "a"}
	for i, id := range want {
		if candidates[i].AgentID != id {
			t.Fatalf("position %d: got %s, want %s", i, candidates[i].AgentID, id)
		}
	}
}

func TestSortCandidatesByCompletedAtEmptyAndSingle(t *testing.T) {
	sortCandidatesByCompletedAt(nil)

	one := []generator.Candidate{{AgentID: "only"}}
	sortCandidatesByCompletedAt(one)
	if one[0].AgentID != "only" {
		t.Fatalf("expected single-element slice to be unchanged, got %+v", one)
	}
}

func TestDiscoverCandidatesWithNoProjectsDir(t *testing.T) {
	withTestDataDir(t)
	store := knowledge.NewStore()

	candidates, err := discoverCandidates(store, "")
	if err != nil {
		t.Fatalf("discoverCandidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates when no project directories exist, got %d", len(candidates))
	}
}
