package main

import (
	"os"
	"testing"

	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/vectorstore"
)

func TestCheckIndexFileSymmetryPassesForHealthyStore(t *testing.T) {
	withTestDataDir(t)
	store := knowledge.NewStore()
	if _, err := store.Create(knowledgeCreateInputForTest("Healthy doc")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	checks := checkIndexFileSymmetry(store, false)
	if len(checks) != 1 || checks[0].Status != "pass" {
		t.Fatalf("expected a single passing check, got %+v", checks)
	}
}

func TestCheckIndexFileSymmetryDetectsMissingFileAndRepairs(t *testing.T) {
	withTestDataDir(t)
	store := knowledge.NewStore()
	doc, err := store.Create(knowledgeCreateInputForTest("Will lose its file"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := os.Remove(knowledge.DocumentPath(doc.ID, "")); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}

	checks := checkIndexFileSymmetry(store, false)
	if len(checks) != 1 || checks[0].Status != "fail" {
		t.Fatalf("expected a failing check, got %+v", checks)
	}

	checks = checkIndexFileSymmetry(store, true)
	if !checks[0].Repaired {
		t.Fatalf("expected repair to succeed, got %+v", checks[0])
	}
	entries, err := store.List(knowledge.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, e := range entries {
		if e.ID == doc.ID {
			t.Fatalf("expected repaired index to drop %s", doc.ID)
		}
	}
}

func TestCheckDuplicateAgentIDsPassesWithUniqueIDs(t *testing.T) {
	withTestDataDir(t)
	store := knowledge.NewStore()
	if _, err := store.Create(knowledge.CreateInput{Title: "First", SourceAgentID: "agent-1"}); err != nil {
		t.Fatalf("Create first: %v", err)
	}

	c := checkDuplicateAgentIDs(store)
	if c.Status != "pass" {
		t.Fatalf("expected pass with a single sourceAgentId, got %+v", c)
	}
}

func TestCheckOrphanVectorsPassesOnEmptyStore(t *testing.T) {
	withTestDataDir(t)
	store := knowledge.NewStore()
	db, err := vectorstore.OpenMemory(8)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	c := checkOrphanVectors(store, db, false)
	if c.Status != "pass" {
		t.Fatalf("expected pass on an empty vector store, got %+v", c)
	}
}
