package knowledge

import (
	"os"
	"testing"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/config"
)

func withTempDataDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvDataDir, dir)
	if err := config.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
}

func TestCreateAllocatesZeroPaddedID(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()

	doc, err := s.Create(CreateInput{
		Title: "Auth flow",
		Type:  TypeFlow,
		Parts: []Part{{Title: "Overview", Summary: "How auth works.", Content: "Details."}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID != "K001" {
		t.Errorf("expected K001, got %q", doc.ID)
	}
	if doc.Parts[0].PartID != "K001.1" {
		t.Errorf("expected renumbered partId K001.1, got %q", doc.Parts[0].PartID)
	}

	doc2, err := s.Create(CreateInput{Title: "Second doc", Type: TypeWiring})
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}
	if doc2.ID != "K002" {
		t.Errorf("expected K002, got %q", doc2.ID)
	}
}

func TestCreateRejectsDuplicateSourceAgentID(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()

	if _, err := s.Create(CreateInput{Title: "First", SourceAgentID: "agent-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create(CreateInput{Title: "Second", SourceAgentID: "agent-1"})
	if err == nil {
		t.Fatal("expected duplicate sourceAgentId to be rejected")
	}
	if k, _ := apperr.KindOf(err); k != apperr.KindDuplicate {
		t.Errorf("expected KindDuplicate, got %v", k)
	}
}

func TestCreateRejectsDuplicateTitleAndSession(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()

	if _, err := s.Create(CreateInput{Title: "Same title", SourceSessionID: "sess-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create(CreateInput{Title: "Same title", SourceSessionID: "sess-1"})
	if err == nil {
		t.Fatal("expected duplicate (title, sourceSessionId) to be rejected")
	}
}

func TestGetRoundTripsThroughMarkdown(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()

	created, err := s.Create(CreateInput{
		Title: "Payment retries",
		Type:  TypeAlgorithm,
		Parts: []Part{
			{Title: "Backoff", Summary: "Exponential backoff with jitter.", Content: "Full detail here.\nMore lines."},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(created.ID, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Payment retries" || got.Type != TypeAlgorithm {
		t.Errorf("unexpected roundtrip: %+v", got)
	}
	if len(got.Parts) != 1 || got.Parts[0].Summary != "Exponential backoff with jitter." {
		t.Errorf("unexpected part: %+v", got.Parts)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()
	_, err := s.Get("K999", "")
	if k, _ := apperr.KindOf(err); k != apperr.KindNotFound {
		t.Errorf("expected KindNotFound, got %v / %v", k, err)
	}
}

func TestUpdateBumpsUpdatedAtAndRenumbers(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()

	doc, err := s.Create(CreateInput{Title: "Doc", Parts: []Part{{Title: "A"}, {Title: "B"}}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	newParts := []Part{{Title: "B"}, {Title: "A"}, {Title: "C"}}
	updated, err := s.Update(doc.ID, "", Patch{Parts: &newParts})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(updated.Parts))
	}
	if updated.Parts[2].PartID != doc.ID+".3" {
		t.Errorf("expected renumbered partId, got %q", updated.Parts[2].PartID)
	}
	if !updated.UpdatedAt.After(doc.CreatedAt) && updated.UpdatedAt != doc.CreatedAt {
		t.Errorf("expected updatedAt >= createdAt")
	}
}

func TestUpdateMissingDocumentFails(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()
	title := "x"
	_, err := s.Update("K999", "", Patch{Title: &title})
	if err == nil {
		t.Fatal("expected error updating missing document")
	}
}

func TestDeleteRemovesFileAndIndexEntry(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()
	doc, err := s.Create(CreateInput{Title: "To delete"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(DocumentPath(doc.ID, "")); !os.IsNotExist(err) {
		t.Errorf("expected document file removed")
	}
	if _, err := s.Get(doc.ID, ""); err == nil {
		t.Errorf("expected Get to fail after delete")
	}
}

func TestListScansIndexOnly(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()
	if _, err := s.Create(CreateInput{Title: "One", Type: TypeSchema, Project: "/proj/a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(CreateInput{Title: "Two", Type: TypeContract, Project: "/proj/b"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	all, err := s.List(Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	filtered, err := s.List(Filter{Project: "/proj/a"})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Title != "One" {
		t.Errorf("unexpected filtered list: %+v", filtered)
	}
}

func TestCreateFromMarkdownAdvancesNextIDPastValidFreeID(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()

	md := "---\nid: K050\ntitle: Imported doc\ntype: contract\nstatus: active\ncreatedAt: 2024-01-01T00:00:00Z\nupdatedAt: 2024-01-01T00:00:00Z\n---\n\n## K050.1: Overview\n\nSummary paragraph.\n\nBody content.\n"
	doc, err := s.CreateFromMarkdown(md)
	if err != nil {
		t.Fatalf("CreateFromMarkdown: %v", err)
	}
	if doc.ID != "K050" {
		t.Fatalf("expected embedded ID K050 preserved, got %q", doc.ID)
	}

	next, err := s.Create(CreateInput{Title: "After import"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if next.ID != "K051" {
		t.Errorf("expected nextId advanced past K050, got %q", next.ID)
	}
}

func TestCreateFromMarkdownAllocatesNewIDOnCollision(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()

	first, err := s.Create(CreateInput{Title: "Existing"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	md := "---\nid: " + first.ID + "\ntitle: Colliding import\ntype: flow\nstatus: active\ncreatedAt: 2024-01-01T00:00:00Z\nupdatedAt: 2024-01-01T00:00:00Z\n---\n\n## " + first.ID + ".1: Overview\n\nSummary.\n\nContent.\n"
	imported, err := s.CreateFromMarkdown(md)
	if err != nil {
		t.Fatalf("CreateFromMarkdown: %v", err)
	}
	if imported.ID == first.ID {
		t.Errorf("expected colliding ID to be reallocated, got %q twice", imported.ID)
	}
}

func TestParseMarkdownSplitsSummaryAndContent(t *testing.T) {
	md := `---
id: K001
title: Test doc
type: wiring
status: active
createdAt: 2024-01-01T00:00:00Z
updatedAt: 2024-01-01T00:00:00Z
---

## K001.1: First part

This is the summary paragraph.
It can span lines.

This is body content.
More body content.

## K001.2: Second part

Second summary.

Second content.
`
	doc, err := ParseMarkdown(md)
	if err != nil {
		t.Fatalf("ParseMarkdown: %v", err)
	}
	if len(doc.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(doc.Parts))
	}
	if doc.Parts[0].Summary != "This is the summary paragraph.\nIt can span lines." {
		t.Errorf("unexpected summary: %q", doc.Parts[0].Summary)
	}
	if doc.Parts[0].Content != "This is body content.\nMore body content." {
		t.Errorf("unexpected content: %q", doc.Parts[0].Content)
	}
	if doc.Parts[1].Title != "Second part" {
		t.Errorf("unexpected title: %q", doc.Parts[1].Title)
	}
}

func TestFrontMatterQuotedValueEscaping(t *testing.T) {
	doc := &Document{
		ID:    "K001",
		Title: `A "quoted" title: with colon`,
		Type:  TypeWiring,
	}
	rendered := ToMarkdown(doc)
	parsed, err := ParseMarkdown(rendered)
	if err != nil {
		t.Fatalf("ParseMarkdown: %v", err)
	}
	if parsed.Title != doc.Title {
		t.Errorf("expected title to round-trip through quoting, got %q want %q", parsed.Title, doc.Title)
	}
}

func TestAddCommentNeverOverwritesExisting(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()
	doc, err := s.Create(CreateInput{Title: "Commented doc"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c1, err := s.AddComment(doc.ID, "", Comment{Type: CommentGeneral, Content: "first", Source: CommentSourceUser})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	c2, err := s.AddComment(doc.ID, "", Comment{Type: CommentUpdate, Content: "second", Source: CommentSourceLLM})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if c1.ID == c2.ID {
		t.Fatal("expected distinct comment IDs")
	}
	all, err := s.ListComments(doc.ID, "")
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(all))
	}
}

func TestResolveCommentTransitionsState(t *testing.T) {
	withTempDataDir(t)
	s := NewStore()
	doc, err := s.Create(CreateInput{Title: "Doc"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c, err := s.AddComment(doc.ID, "", Comment{Type: CommentRemove, Content: "drop this"})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if c.State != CommentNotAddressed {
		t.Errorf("expected default state not_addressed, got %v", c.State)
	}
	if err := s.ResolveComment(doc.ID, "", c.ID); err != nil {
		t.Fatalf("ResolveComment: %v", err)
	}
	all, err := s.ListComments(doc.ID, "")
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if all[0].State != CommentAddressed {
		t.Errorf("expected addressed, got %v", all[0].State)
	}
}
