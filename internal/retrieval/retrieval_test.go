package retrieval

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/langmartai/lmassist/internal/config"
	"github.com/langmartai/lmassist/internal/embedding"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/vectorstore"
)

const testDim = 8

type stubProvider struct{}

func (stubProvider) Name() string    { return "stub" }
func (stubProvider) Model() string   { return "stub-model" }
func (stubProvider) Dimensions() int { return testDim }

func (stubProvider) GetEmbedding(text, purpose string) ([]float32, error) {
	v := make([]float32, testDim)
	for i, b := range []byte(strings.ToLower(text)) {
		v[i%testDim] += float32(b)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}

func (p stubProvider) GetDocumentEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "document")
}

func (p stubProvider) GetQueryEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "query")
}

var _ embedding.Provider = stubProvider{}

func withTempDataDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvDataDir, dir)
	if err := config.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
}

func openTestDB(t *testing.T) *vectorstore.DB {
	t.Helper()
	db, err := vectorstore.OpenMemory(testDim)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateDoc(t *testing.T, s *knowledge.Store, in knowledge.CreateInput) *knowledge.Document {
	t.Helper()
	doc, err := s.Create(in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return doc
}

func indexDoc(t *testing.T, db *vectorstore.DB, provider embedding.Provider, doc *knowledge.Document) {
	t.Helper()
	items := []vectorstore.AddItem{
		{
			RowType:        "knowledge",
			KnowledgeID:    doc.ID,
			ProjectPath:    doc.Project,
			ContentType:    "knowledge_title",
			Text:           doc.Title + " [" + string(doc.Type) + "]",
			MilestoneIndex: vectorstore.NoMilestoneIndex,
			Phase:          vectorstore.NoPhase,
			Timestamp:      doc.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
	for _, p := range doc.Parts {
		items = append(items, vectorstore.AddItem{
			RowType:        "knowledge",
			KnowledgeID:    doc.ID,
			PartID:         p.PartID,
			ProjectPath:    doc.Project,
			ContentType:    "knowledge_part",
			Text:           p.PartID + ": " + p.Title + ": " + p.Summary,
			MilestoneIndex: vectorstore.NoMilestoneIndex,
			Phase:          vectorstore.NoPhase,
			Timestamp:      doc.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := db.AddVectors(provider, items); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	if err := db.RebuildFtsIndex(); err != nil {
		t.Fatalf("RebuildFtsIndex: %v", err)
	}
}

func TestSearchKnowledgeDropsOrphanedRows(t *testing.T) {
	withTempDataDir(t)
	db := openTestDB(t)
	provider := stubProvider{}
	store := knowledge.NewStore()

	doc := mustCreateDoc(t, store, knowledge.CreateInput{
		Title: "Payment retry backoff",
		Type:  knowledge.TypeAlgorithm,
		Parts: []knowledge.Part{
			{Title: "Backoff", Summary: "Exponential backoff with jitter between retries."},
		},
	})
	indexDoc(t, db, provider, doc)

	// An orphan row referencing a knowledgeId that was never persisted.
	if err := db.AddVectors(provider, []vectorstore.AddItem{{
		RowType:        "knowledge",
		KnowledgeID:    "K999",
		PartID:         "K999.1",
		ContentType:    "knowledge_part",
		Text:           "K999.1: Ghost: a part with no backing document.",
		MilestoneIndex: vectorstore.NoMilestoneIndex,
		Phase:          vectorstore.NoPhase,
	}}); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	if err := db.RebuildFtsIndex(); err != nil {
		t.Fatalf("RebuildFtsIndex: %v", err)
	}

	results, err := SearchKnowledge(db, store, provider, "retry backoff", 10)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	for _, r := range results {
		if r.Row.KnowledgeID == "K999" {
			t.Errorf("expected orphaned row K999 to be dropped, got it in results")
		}
	}
}

func TestSearchKnowledgeResolvesRemoteDocuments(t *testing.T) {
	withTempDataDir(t)
	db := openTestDB(t)
	provider := stubProvider{}
	store := knowledge.NewStore()

	remote := &knowledge.Document{
		ID:      "K010",
		Title:   "Remote sync contract",
		Type:    knowledge.TypeContract,
		Project: "/proj/remote",
		Parts: []knowledge.Part{
			{PartID: "K010.1", Title: "Handshake", Summary: "Peers exchange a machineId and gatewayId."},
		},
	}
	if err := store.StoreRemoteDocument(remote, knowledge.Origin{MachineID: "machine-b", MachineHostname: "host-b"}); err != nil {
		t.Fatalf("StoreRemoteDocument: %v", err)
	}
	indexDoc(t, db, provider, remote)

	results, err := SearchKnowledge(db, store, provider, "peers exchange a machineId and gatewayId", 10)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	var found bool
	for _, r := range results {
		if r.Row.KnowledgeID == "K010" {
			found = true
			if r.KnowledgeTitle != "Remote sync contract" {
				t.Errorf("expected remote document title resolved, got %q", r.KnowledgeTitle)
			}
		}
	}
	if !found {
		t.Fatal("expected remote document's row to survive the orphan sweep")
	}
}

func TestSearchKnowledgeSweepsUnindexedContentMatches(t *testing.T) {
	withTempDataDir(t)
	db := openTestDB(t)
	provider := stubProvider{}
	store := knowledge.NewStore()

	doc := mustCreateDoc(t, store, knowledge.CreateInput{
		Title: "Webhook signature verification",
		Type:  knowledge.TypeContract,
		Parts: []knowledge.Part{
			{Title: "Overview", Summary: "Every webhook payload is HMAC-signed with a shared secret key rotated quarterly."},
		},
	})
	// Deliberately not indexed: the sweep must still find it via content match.

	results, err := SearchKnowledge(db, store, provider, "HMAC-signed with a shared secret key rotated quarterly", 10)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	var found bool
	for _, r := range results {
		if r.Row.KnowledgeID == doc.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected sweep to surface an unindexed document matching the query text")
	}
}

func TestSearchKnowledgeShortQuerySkipsBoostAndSweep(t *testing.T) {
	withTempDataDir(t)
	db := openTestDB(t)
	provider := stubProvider{}
	store := knowledge.NewStore()

	doc := mustCreateDoc(t, store, knowledge.CreateInput{
		Title: "Cache eviction",
		Type:  knowledge.TypeAlgorithm,
		Parts: []knowledge.Part{{Title: "LRU", Summary: "Least recently used eviction policy."}},
	})
	indexDoc(t, db, provider, doc)

	// Short query (<=15 chars after trim): the unindexed-sweep step must not run.
	other := mustCreateDoc(t, store, knowledge.CreateInput{
		Title: "Unrelated doc",
		Type:  knowledge.TypeWiring,
		Parts: []knowledge.Part{{Title: "LRU", Summary: "LRU mentioned here too but not indexed."}},
	})

	results, err := SearchKnowledge(db, store, provider, "LRU", 10)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	for _, r := range results {
		if r.Row.KnowledgeID == other.ID {
			t.Errorf("expected short query to skip the unindexed sweep, but found unindexed doc %s", other.ID)
		}
	}
}

func TestSearchKnowledgeRespectsLimit(t *testing.T) {
	withTempDataDir(t)
	db := openTestDB(t)
	provider := stubProvider{}
	store := knowledge.NewStore()

	for i := 0; i < 5; i++ {
		doc := mustCreateDoc(t, store, knowledge.CreateInput{
			Title: "Retry strategy variant",
			Type:  knowledge.TypeAlgorithm,
			Parts: []knowledge.Part{{Title: "Details", Summary: "Retry strategy details for variant."}},
		})
		indexDoc(t, db, provider, doc)
	}

	results, err := SearchKnowledge(db, store, provider, "retry strategy", 2)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if len(results) > 2 {
		t.Errorf("expected at most 2 results, got %d", len(results))
	}
}

func TestSearchMilestonesReturnsTitleFromText(t *testing.T) {
	withTempDataDir(t)
	db := openTestDB(t)
	provider := stubProvider{}

	if err := db.AddVectors(provider, []vectorstore.AddItem{{
		RowType:        "milestone",
		SessionID:      "sess-1",
		MilestoneIndex: 0,
		ContentType:    "milestone_title",
		Text:           "Implemented the retry backoff policy",
		Phase:          1,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}}); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	if err := db.RebuildFtsIndex(); err != nil {
		t.Fatalf("RebuildFtsIndex: %v", err)
	}

	results, err := SearchMilestones(db, provider, "retry backoff policy", 5)
	if err != nil {
		t.Fatalf("SearchMilestones: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 milestone result, got %d", len(results))
	}
	if results[0].Title != "Implemented the retry backoff policy" {
		t.Errorf("unexpected title: %q", results[0].Title)
	}
}

func TestEstimateTokensRoundsUp(t *testing.T) {
	cases := map[string]int{
		"":     0,
		"a":    1,
		"abcd": 1,
		"abcde": 2,
	}
	for text, want := range cases {
		if got := EstimateTokens(text); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestSuggestReturnsEmptyWhenStoreIsEmpty(t *testing.T) {
	withTempDataDir(t)
	db := openTestDB(t)
	provider := stubProvider{}
	store := knowledge.NewStore()

	suggestion, err := Suggest(db, store, provider, SuggestInput{Prompt: "anything"})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if suggestion.Context != "" {
		t.Errorf("expected empty suggestion with no indexed rows, got %q", suggestion.Context)
	}
}

func TestSuggestRendersKnowledgeAndMilestoneSections(t *testing.T) {
	withTempDataDir(t)
	db := openTestDB(t)
	provider := stubProvider{}
	store := knowledge.NewStore()

	doc := mustCreateDoc(t, store, knowledge.CreateInput{
		Title: "Deploy pipeline gating",
		Type:  knowledge.TypeWiring,
		Parts: []knowledge.Part{{Title: "Gate", Summary: "Deploys wait on the canary health check before promoting."}},
	})
	indexDoc(t, db, provider, doc)

	if err := db.AddVectors(provider, []vectorstore.AddItem{{
		RowType:        "milestone",
		SessionID:      "sess-9",
		MilestoneIndex: 0,
		ContentType:    "milestone_title",
		Text:           "Set up canary health check gating for deploys",
		Phase:          1,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}}); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	if err := db.RebuildFtsIndex(); err != nil {
		t.Fatalf("RebuildFtsIndex: %v", err)
	}

	suggestion, err := Suggest(db, store, provider, SuggestInput{Prompt: "canary health check gating for deploys"})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if suggestion.Context == "" {
		t.Fatal("expected a non-empty suggestion")
	}
	if !strings.Contains(suggestion.Context, "Deploy pipeline gating") {
		t.Errorf("expected knowledge title in suggestion, got: %s", suggestion.Context)
	}
	if !strings.Contains(suggestion.Context, "lmassist MCP tools") {
		t.Errorf("expected MCP-tools footer in suggestion, got: %s", suggestion.Context)
	}
	if suggestion.Tokens <= 0 {
		t.Errorf("expected positive token estimate, got %d", suggestion.Tokens)
	}
}

func TestTimeAgoHandlesMissingAndRecentTimestamps(t *testing.T) {
	if got := timeAgo(""); got != "unknown time" {
		t.Errorf("expected unknown time for empty timestamp, got %q", got)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if got := timeAgo(now); got != "just now" {
		t.Errorf("expected just now for a fresh timestamp, got %q", got)
	}
}
