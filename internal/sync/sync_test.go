package sync

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/langmartai/lmassist/internal/config"
	"github.com/langmartai/lmassist/internal/embedding"
	"github.com/langmartai/lmassist/internal/hub"
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
	t.Setenv(config.EnvDataDir, t.TempDir())
	if err := config.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
}

const peerMachineID = "peer-machine-1"

func newFakeHubServer(t *testing.T, knowledgeJSON string, docs map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/peers":
			json.NewEncoder(w).Encode(map[string]any{
				"peers": []hub.Peer{{MachineID: peerMachineID, GatewayID: "peer-gateway", Hostname: "peer-host"}},
			})
		case r.URL.Path == "/relay/"+peerMachineID+"/projects":
			json.NewEncoder(w).Encode(map[string]any{
				"projects": []hub.Project{{Path: "/home/dev/app", FetchRemotes: []string{"git@github.com:acme/app.git"}}},
			})
		case r.URL.Path == "/relay/"+peerMachineID+"/knowledge":
			w.Write([]byte(knowledgeJSON))
		case strings.HasPrefix(r.URL.Path, "/relay/"+peerMachineID+"/knowledge/"):
			id := strings.TrimPrefix(r.URL.Path, "/relay/"+peerMachineID+"/knowledge/")
			md, ok := docs[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"markdown": md})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func sampleMarkdown(id, title string, updatedAt time.Time) string {
	return `---
id: ` + id + `
title: "` + title + `"
type: algorithm
project: /home/dev/app
status: active
createdAt: ` + updatedAt.Format(time.RFC3339) + `
updatedAt: ` + updatedAt.Format(time.RFC3339) + `
---

# ` + id + `: ` + title + `

## ` + id + `.1: Overview
A one-paragraph summary of the approach.

Further detail about the approach goes here.
`
}

func TestSyncOncePullsNewRemoteDocument(t *testing.T) {
	withTempDataDir(t)
	db, err := vectorstore.OpenMemory(testDim)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	docs := map[string]string{"K050": sampleMarkdown("K050", "Retry backoff algorithm", now)}
	knowledgeJSON := `{"entries":[{"id":"K050","updatedAt":"` + now.Format(time.RFC3339) + `"}]}`

	srv := newFakeHubServer(t, knowledgeJSON, docs)
	defer srv.Close()

	hubClient, err := hub.NewClient(&config.Config{Hub: config.HubConfig{URL: srv.URL}})
	if err != nil {
		t.Fatalf("hub.NewClient: %v", err)
	}

	store := knowledge.NewStore()
	svc := NewService(store, db, stubProvider{}, nil)

	result, err := svc.syncOnce(hubClient, Project{
		Path:         "/home/dev/app",
		FetchRemotes: []string{"https://github.com/acme/app.git"},
	})
	if err != nil {
		t.Fatalf("syncOnce: %v", err)
	}
	if result.EntriesSynced != 1 {
		t.Errorf("expected 1 entry synced, got %+v", result)
	}

	doc, err := store.Get("K050", peerMachineID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Title != "Retry backoff algorithm" {
		t.Errorf("unexpected title %q", doc.Title)
	}
	if doc.Origin == nil || doc.Origin.MachineID != peerMachineID {
		t.Errorf("expected origin set to peer machine, got %+v", doc.Origin)
	}
}

func TestSyncOnceSkipsUnchangedDocument(t *testing.T) {
	withTempDataDir(t)
	db, err := vectorstore.OpenMemory(testDim)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	store := knowledge.NewStore()
	svc := NewService(store, db, stubProvider{}, nil)

	old := time.Now().Add(-48 * time.Hour).UTC()
	if err := store.StoreRemoteDocument(&knowledge.Document{
		ID: "K060", Title: "Cache warm path", Type: knowledge.TypeFlow, Project: "/home/dev/app",
		Status: knowledge.StatusActive, CreatedAt: old, UpdatedAt: old,
		Parts: []knowledge.Part{{PartID: "K060.1", Title: "Overview", Summary: "s", Content: "c"}},
	}, knowledge.Origin{MachineID: peerMachineID, MachineHostname: "peer-host"}); err != nil {
		t.Fatalf("StoreRemoteDocument: %v", err)
	}

	docs := map[string]string{"K060": sampleMarkdown("K060", "Cache warm path", old)}
	knowledgeJSON := `{"entries":[{"id":"K060","updatedAt":"` + old.Format(time.RFC3339) + `"}]}`
	srv := newFakeHubServer(t, knowledgeJSON, docs)
	defer srv.Close()

	hubClient, err := hub.NewClient(&config.Config{Hub: config.HubConfig{URL: srv.URL}})
	if err != nil {
		t.Fatalf("hub.NewClient: %v", err)
	}

	result, err := svc.syncOnce(hubClient, Project{
		Path:         "/home/dev/app",
		FetchRemotes: []string{"https://github.com/acme/app.git"},
	})
	if err != nil {
		t.Fatalf("syncOnce: %v", err)
	}
	if result.EntriesSynced != 0 || result.EntriesSkipped != 1 {
		t.Errorf("expected a skip, not a sync, got %+v", result)
	}
}

func TestSyncOnceFlagsVanishedEntryArchived(t *testing.T) {
	withTempDataDir(t)
	db, err := vectorstore.OpenMemory(testDim)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	store := knowledge.NewStore()
	svc := NewService(store, db, stubProvider{}, nil)

	old := time.Now().Add(-48 * time.Hour).UTC()
	if err := store.StoreRemoteDocument(&knowledge.Document{
		ID: "K070", Title: "Deprecated helper", Type: knowledge.TypeWiring, Project: "/home/dev/app",
		Status: knowledge.StatusActive, CreatedAt: old, UpdatedAt: old,
		Parts: []knowledge.Part{{PartID: "K070.1", Title: "Overview", Summary: "s", Content: "c"}},
	}, knowledge.Origin{MachineID: peerMachineID, MachineHostname: "peer-host"}); err != nil {
		t.Fatalf("StoreRemoteDocument: %v", err)
	}

	// The peer's list no longer mentions K070.
	srv := newFakeHubServer(t, `{"entries":[]}`, nil)
	defer srv.Close()

	hubClient, err := hub.NewClient(&config.Config{Hub: config.HubConfig{URL: srv.URL}})
	if err != nil {
		t.Fatalf("hub.NewClient: %v", err)
	}

	result, err := svc.syncOnce(hubClient, Project{
		Path:         "/home/dev/app",
		FetchRemotes: []string{"https://github.com/acme/app.git"},
	})
	if err != nil {
		t.Fatalf("syncOnce: %v", err)
	}
	if result.EntriesFlaggedStale != 1 {
		t.Errorf("expected 1 flagged stale, got %+v", result)
	}

	doc, err := store.Get("K070", peerMachineID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Status != knowledge.StatusArchived {
		t.Errorf("expected archived status, got %q", doc.Status)
	}
}

func TestStartFailsFastWhenAlreadyRunning(t *testing.T) {
	withTempDataDir(t)
	db, err := vectorstore.OpenMemory(testDim)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	store := knowledge.NewStore()
	svc := NewService(store, db, stubProvider{}, nil)
	svc.status = Status{Running: true}

	hubClient, err := hub.NewClient(&config.Config{Hub: config.HubConfig{URL: "http://127.0.0.1:1"}})
	if err != nil {
		t.Fatalf("hub.NewClient: %v", err)
	}

	if err := svc.Start(hubClient, Project{}); err == nil {
		t.Fatal("expected Start to fail fast while a run is already in flight")
	}
}
