package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/langmartai/lmassist/internal/config"
)

func withTempDataDir(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvDataDir, t.TempDir())
}

func TestNewClientRejectsUnconfiguredHub(t *testing.T) {
	withTempDataDir(t)
	_, err := NewClient(&config.Config{})
	if err == nil {
		t.Fatal("expected error when hub.url is empty")
	}
}

func TestListPeersExcludesSelf(t *testing.T) {
	withTempDataDir(t)
	identity, err := config.LoadMachineIdentity()
	if err != nil {
		t.Fatalf("LoadMachineIdentity: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected Authorization header, got %q", got)
		}
		json.NewEncoder(w).Encode(listPeersResponse{Peers: []Peer{
			{MachineID: identity.MachineID, GatewayID: "other-gateway", Hostname: "self"},
			{MachineID: "peer-machine", GatewayID: "peer-gateway", Hostname: "peer-host"},
		}})
	}))
	defer srv.Close()

	c, err := NewClient(&config.Config{Hub: config.HubConfig{URL: srv.URL, APIKey: "test-key"}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	peers, err := c.ListPeers()
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != 1 || peers[0].MachineID != "peer-machine" {
		t.Fatalf("expected self excluded, got %+v", peers)
	}
}

func TestListPeersExcludesSelfByGatewayID(t *testing.T) {
	withTempDataDir(t)
	identity, err := config.LoadMachineIdentity()
	if err != nil {
		t.Fatalf("LoadMachineIdentity: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listPeersResponse{Peers: []Peer{
			// A different machineId sharing our gatewayId (e.g. a second
			// gateway process on the same box) still counts as self.
			{MachineID: "some-other-machine-id", GatewayID: identity.GatewayID, Hostname: "self-2"},
		}})
	}))
	defer srv.Close()

	c, err := NewClient(&config.Config{Hub: config.HubConfig{URL: srv.URL}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	peers, err := c.ListPeers()
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("expected gatewayId match to also count as self, got %+v", peers)
	}
}

func TestRelayGetHitsRelayPath(t *testing.T) {
	withTempDataDir(t)

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"projects":[{"path":"/home/dev/app","fetchRemotes":["github.com/acme/app"]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(&config.Config{Hub: config.HubConfig{URL: srv.URL}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	projects, err := c.ListPeerProjects("peer-machine-1")
	if err != nil {
		t.Fatalf("ListPeerProjects: %v", err)
	}
	if !strings.Contains(gotPath, "/relay/peer-machine-1/projects") {
		t.Errorf("expected relay path, got %q", gotPath)
	}
	if len(projects) != 1 || projects[0].Path != "/home/dev/app" {
		t.Fatalf("unexpected projects: %+v", projects)
	}
}

func TestDoRequestSurfacesUpstreamErrors(t *testing.T) {
	withTempDataDir(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c, err := NewClient(&config.Config{Hub: config.HubConfig{URL: srv.URL}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.ListPeers(); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
