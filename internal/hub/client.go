// Package hub is the client side of the relay hub connection: peer
// discovery and relayed HTTP GETs used by internal/sync, and the duplex
// channel internal/relay dials to receive inbound relayed requests. The
// hub gateway's own server side is out of scope (spec §1's explicit
// non-goal); this package only ever calls out to it.
package hub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/config"
)

// KnowledgeEntry is one entry from a peer's knowledge listing.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listKnowledgeResponse struct {
	Entries []KnowledgeEntry `json:"entries"`
}

// ListPeerKnowledge fetches a peer's active, local-origin knowledge list
// (spec §4.7 step 3). Filtering to origin=local at the source prevents a
// peer from ever handing back documents it itself synced in from us.
func (c *Client) ListPeerKnowledge(peerMachineID string) ([]KnowledgeEntry, error) {
	var resp listKnowledgeResponse
	if err := c.relayGetJSON(peerMachineID, "/knowledge?status=active&origin=local", &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

type getDocumentResponse struct {
	Markdown string `json:"markdown"`
}

// GetPeerDocument fetches one full document's Markdown representation from
// a peer.
func (c *Client) GetPeerDocument(peerMachineID, id string) (string, error) {
	var resp getDocumentResponse
	if err := c.relayGetJSON(peerMachineID, "/knowledge/"+id+"?format=markdown", &resp); err != nil {
		return "", err
	}
	return resp.Markdown, nil
}

// Client talks to the configured hub for peer discovery and relayed GETs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	Identity   config.MachineIdentity
}

// NewClient builds a hub client from the process configuration, loading
// (and persisting, on first use) this workstation's machine identity.
func NewClient(cfg *config.Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Hub.URL), "/")
	if baseURL == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "hub not configured (set %s)", config.EnvHubURL)
	}
	identity, err := config.LoadMachineIdentity()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIoError, err, "load machine identity")
	}
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(config.HubHTTPTimeoutSecs) * time.Second},
		baseURL:    baseURL,
		apiKey:     cfg.Hub.APIKey,
		Identity:   identity,
	}, nil
}

// Peer is one other workstation registered with the hub.
type Peer struct {
	MachineID string `json:"machineId"`
	GatewayID string `json:"gatewayId"`
	Hostname  string `json:"hostname"`
}

// IsSelf reports whether a peer is this workstation, per spec §4.7's
// "skip self (compare against both machineId and gatewayId)" rule — a
// single physical machine can register more than one gateway connection.
func (c *Client) IsSelf(p Peer) bool {
	return p.MachineID == c.Identity.MachineID || p.GatewayID == c.Identity.GatewayID
}

type listPeersResponse struct {
	Peers []Peer `json:"peers"`
}

// ListPeers enumerates the other workstations currently registered with
// the hub, excluding this one.
func (c *Client) ListPeers() ([]Peer, error) {
	var resp listPeersResponse
	if err := c.get("/peers", &resp); err != nil {
		return nil, err
	}
	out := make([]Peer, 0, len(resp.Peers))
	for _, p := range resp.Peers {
		if !c.IsSelf(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Project is one of a peer's known local projects, identified by its
// normalized fetch remotes.
type Project struct {
	Path         string   `json:"path"`
	FetchRemotes []string `json:"fetchRemotes"`
}

type listProjectsResponse struct {
	Projects []Project `json:"projects"`
}

// ListPeerProjects fetches a peer's project list over a hub-relayed GET.
func (c *Client) ListPeerProjects(peerMachineID string) ([]Project, error) {
	var resp listProjectsResponse
	if err := c.relayGetJSON(peerMachineID, "/projects", &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// relayGetJSON issues a hub-relayed GET against a peer's local HTTP API
// and decodes the JSON response into v.
func (c *Client) relayGetJSON(peerMachineID, path string, v any) error {
	body, err := c.RelayGet(peerMachineID, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.KindUpstreamError, err, "decode relayed response from %s%s", peerMachineID, path)
	}
	return nil
}

// RelayGet issues a hub-relayed GET request to a peer workstation's local
// HTTP API and returns the raw response body.
func (c *Client) RelayGet(peerMachineID, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/relay/%s%s", c.baseURL, peerMachineID, path)
	return c.doRequest(http.MethodGet, url, nil)
}

func (c *Client) get(path string, v any) error {
	body, err := c.doRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.KindUpstreamError, err, "decode hub response from %s", path)
	}
	return nil
}

func (c *Client) doRequest(method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, err, "build hub request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamError, err, "connect to hub at %s", c.baseURL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamError, err, "read hub response")
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.KindUpstreamError, "hub returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
