package embedding

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
)

// ollamaMaxAttempts and ollamaRetryBase control the linear backoff
// (0s, 2s, 4s) used when a local Ollama instance is slow to come up or
// briefly overloaded.
const (
	ollamaMaxAttempts = 3
	ollamaRetryBase   = 2 * time.Second
)

// OllamaProvider generates embeddings via a local Ollama instance. Requests
// are restricted to localhost: an assistant running lmassist must never be
// able to exfiltrate prompt text to an arbitrary network host through an
// embedding config value.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dims       int
}

func newOllamaProvider(cfg ProviderConfig) (*OllamaProvider, error) {
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if err := requireLocalhost(baseURL); err != nil {
		return nil, err
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = ollamaDims[model]
		if dims == 0 {
			dims = 768
		}
	}

	return &OllamaProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		model:      model,
		dims:       dims,
	}, nil
}

func (p *OllamaProvider) Name() string    { return "ollama" }
func (p *OllamaProvider) Model() string   { return p.model }
func (p *OllamaProvider) Dimensions() int { return p.dims }

func (p *OllamaProvider) GetDocumentEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "document")
}

func (p *OllamaProvider) GetQueryEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "query")
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// GetEmbedding returns an embedding vector for text. nomic-embed-text and
// its relatives distinguish indexing from search via a prefix on the
// prompt rather than a separate request field.
func (p *OllamaProvider) GetEmbedding(text string, purpose string) ([]float32, error) {
	prefix := "search_document"
	if purpose == "query" {
		prefix = "search_query"
	}
	prompt := prefix + ": " + text

	// A 500 on an overlong prompt is usually the model's context window, not
	// a transient fault; halve the text once instead of retrying the same
	// oversized request three times. oversized short-circuits withRetry after
	// a single attempt so no extra network round trip is spent detecting it.
	var oversized bool
	vec, err := withRetry("ollama", ollamaMaxAttempts, ollamaRetryBase, func(int) attempt {
		vec, status, err := p.request(prompt)
		if status == http.StatusInternalServerError && len(text) > 3000 {
			oversized = true
			return attempt{err: err, retryable: false}
		}
		return attempt{vec: vec, err: err, retryable: status == 0 || status >= 500}
	})
	if oversized {
		return p.GetEmbedding(text[:len(text)/2], purpose)
	}
	return vec, err
}

// request performs a single embedding call, returning the HTTP status code
// observed (0 for a network-level failure, which the caller retries; a
// permission denial is reported as 403 so it is not retried) so the caller
// can classify retryability without string-matching errors.
func (p *OllamaProvider) request(prompt string) (vec []float32, statusCode int, err error) {
	body, err := json.Marshal(ollamaRequest{Model: p.model, Prompt: prompt})
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInvalidRequest, err, "marshal ollama request")
	}

	resp, err := p.httpClient.Post(p.baseURL+"/api/embeddings", "application/json", bytes.NewReader(body))
	if err != nil {
		reason := classifyNetworkError(err)
		wrapped := apperr.Wrap(apperr.KindUpstreamError, err, "ollama: %s", reason)
		if reason == "permission_denied" {
			return nil, http.StatusForbidden, wrapped
		}
		return nil, 0, wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, apperr.New(apperr.KindUpstreamError, "ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, apperr.Wrap(apperr.KindUpstreamError, err, "decode ollama response")
	}
	if len(result.Embedding) == 0 {
		return nil, resp.StatusCode, apperr.New(apperr.KindUpstreamError, "ollama returned an empty embedding")
	}
	if err := validateEmbedding(result.Embedding, p.dims); err != nil {
		return nil, resp.StatusCode, err
	}
	return result.Embedding, resp.StatusCode, nil
}

// classifyNetworkError turns a raw dial/transport error into a short,
// human-readable reason, distinguishing conditions worth retrying
// (connection refused, DNS hiccups, timeouts) from sandbox denials that
// won't resolve themselves.
func classifyNetworkError(err error) string {
	if err == nil {
		return "unknown"
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED:
			return "connection_refused"
		case syscall.EACCES, syscall.EPERM:
			return "permission_denied"
		case syscall.ETIMEDOUT:
			return "timeout"
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Timeout() {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns_failure"
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "permission denied"):
		return "permission_denied"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "no such host"):
		return "dns_failure"
	}
	return "network_error"
}

// requireLocalhost rejects any Ollama base URL that doesn't resolve to the
// local machine, so an embedding config value can't turn into an
// exfiltration channel for prompt text.
func requireLocalhost(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidRequest, err, "invalid ollama url")
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return nil
	default:
		return apperr.New(apperr.KindInvalidRequest, "ollama url must point to localhost, got %q", u.Hostname())
	}
}

// ollamaDims gives the known vector width for Ollama's common embedding
// models so LM_ASSIST_EMBED_DIMENSIONS can be left unset in the common case.
var ollamaDims = map[string]int{
	"nomic-embed-text":        768,
	"nomic-embed-text-v2-moe": 768,
	"mxbai-embed-large":       1024,
	"all-minilm":              384,
	"snowflake-arctic-embed":  1024,
	"snowflake-arctic-embed2": 768,
	"embeddinggemma":          768,
	"qwen3-embedding":         1024,
	"bge-m3":                  1024,
}
