package embedding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
)

// openaiMaxAttempts and openaiRetryBase control the linear backoff
// (0s, 2s, 4s) used for rate-limited or momentarily unavailable requests.
const (
	openaiMaxAttempts = 3
	openaiRetryBase   = 2 * time.Second
)

// openaiDims gives the known vector width for OpenAI's hosted embedding
// models, so LM_ASSIST_EMBED_DIMENSIONS can be left unset in the common case.
var openaiDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// variableDimModels support the OpenAI "dimensions" request field, which
// truncates the vector server-side via Matryoshka representation learning
// rather than requiring the caller to slice it after the fact.
var variableDimModels = map[string]bool{
	"text-embedding-3-small": true,
	"text-embedding-3-large": true,
}

// OpenAIProvider generates embeddings via the OpenAI API or any
// OpenAI-compatible endpoint (llama.cpp, VLLM, LM Studio, OpenRouter, etc).
type OpenAIProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	dims       int
	name       string // "openai" or "openai-compatible"
}

const openAIBaseURL = "https://api.openai.com"

// newOpenAIProvider builds an OpenAI or OpenAI-compatible embedding
// provider. An API key is mandatory for the hosted API but optional for a
// local/custom endpoint.
func newOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	hosted := baseURL == openAIBaseURL

	if hosted && cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "openai embedding provider requires an API key (set LM_ASSIST_EMBED_API_KEY or embedding.api_key in config)")
	}

	model := cfg.Model
	if model == "" {
		if !hosted {
			return nil, apperr.New(apperr.KindInvalidRequest, "openai-compatible provider requires a model name (set LM_ASSIST_EMBED_MODEL or embedding.model in config)")
		}
		model = "text-embedding-3-small"
	}

	dims := cfg.Dimensions
	if dims == 0 && hosted {
		dims = openaiDims[model]
		if dims == 0 {
			dims = 1536
		}
		// An unrecognized local-server model keeps dims=0: accept whatever
		// width the server returns rather than guessing.
	}

	name := "openai"
	if !hosted {
		name = "openai-compatible"
		warnIfRemote(baseURL)
	}

	return &OpenAIProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
		apiKey:     cfg.APIKey,
		dims:       dims,
		name:       name,
	}, nil
}

// warnIfRemote flags an openai-compatible base URL that isn't local, since
// prompt text will leave the machine to reach it.
func warnIfRemote(baseURL string) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
	default:
		fmt.Fprintf(os.Stderr, "lmassist: warning: embedding requests will be sent to remote server (%s)\n", u.Host)
	}
}

func (p *OpenAIProvider) Name() string    { return p.name }
func (p *OpenAIProvider) Model() string   { return p.model }
func (p *OpenAIProvider) Dimensions() int { return p.dims }

func (p *OpenAIProvider) GetDocumentEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "document")
}

func (p *OpenAIProvider) GetQueryEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "query")
}

type openaiRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// maxOpenAIInputBytes keeps requests under the ~8191-token limit most OpenAI
// embedding models enforce; this is a byte-count heuristic, not an exact
// tokenizer, so it trims well under the real ceiling.
const maxOpenAIInputBytes = 30000

// GetEmbedding returns an embedding vector for text. OpenAI's embedding
// models don't distinguish indexing from search purposes, so purpose is
// accepted only to satisfy the Provider interface.
func (p *OpenAIProvider) GetEmbedding(text string, _ string) ([]float32, error) {
	if len(text) > maxOpenAIInputBytes {
		text = text[:maxOpenAIInputBytes]
	}

	reqBody := openaiRequest{Input: text, Model: p.model}
	if p.dims > 0 && variableDimModels[p.model] {
		reqBody.Dimensions = p.dims
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, err, "marshal openai request")
	}

	return withRetry("openai", openaiMaxAttempts, openaiRetryBase, func(int) attempt {
		vec, status, err := p.request(body)
		retryable := status == 0 || status == http.StatusTooManyRequests || status >= 500
		return attempt{vec: vec, err: err, retryable: retryable}
	})
}

// request performs a single embedding call, returning the HTTP status
// observed (0 for a network-level failure) so the caller can classify
// retryability. Every error message is passed through redactAPIKey before
// it can reach a log line or CLI output.
func (p *OpenAIProvider) request(body []byte) (vec []float32, statusCode int, err error) {
	req, err := http.NewRequest(http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInvalidRequest, err, "build openai request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	// Attribution headers honored by OpenRouter and similar aggregators.
	req.Header.Set("X-Title", "lmassist")
	req.Header.Set("HTTP-Referer", "https://github.com/langmartai/lmassist")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, apperr.New(apperr.KindUpstreamError, "openai: %s", redactAPIKey(err.Error(), p.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, apperr.New(apperr.KindUpstreamError, "openai returned %d: %s", resp.StatusCode, redactAPIKey(string(respBody), p.apiKey))
	}

	var result openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, apperr.Wrap(apperr.KindUpstreamError, err, "decode openai response")
	}
	if result.Error != nil {
		return nil, resp.StatusCode, apperr.New(apperr.KindUpstreamError, "openai error: %s", redactAPIKey(result.Error.Message, p.apiKey))
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, resp.StatusCode, apperr.New(apperr.KindUpstreamError, "openai returned an empty embedding")
	}
	if err := validateEmbedding(result.Data[0].Embedding, p.dims); err != nil {
		return nil, resp.StatusCode, err
	}
	return result.Data[0].Embedding, resp.StatusCode, nil
}

// redactAPIKey strips a literal API key out of an upstream error message so
// it can never reach a log line or CLI output.
func redactAPIKey(msg, apiKey string) string {
	if apiKey == "" {
		return msg
	}
	return strings.ReplaceAll(msg, apiKey, "[REDACTED]")
}
