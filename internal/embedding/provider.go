// Package embedding turns text into fixed-dimension vectors for the
// retrieval engine's hybrid search (the Embedder collaborator).
//
// Supported providers:
//   - ollama (default): Local embeddings via Ollama. No API keys, fully private.
//   - openai: OpenAI text-embedding-3-small/large. Requires LM_ASSIST_EMBED_API_KEY.
//   - openai-compatible: Any server that exposes OpenAI-compatible /v1/embeddings
//     (llama.cpp, VLLM, LM Studio, etc.). API key optional.
package embedding

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
)

// Provider generates embedding vectors from text. All providers in a given
// index must produce vectors of the same dimensionality — switching
// providers requires reindexing.
type Provider interface {
	// GetEmbedding returns an embedding vector for the given text. purpose
	// is "document" for indexing or "query" for search.
	GetEmbedding(text string, purpose string) ([]float32, error)

	// GetDocumentEmbedding returns an embedding optimized for document storage.
	GetDocumentEmbedding(text string) ([]float32, error)

	// GetQueryEmbedding returns an embedding optimized for search queries.
	GetQueryEmbedding(text string) ([]float32, error)

	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string

	// Model returns the embedding model name (e.g., "nomic-embed-text").
	Model() string

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// ProviderConfig holds embedding provider settings, sourced from
// internal/config's Config.Embedding.
type ProviderConfig struct {
	Provider   string // "ollama" (default), "openai", "openai-compatible", "none"
	Model      string // model name (provider-specific defaults if empty)
	APIKey     string // API key (required for cloud providers)
	BaseURL    string // base URL (provider-specific defaults if empty)
	Dimensions int    // vector dimensions (0 = provider default)
}

// NewProvider builds the embedding provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "ollama":
		return newOllamaProvider(cfg)
	case "openai", "openai-compatible":
		return newOpenAIProvider(cfg)
	case "none":
		return nil, fmt.Errorf("embedding provider is \"none\" (keyword-only mode)")
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q (supported: ollama, openai, openai-compatible, none)", cfg.Provider)
	}
}

// validateEmbedding rejects an embedding vector of the wrong dimensionality
// or one that is all zeros, which Ollama and OpenAI both return on internal
// failure rather than surfacing an HTTP error.
func validateEmbedding(vec []float32, expectedDims int) error {
	if expectedDims > 0 && len(vec) != expectedDims {
		return apperr.New(apperr.KindUpstreamError, "embedding dimension mismatch: expected %d, got %d", expectedDims, len(vec))
	}
	allZero := true
	for _, v := range vec {
		if math.Float32bits(v) != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return apperr.New(apperr.KindUpstreamError, "embedding is all zeros (provider returned invalid vector)")
	}
	return nil
}

// attempt is the outcome of one try of an embedding request.
type attempt struct {
	vec       []float32
	err       error
	retryable bool
}

// withRetry runs fn up to maxAttempts times with linear backoff (base, 2*base,
// 3*base, ...), stopping as soon as an attempt succeeds or returns a
// non-retryable error. The final failure is wrapped as a KindUpstreamError so
// callers across the indexer/retrieval/generator pipeline can recognize an
// embedder outage without inspecting provider-specific error types.
func withRetry(label string, maxAttempts int, base time.Duration, fn func(attemptNum int) attempt) ([]float32, error) {
	var lastErr error
	for n := 0; n < maxAttempts; n++ {
		if n > 0 {
			delay := time.Duration(n) * base
			fmt.Fprintf(os.Stderr, "lmassist: %s embedding request failed, retrying in %s... (attempt %d/%d)\n", label, delay, n+1, maxAttempts)
			time.Sleep(delay)
		}

		a := fn(n)
		if a.err == nil {
			return a.vec, nil
		}
		if !a.retryable {
			return nil, a.err
		}
		lastErr = a.err
	}
	return nil, apperr.Wrap(apperr.KindUpstreamError, lastErr, "%s embedding request failed after %d attempts", label, maxAttempts)
}
