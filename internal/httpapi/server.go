// Package httpapi serves the HTTP API (spec §6): the external contract
// wrapping internal/knowledge, internal/generator, internal/retrieval, and
// internal/sync behind a uniform {success, data?, error?, meta?} envelope.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/embedding"
	"github.com/langmartai/lmassist/internal/hub"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/metrics"
	"github.com/langmartai/lmassist/internal/sync"
	"github.com/langmartai/lmassist/internal/vectorstore"
	"go.uber.org/zap"
)

// Server wires the knowledge store, vector store, embedding provider, and
// remote sync service behind the HTTP API's router.
type Server struct {
	Store    *knowledge.Store
	DB       *vectorstore.DB
	Provider embedding.Provider
	Sync     *sync.Service
	Hub      *hub.Client // nil when the hub is not configured
	Logger   *zap.Logger

	router   *mux.Router
	generate *generateState
}

// NewServer builds a Server and registers every route.
func NewServer(store *knowledge.Store, db *vectorstore.DB, provider embedding.Provider, syncSvc *sync.Service, hubClient *hub.Client, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		Store: store, DB: db, Provider: provider, Sync: syncSvc, Hub: hubClient, Logger: logger,
		router:   mux.NewRouter(),
		generate: newGenerateState(),
	}
	s.routes()
	return s
}

// ServeHTTP lets *Server itself be used as an http.Handler, including by
// internal/relay's in-process forwarding.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.handle("/knowledge", s.handleListKnowledge, http.MethodGet)
	s.handle("/knowledge", s.handleCreateKnowledge, http.MethodPost)
	s.handle("/knowledge/search", s.handleSearch, http.MethodGet)
	s.handle("/knowledge/generate", s.handleGenerate, http.MethodPost)
	s.handle("/knowledge/generate/all", s.handleGenerateAll, http.MethodPost)
	s.handle("/knowledge/generate/stop", s.handleGenerateStop, http.MethodPost)
	s.handle("/knowledge/generate/status", s.handleGenerateStatus, http.MethodGet)
	s.handle("/knowledge/remote-sync", s.handleRemoteSync, http.MethodPost)
	s.handle("/knowledge/remote-sync/status", s.handleRemoteSyncStatus, http.MethodGet)
	s.handle("/knowledge/{id}/parts/{partId}", s.handleGetPart, http.MethodGet)
	s.handle("/knowledge/{id}", s.handleGetKnowledge, http.MethodGet)
	s.handle("/knowledge/{id}", s.handleUpdateKnowledge, http.MethodPut)
	s.handle("/knowledge/{id}", s.handleDeleteKnowledge, http.MethodDelete)
	s.handle("/context/suggest", s.handleSuggest, http.MethodPost)
	s.handle("/health", s.handleHealth, http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// handle registers route at path for method, wrapped with metrics.Middleware
// so every endpoint reports HTTPRequestsTotal/HTTPRequestDuration under its
// route template rather than the raw (high-cardinality) request path.
func (s *Server) handle(path string, fn http.HandlerFunc, method string) {
	s.router.HandleFunc(path, metrics.Middleware(path, fn)).Methods(method)
}

// envelope is the uniform response shape from spec §6:
// {success, data?, error?, meta?}.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{Success: true, Data: data})
}

func writeDataMeta(w http.ResponseWriter, status int, data, meta any) {
	writeEnvelope(w, status, envelope{Success: true, Data: data, Meta: meta})
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	if kind, ok := apperr.KindOf(err); ok {
		status = statusForKind(kind)
	}
	writeEnvelope(w, status, envelope{Success: false, Error: msg})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidRequest, apperr.KindParseError:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDuplicate, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindInvalidRequest, err, "decode request body")
	}
	return nil
}
