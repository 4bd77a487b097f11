package httpapi

import (
	"net/http"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/retrieval"
)

// handleSearch implements "GET /knowledge/search?query=…&limit=…" against
// the retrieval engine.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeErr(w, apperr.New(apperr.KindInvalidRequest, "query parameter is required"))
		return
	}
	limit := parseLimit(r, 10)

	results, err := retrieval.SearchKnowledge(s.DB, s.Store, s.Provider, query, limit)
	recordOp("search", err)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeDataMeta(w, http.StatusOK, results, map[string]int{"count": len(results)})
}
