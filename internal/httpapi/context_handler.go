package httpapi

import (
	"net/http"

	"github.com/langmartai/lmassist/internal/retrieval"
)

type suggestBody struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId"`
	Project   string `json:"project"`
}

// handleSuggest implements "POST /context/suggest | Returns
// {context, tokens, sources}".
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var body suggestBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	suggestion, err := retrieval.Suggest(s.DB, s.Store, s.Provider, retrieval.SuggestInput{
		Prompt: body.Prompt, SessionID: body.SessionID, Project: body.Project,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, suggestion)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
