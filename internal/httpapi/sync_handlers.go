package httpapi

import (
	"net/http"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/sync"
)

// remoteSyncBody names the local project whose fetch remotes are matched
// against peers (spec §4.7's preconditions).
type remoteSyncBody struct {
	Project      string   `json:"project"`
	FetchRemotes []string `json:"fetchRemotes"`
}

func (s *Server) handleRemoteSync(w http.ResponseWriter, r *http.Request) {
	if s.Sync == nil || s.Hub == nil {
		writeErr(w, apperr.New(apperr.KindInvalidRequest, "remote sync is not configured (hub not set up)"))
		return
	}

	var body remoteSyncBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	if err := s.Sync.Start(s.Hub, sync.Project{Path: body.Project, FetchRemotes: body.FetchRemotes}); err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]bool{"started": true})
}

func (s *Server) handleRemoteSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.Sync == nil {
		writeErr(w, apperr.New(apperr.KindInvalidRequest, "remote sync is not configured"))
		return
	}
	writeData(w, http.StatusOK, s.Sync.StatusSnapshot())
}
