package httpapi

import (
	"net/http"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/generator"
	"github.com/langmartai/lmassist/internal/indexer"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/metrics"
	"go.uber.org/zap"
)

// recordGenerateOutcome classifies a generator.Generate/Create error: a
// KindInvalidRequest means generator.Generate itself rejected the candidate
// (too short, or matched a junk-reply pattern), anything else is a harder
// failure (store/index error).
func recordGenerateOutcome(err error) {
	switch {
	case err == nil:
		metrics.GenerateRunsTotal.WithLabelValues("created").Inc()
	default:
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindInvalidRequest {
			metrics.GenerateRunsTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.GenerateRunsTotal.WithLabelValues("error").Inc()
		}
	}
}

// candidateBody mirrors generator.Candidate for the wire: one completed
// explore-type sub-agent record.
type candidateBody struct {
	Prompt      string    `json:"prompt"`
	Description string    `json:"description"`
	Result      string    `json:"result"`
	CompletedAt time.Time `json:"completedAt"`
	SessionID   string    `json:"sessionId"`
	AgentID     string    `json:"agentId"`
	Project     string    `json:"project"`
}

func (c candidateBody) toCandidate() generator.Candidate {
	completedAt := c.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	return generator.Candidate{
		Prompt: c.Prompt, Description: c.Description, Result: c.Result,
		CompletedAt: completedAt, SessionID: c.SessionID, AgentID: c.AgentID, Project: c.Project,
	}
}

// handleGenerate implements "POST /knowledge/generate | One explore → one
// doc": synchronous, since a single candidate finishes fast.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body candidateBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	input, err := generator.Generate(body.toCandidate())
	if err != nil {
		recordGenerateOutcome(err)
		writeErr(w, err)
		return
	}

	doc, err := s.Store.Create(input)
	recordGenerateOutcome(err)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := indexer.IndexDocument(s.DB, s.Provider, doc); err != nil {
		s.Logger.Warn("index generated document failed", zap.Error(err))
	} else if err := s.DB.RebuildFtsIndex(); err != nil {
		s.Logger.Warn("rebuild fts index after generate failed", zap.Error(err))
	}

	writeData(w, http.StatusCreated, doc)
}

type generateAllBody struct {
	Candidates []candidateBody `json:"candidates"`
}

// handleGenerateAll implements "POST /knowledge/generate/all | Batch per
// project or all projects": fire-and-forget, polled via generate/status.
func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	var body generateAllBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	candidates := make([]generator.Candidate, len(body.Candidates))
	for i, c := range body.Candidates {
		candidates[i] = c.toCandidate()
	}
	metrics.GenerateBatchSize.Observe(float64(len(candidates)))

	sink := func(in knowledge.CreateInput) error {
		doc, err := s.Store.Create(in)
		recordGenerateOutcome(err)
		if err != nil {
			return err
		}
		if err := indexer.IndexDocument(s.DB, s.Provider, doc); err != nil {
			s.Logger.Warn("index batch-generated document failed", zap.Error(err))
		}
		return nil
	}

	onDone := func() {
		if err := s.DB.RebuildFtsIndex(); err != nil {
			s.Logger.Warn("rebuild fts index after batch generation failed", zap.Error(err))
		}
	}
	if err := s.generate.start(candidates, sink, onDone); err != nil {
		writeErr(w, err)
		return
	}

	writeData(w, http.StatusAccepted, map[string]bool{"started": true})
}

func (s *Server) handleGenerateStop(w http.ResponseWriter, r *http.Request) {
	generator.RequestStop()
	writeData(w, http.StatusOK, map[string]bool{"stopRequested": true})
}

func (s *Server) handleGenerateStatus(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.generate.snapshot())
}
