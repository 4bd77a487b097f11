package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/indexer"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/metrics"
	"go.uber.org/zap"
)

// recordOp increments KnowledgeOpsTotal for op with an "ok" or "error"
// outcome, depending on whether err is nil.
func recordOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.KnowledgeOpsTotal.WithLabelValues(op, outcome).Inc()
}

// machineIDFromRequest returns the machineId scoping a lookup to a remote
// document, or "" for a local one ("" matches internal/knowledge.Store's
// own convention of treating an empty machineId as "local").
func machineIDFromRequest(r *http.Request) string {
	return r.URL.Query().Get("machineId")
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := knowledge.Filter{
		Project: q.Get("project"),
		Type:    knowledge.Type(q.Get("type")),
		Status:  knowledge.Status(q.Get("status")),
		Origin:  q.Get("origin"),
	}
	entries, err := s.Store.List(filter)
	recordOp("list", err)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := s.Store.Get(id, machineIDFromRequest(r))
	recordOp("get", err)
	if err != nil {
		writeErr(w, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		writeData(w, http.StatusOK, map[string]string{"markdown": knowledge.ToMarkdown(doc)})
		return
	}
	writeData(w, http.StatusOK, doc)
}

func (s *Server) handleGetPart(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := s.Store.Get(vars["id"], machineIDFromRequest(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, p := range doc.Parts {
		if p.PartID == vars["partId"] {
			writeData(w, http.StatusOK, p)
			return
		}
	}
	writeErr(w, apperr.New(apperr.KindNotFound, "part %q not found on document %q", vars["partId"], vars["id"]))
}

// createKnowledgeBody accepts either a structured body (mirroring
// knowledge.CreateInput) or {"markdown": "..."} raw Markdown, per spec §6's
// "POST /knowledge | Create (structured body or raw Markdown)".
type createKnowledgeBody struct {
	Markdown        string           `json:"markdown,omitempty"`
	Title           string           `json:"title,omitempty"`
	Type            knowledge.Type   `json:"type,omitempty"`
	Project         string           `json:"project,omitempty"`
	Parts           []knowledge.Part `json:"parts,omitempty"`
	SourceSessionID string           `json:"sourceSessionId,omitempty"`
	SourceAgentID   string           `json:"sourceAgentId,omitempty"`
}

func (s *Server) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var body createKnowledgeBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	var doc *knowledge.Document
	var err error
	if body.Markdown != "" {
		doc, err = s.Store.CreateFromMarkdown(body.Markdown)
	} else {
		doc, err = s.Store.Create(knowledge.CreateInput{
			Title: body.Title, Type: body.Type, Project: body.Project, Parts: body.Parts,
			SourceSessionID: body.SourceSessionID, SourceAgentID: body.SourceAgentID,
		})
	}
	recordOp("create", err)
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := indexer.IndexDocument(s.DB, s.Provider, doc); err != nil {
		s.Logger.Warn("index newly created document failed", zap.Error(err))
	} else if err := s.DB.RebuildFtsIndex(); err != nil {
		s.Logger.Warn("rebuild fts index after create failed", zap.Error(err))
	}

	writeData(w, http.StatusCreated, doc)
}

type updateKnowledgeBody struct {
	Title  *string          `json:"title,omitempty"`
	Type   *knowledge.Type  `json:"type,omitempty"`
	Status *knowledge.Status `json:"status,omitempty"`
	Parts  *[]knowledge.Part `json:"parts,omitempty"`
}

func (s *Server) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body updateKnowledgeBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	doc, err := s.Store.Update(id, "", knowledge.Patch{
		Title: body.Title, Type: body.Type, Status: body.Status, Parts: body.Parts,
	})
	recordOp("update", err)
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := indexer.ReindexDocument(s.DB, s.Provider, doc); err != nil {
		s.Logger.Warn("reindex updated document failed", zap.Error(err))
	} else if err := s.DB.RebuildFtsIndex(); err != nil {
		s.Logger.Warn("rebuild fts index after update failed", zap.Error(err))
	}

	writeData(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.Store.Delete(id)
	recordOp("delete", err)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.DB.DeleteKnowledge(id); err != nil {
		s.Logger.Warn("delete vectors for deleted document failed", zap.Error(err))
	} else if err := s.DB.RebuildFtsIndex(); err != nil {
		s.Logger.Warn("rebuild fts index after delete failed", zap.Error(err))
	}
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
