// Package retrieval implements the knowledge/milestone retrieval engine
// (spec §4.5) and the context suggester built on top of it (spec §4.6).
package retrieval

import (
	"sort"
	"strings"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/embedding"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/vectorstore"
)

var knowledgeNotFound = apperr.New(apperr.KindNotFound, "knowledge document")

// contentMatchThreshold is the query-length floor above which the
// content-match boost pass runs (spec §4.5 step 3).
const contentMatchThreshold = 15

// contentMatchBoost multiplies a surviving row's score when its referenced
// part's text contains the (lower-cased) query verbatim.
const contentMatchBoost = 2.0

// sweepFloorScore is the minimum score assigned to a part discovered only
// by the orphan-aware content sweep, never already in the result set.
const sweepFloorScore = 0.03

// Result is one enriched knowledge or milestone hit.
type Result struct {
	Row            vectorstore.ScoredRow
	KnowledgeTitle string
	PartTitle      string
	KnowledgeType  string
	Origin         *knowledge.Origin
}

// SearchKnowledge runs the full knowledge retrieval pipeline: hybrid search,
// orphan sweep, content-match boost, enrichment.
func SearchKnowledge(db *vectorstore.DB, store *knowledge.Store, provider embedding.Provider, query string, limit int) ([]Result, error) {
	fetch := fetchSize(limit)

	rows, err := db.HybridSearch(provider, query, fetch, vectorstore.Filter{RowType: "knowledge"})
	if err != nil {
		return nil, err
	}

	docCache := map[string]*knowledge.Document{}
	resolve := func(id string) *knowledge.Document {
		if d, ok := docCache[knowledge.IndexKey("", id)]; ok {
			return d
		}
		if d, err := store.Get(id, ""); err == nil {
			docCache[knowledge.IndexKey("", id)] = d
			return d
		}
		// Vector rows carry no machineId column, so a knowledgeId that
		// isn't a local document may still be a synced-in remote one;
		// fall back to a remote-scoped index lookup by ID.
		if remote, err := findRemoteByID(store, id); err == nil {
			docCache[knowledge.IndexKey("", id)] = remote
			return remote
		}
		docCache[knowledge.IndexKey("", id)] = nil
		return nil
	}

	// Orphan sweep: drop rows whose knowledgeId no longer resolves.
	var survivors []vectorstore.ScoredRow
	for _, r := range rows {
		if resolve(r.KnowledgeID) != nil {
			survivors = append(survivors, r)
		}
	}

	if len(strings.TrimSpace(query)) > contentMatchThreshold {
		survivors = boostAndSweep(survivors, store, docCache, query, limit)
	}

	if limit > 0 && len(survivors) > limit {
		survivors = survivors[:limit]
	}

	out := make([]Result, 0, len(survivors))
	for _, r := range survivors {
		doc := resolve(r.KnowledgeID)
		res := Result{Row: r}
		if doc != nil {
			res.KnowledgeTitle = doc.Title
			res.KnowledgeType = string(doc.Type)
			res.Origin = doc.Origin
			for _, p := range doc.Parts {
				if p.PartID == r.PartID {
					res.PartTitle = p.Title
					break
				}
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// findRemoteByID looks across every remote-origin index entry for one
// matching id, since a knowledgeId alone does not disambiguate which
// machine a synced-in document came from.
func findRemoteByID(store *knowledge.Store, id string) (*knowledge.Document, error) {
	entries, err := store.List(knowledge.Filter{Origin: "remote"})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id && e.Origin != nil {
			return store.Get(id, e.Origin.MachineID)
		}
	}
	return nil, knowledgeNotFound
}

func boostAndSweep(rows []vectorstore.ScoredRow, store *knowledge.Store, docCache map[string]*knowledge.Document, query string, limit int) []vectorstore.ScoredRow {
	lowerQuery := strings.ToLower(query)
	present := make(map[string]bool, len(rows))

	for i := range rows {
		r := &rows[i]
		present[r.PartID] = true
		doc := docCache[knowledge.IndexKey("", r.KnowledgeID)]
		if doc == nil {
			continue
		}
		for _, p := range doc.Parts {
			if p.PartID != r.PartID {
				continue
			}
			if strings.Contains(strings.ToLower(p.Title+" "+p.Summary+" "+p.Content), lowerQuery) {
				r.Score *= contentMatchBoost
			}
			break
		}
	}

	maxScore := sweepFloorScore
	for _, r := range rows {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	fetchLimit := fetchSize(limit)
	entries, err := store.List(knowledge.Filter{})
	if err == nil {
		for _, e := range entries {
			if len(rows) >= fetchLimit*2 {
				break
			}
			doc, derr := store.Get(e.ID, "")
			if derr != nil {
				continue
			}
			for _, p := range doc.Parts {
				if present[p.PartID] {
					continue
				}
				if !strings.Contains(strings.ToLower(p.Title+" "+p.Summary+" "+p.Content), lowerQuery) {
					continue
				}
				present[p.PartID] = true
				rows = append(rows, vectorstore.ScoredRow{
					VectorRow: vectorstore.VectorRow{
						RowType:     "knowledge",
						KnowledgeID: doc.ID,
						PartID:      p.PartID,
						ProjectPath: doc.Project,
						ContentType: "knowledge_part",
						Text:        p.Summary,
					},
					Score: maxScore,
				})
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Timestamp > rows[j].Timestamp
	})
	return rows
}

// fetchSize returns max(limit*2, 15), or 50 when limit is unlimited (<=0).
func fetchSize(limit int) int {
	if limit <= 0 {
		return 50
	}
	if f := limit * 2; f > 15 {
		return f
	}
	return 15
}

// MilestoneResult is one enriched milestone hit.
type MilestoneResult struct {
	Row   vectorstore.ScoredRow
	Title string
}

// SearchMilestones reuses the same hybrid-search skeleton for milestone
// rows (spec §4.5, "the same skeleton is reused for milestones").
func SearchMilestones(db *vectorstore.DB, provider embedding.Provider, query string, limit int) ([]MilestoneResult, error) {
	fetch := fetchSize(limit)
	rows, err := db.HybridSearch(provider, query, fetch, vectorstore.Filter{RowType: "milestone"})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]MilestoneResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, MilestoneResult{Row: r, Title: r.Text})
	}
	return out, nil
}
