package vectorstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/langmartai/lmassist/internal/embedding"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// Sentinel values for optional numeric fields, used because sqlite-vec and
// FTS5 infer column types from the first inserted row.
const (
	NoMilestoneIndex = -1
	NoPhase          = -1
)

// RRF tuning constants (reciprocal rank fusion weights).
const (
	rrfK      = 60
	rrfWVec   = 1.0
	rrfWFts   = 0.8
	simFloor  = 0.57
	textLimit = 500
)

// VectorRow is one embedded unit: a session prompt/result, a milestone, or
// a knowledge document's title or one of its parts.
type VectorRow struct {
	ID             int64
	Vector         []float32
	RowType        string // "session", "milestone", "knowledge"
	SessionID      string
	MilestoneIndex int
	KnowledgeID    string
	PartID         string
	ProjectPath    string
	Phase          int
	ContentType    string
	Text           string
	Timestamp      string
}

// entityKey returns the dedup key used by hybridSearch's per-entity fusion,
// per spec: partId (else knowledgeId) for knowledge, sessionId:milestoneIndex
// for milestones, else sessionId.
func (r VectorRow) entityKey() string {
	switch r.RowType {
	case "knowledge":
		if r.PartID != "" {
			return "k:" + r.PartID
		}
		return "k:" + r.KnowledgeID
	case "milestone":
		return "m:" + r.SessionID + ":" + strconv.Itoa(r.MilestoneIndex)
	default:
		return "s:" + r.SessionID
	}
}

// AddItem is the write-side input to AddVectors: everything but the
// embedding, which is computed in batches.
type AddItem struct {
	RowType        string
	SessionID      string
	MilestoneIndex int
	KnowledgeID    string
	PartID         string
	ProjectPath    string
	Phase          int
	ContentType    string
	Text           string
	Timestamp      string
}

const addChunkSize = 50

// AddVectors embeds and appends items in chunks of 50, batching the
// embedding calls per chunk. It does not rebuild the FTS index — call
// RebuildFtsIndex once after the whole pass completes.
func (db *DB) AddVectors(provider embedding.Provider, items []AddItem) error {
	for start := 0; start < len(items); start += addChunkSize {
		end := start + addChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.addChunk(provider, items[start:end]); err != nil {
			return fmt.Errorf("add chunk [%d:%d): %w", start, end, err)
		}
	}
	return nil
}

func (db *DB) addChunk(provider embedding.Provider, chunk []AddItem) error {
	vecs := make([][]float32, len(chunk))
	for i, it := range chunk {
		v, err := provider.GetDocumentEmbedding(it.Text)
		if err != nil {
			return fmt.Errorf("embed item %d: %w", i, err)
		}
		vecs[i] = v
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO vector_rows
		(row_type, session_id, milestone_index, knowledge_id, part_id, project_path, phase, content_type, text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	vecStmt, err := tx.Prepare(`INSERT INTO vector_rows_vec(row_id, embedding) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer vecStmt.Close()

	for i, it := range chunk {
		text := it.Text
		if len(text) > textLimit {
			text = text[:textLimit]
		}
		res, err := stmt.Exec(it.RowType, it.SessionID, it.MilestoneIndex, it.KnowledgeID, it.PartID,
			it.ProjectPath, it.Phase, it.ContentType, text, it.Timestamp)
		if err != nil {
			return err
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		vecData, err := sqlite_vec.SerializeFloat32(vecs[i])
		if err != nil {
			return err
		}
		if _, err := vecStmt.Exec(rowID, vecData); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RebuildFtsIndex rebuilds the FTS5 index from vector_rows. No-op if FTS5 is
// unavailable.
func (db *DB) RebuildFtsIndex() error {
	if !db.ftsAvailable {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(`INSERT INTO vector_rows_fts(vector_rows_fts) VALUES('rebuild')`)
	return err
}

// Filter narrows a search to a row type and, optionally, a project.
type Filter struct {
	RowType     string // "" = no filter
	ProjectPath string // "" = no filter
}

func (f Filter) where(alias string) (string, []any) {
	var conds []string
	var args []any
	if f.RowType != "" {
		conds = append(conds, alias+"row_type = ?")
		args = append(args, f.RowType)
	}
	if f.ProjectPath != "" {
		conds = append(conds, alias+"project_path = ?")
		args = append(args, f.ProjectPath)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// ScoredRow is a VectorRow with its computed relevance score.
type ScoredRow struct {
	VectorRow
	Score float64
}

// Search performs a nearest-neighbour vector search and converts cosine
// distance d in [0, 2] to similarity 1 - d/2 in [0, 1].
func (db *DB) Search(queryVec []float32, limit int, filter Filter) ([]ScoredRow, error) {
	return db.vectorCandidates(queryVec, limit, filter)
}

func (db *DB) vectorCandidates(queryVec []float32, fetchK int, filter Filter) ([]ScoredRow, error) {
	vecData, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("serialize query: %w", err)
	}
	whereExtra, extraArgs := filter.where("n.")

	query := fmt.Sprintf(`
		SELECT n.id, n.row_type, n.session_id, n.milestone_index, n.knowledge_id, n.part_id,
			n.project_path, n.phase, n.content_type, n.text, n.timestamp, v.distance
		FROM vector_rows_vec v
		JOIN vector_rows n ON n.id = v.row_id
		WHERE v.embedding MATCH ? AND k = ?%s
		ORDER BY v.distance`, whereExtra)

	args := append([]any{vecData, fetchK}, extraArgs...)
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []ScoredRow
	for rows.Next() {
		var r VectorRow
		var distance float64
		if err := rows.Scan(&r.ID, &r.RowType, &r.SessionID, &r.MilestoneIndex, &r.KnowledgeID, &r.PartID,
			&r.ProjectPath, &r.Phase, &r.ContentType, &r.Text, &r.Timestamp, &distance); err != nil {
			return nil, err
		}
		similarity := 1 - distance/2
		results = append(results, ScoredRow{VectorRow: r, Score: similarity})
	}
	return results, rows.Err()
}

func (db *DB) ftsCandidates(queryText string, fetchK int, filter Filter) ([]ScoredRow, error) {
	if !db.ftsAvailable || strings.TrimSpace(queryText) == "" {
		return nil, nil
	}
	whereExtra, extraArgs := filter.where("n.")

	query := fmt.Sprintf(`
		SELECT n.id, n.row_type, n.session_id, n.milestone_index, n.knowledge_id, n.part_id,
			n.project_path, n.phase, n.content_type, n.text, n.timestamp, f.rank
		FROM vector_rows_fts f
		JOIN vector_rows n ON n.id = f.rowid
		WHERE vector_rows_fts MATCH ?%s
		ORDER BY f.rank
		LIMIT ?`, whereExtra)

	args := append([]any{ftsQuery(queryText)}, extraArgs...)
	args = append(args, fetchK)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var results []ScoredRow
	for rows.Next() {
		var r VectorRow
		var rank float64
		if err := rows.Scan(&r.ID, &r.RowType, &r.SessionID, &r.MilestoneIndex, &r.KnowledgeID, &r.PartID,
			&r.ProjectPath, &r.Phase, &r.ContentType, &r.Text, &r.Timestamp, &rank); err != nil {
			return nil, err
		}
		results = append(results, ScoredRow{VectorRow: r, Score: -rank})
	}
	return results, rows.Err()
}

// ftsQuery builds an FTS5 MATCH expression that ORs the query's terms,
// quoting each to avoid FTS5 syntax errors on punctuation.
func ftsQuery(text string) string {
	terms := ExtractSearchTerms(text)
	if len(terms) == 0 {
		return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// HybridSearch fuses vector and FTS candidates via reciprocal rank fusion
// (spec §4.4): embed the query, fetch 3*limit candidates from each source,
// drop vector rows under the similarity floor, dedup each list by entity
// key keeping the best score, rank both lists, and combine with
// score = sum(w / (K + rank)) over whichever lists contain the entity.
// When both a vector and FTS row exist for an entity, the vector row (richer
// metadata) is preferred as the representative row.
func (db *DB) HybridSearch(provider embedding.Provider, queryText string, limit int, filter Filter) ([]ScoredRow, error) {
	if limit <= 0 {
		limit = 10
	}
	fetchK := limit * 3

	queryVec, err := provider.GetQueryEmbedding(queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vecCandidates, err := db.vectorCandidates(queryVec, fetchK, filter)
	if err != nil {
		return nil, err
	}
	ftsCandidates, err := db.ftsCandidates(queryText, fetchK, filter)
	if err != nil {
		return nil, err
	}

	// Drop vector rows under the similarity floor.
	var floored []ScoredRow
	for _, r := range vecCandidates {
		if r.Score >= simFloor {
			floored = append(floored, r)
		}
	}

	vecByEntity := dedupBest(floored)
	ftsByEntity := dedupBest(ftsCandidates)

	vecRanked := rankEntities(vecByEntity)
	ftsRanked := rankEntities(ftsByEntity)

	vecRank := make(map[string]int, len(vecRanked))
	for i, key := range vecRanked {
		vecRank[key] = i + 1
	}
	ftsRank := make(map[string]int, len(ftsRanked))
	for i, key := range ftsRanked {
		ftsRank[key] = i + 1
	}

	rows := make(map[string]VectorRow, len(vecByEntity)+len(ftsByEntity))
	for k, r := range ftsByEntity {
		rows[k] = r.VectorRow
	}
	for k, r := range vecByEntity {
		rows[k] = r.VectorRow // vector row preferred when both exist
	}

	allKeys := make(map[string]bool, len(rows))
	for k := range rows {
		allKeys[k] = true
	}

	scored := make([]ScoredRow, 0, len(allKeys))
	for key := range allKeys {
		var score float64
		if rank, ok := vecRank[key]; ok {
			score += rrfWVec / float64(rrfK+rank)
		}
		if rank, ok := ftsRank[key]; ok {
			score += rrfWFts / float64(rrfK+rank)
		}
		scored = append(scored, ScoredRow{VectorRow: rows[key], Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// dedupBest keeps, per entity key, the row with the best (highest) score.
func dedupBest(rows []ScoredRow) map[string]ScoredRow {
	best := make(map[string]ScoredRow)
	for _, r := range rows {
		key := r.entityKey()
		if existing, ok := best[key]; !ok || r.Score > existing.Score {
			best[key] = r
		}
	}
	return best
}

// rankEntities returns entity keys ordered by descending score (rank 1 is
// the best match), used for RRF's rank-based scoring.
func rankEntities(byEntity map[string]ScoredRow) []string {
	keys := make([]string, 0, len(byEntity))
	for k := range byEntity {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return byEntity[keys[i]].Score > byEntity[keys[j]].Score
	})
	return keys
}

// DeleteKnowledge removes all vector rows for a knowledge document.
func (db *DB) DeleteKnowledge(id string) error {
	return db.deleteWhere(`knowledge_id = ?`, id)
}

// DeleteMilestone removes the vector row for one milestone.
func (db *DB) DeleteMilestone(sessionID string, index int) error {
	return db.deleteWhere(`session_id = ? AND milestone_index = ?`, sessionID, index)
}

// DeleteSession removes all vector rows for a session.
func (db *DB) DeleteSession(sessionID string) error {
	return db.deleteWhere(`row_type = 'session' AND session_id = ?`, sessionID)
}

func (db *DB) deleteWhere(cond string, args ...any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	selectQuery := `SELECT id FROM vector_rows WHERE ` + cond
	rows, err := db.conn.Query(selectQuery, args...)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM vector_rows_vec WHERE row_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM vector_rows WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// searchStopWords are common English words filtered from search term
// extraction so short/noise words don't dominate FTS or fuzzy matching.
var searchStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "shall": true, "can": true,
	"of": true, "in": true, "to": true, "for": true, "with": true,
	"on": true, "at": true, "from": true, "by": true, "about": true,
	"as": true, "into": true, "through": true, "during": true,
	"and": true, "or": true, "but": true, "not": true, "so": true,
	"what": true, "how": true, "when": true, "where": true, "which": true,
	"who": true, "whom": true, "this": true, "that": true, "these": true,
	"those": true, "it": true, "its": true, "my": true, "your": true,
	"our": true, "their": true, "i": true, "me": true, "we": true,
	"you": true, "he": true, "she": true, "they": true, "them": true,
	"explain": true, "describe": true, "tell": true, "show": true,
}

var meaningfulShortTerms = map[string]bool{
	"ai": true, "os": true, "pm": true, "qa": true,
	"ui": true, "ux": true, "hr": true, "ml": true,
}

// ExtractSearchTerms extracts meaningful search terms from a natural
// language query, filtering stop words and short terms.
func ExtractSearchTerms(query string) []string {
	words := strings.Fields(query)
	var terms []string
	seen := make(map[string]bool)
	for _, w := range words {
		lower := strings.ToLower(w)
		lower = strings.Trim(lower, ".,;:!?\"'()[]{}")
		if len(lower) < 2 {
			continue
		}
		if len(lower) == 2 && !meaningfulShortTerms[lower] {
			continue
		}
		if searchStopWords[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		terms = append(terms, lower)
	}
	return terms
}
