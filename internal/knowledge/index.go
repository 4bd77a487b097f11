package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/config"
)

// idPattern matches a valid local document ID, "K" followed by digits.
var idPattern = regexp.MustCompile(`^K\d+$`)

// indexFile is the on-disk shape of index.json.
type indexFile struct {
	Knowledges map[string]IndexEntry `json:"knowledges"`
	NextID     int                   `json:"nextId"`
}

// index is the in-memory, mutex-guarded view of index.json. All mutations
// go through load-mutate-save under Store.mu so concurrent CLI/HTTP/sync
// callers never race on the file.
type index struct {
	mu   sync.Mutex
	path string
}

func newIndex() *index {
	return &index{path: config.IndexPath()}
}

func (ix *index) load() (*indexFile, error) {
	data, err := os.ReadFile(ix.path)
	if os.IsNotExist(err) {
		return &indexFile{Knowledges: make(map[string]IndexEntry), NextID: 1}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIoError, err, "read index")
	}
	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.Wrap(apperr.KindParseError, err, "parse index")
	}
	if f.Knowledges == nil {
		f.Knowledges = make(map[string]IndexEntry)
	}
	if f.NextID == 0 {
		f.NextID = 1
	}
	return &f, nil
}

func (ix *index) save(f *indexFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindIoError, err, "marshal index")
	}
	return writeFileAtomic(ix.path, data)
}

// allocate reserves and returns the next local document ID, bumping nextId.
// Caller must hold Store.mu.
func (ix *index) allocate(f *indexFile) string {
	id := fmt.Sprintf("K%03d", f.NextID)
	f.NextID++
	return id
}

// advancePast bumps nextId so it is strictly greater than the numeric
// component of id, used when createFromMarkdown encounters a valid,
// unclaimed embedded ID (spec §4.2).
func advancePast(f *indexFile, id string) {
	if !idPattern.MatchString(id) {
		return
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, "K"))
	if err != nil {
		return
	}
	if n+1 > f.NextID {
		f.NextID = n + 1
	}
}

// findByAgentID returns the index key of the local document with the given
// sourceAgentId, if any (invariant 3: unique across local documents).
func findByAgentID(f *indexFile, agentID string) (string, bool) {
	if agentID == "" {
		return "", false
	}
	for key, e := range f.Knowledges {
		if e.Origin == nil && e.SourceAgentID == agentID {
			return key, true
		}
	}
	return "", false
}

// findByTitleAndSession returns the index key of the local document matching
// (title, sourceSessionId), if any (invariant 4).
func findByTitleAndSession(f *indexFile, title, sessionID string) (string, bool) {
	if title == "" || sessionID == "" {
		return "", false
	}
	for key, e := range f.Knowledges {
		if e.Origin == nil && e.Title == title && e.SourceSessionID == sessionID {
			return key, true
		}
	}
	return "", false
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindIoError, err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Wrap(apperr.KindIoError, err, "rename %s", tmp)
	}
	return nil
}

func entryFromDocument(d *Document) IndexEntry {
	return IndexEntry{
		ID:              d.ID,
		Title:           d.Title,
		Type:            d.Type,
		Project:         d.Project,
		Status:          d.Status,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		SourceSessionID: d.SourceSessionID,
		SourceAgentID:   d.SourceAgentID,
		PartCount:       len(d.Parts),
		Origin:          d.Origin,
	}
}
