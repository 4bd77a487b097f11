package knowledge

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/config"
)

// Store is the knowledge document store: an on-disk index plus per-document
// Markdown files and comment files, fronted by an LRU document cache.
type Store struct {
	ix    *index
	cache *docCache
	pins  *pinSet

	mu         sync.Mutex // serializes index load-mutate-save across all operations
	commentsMu sync.Mutex
}

// NewStore opens the knowledge store rooted at config.KnowledgeDir().
func NewStore() *Store {
	pins := newPinSet()
	return &Store{
		ix:    newIndex(),
		cache: newDocCache(config.DocumentCacheCapacity, pins.isPinned),
		pins:  pins,
	}
}

// CreateInput is the data needed to create a new local document.
type CreateInput struct {
	Title           string
	Type            Type
	Project         string
	Parts           []Part
	SourceSessionID string
	SourceAgentID   string
	SourceTimestamp time.Time
}

// Create allocates a monotonic zero-padded ID and writes a new local
// document, enforcing invariants 3 and 4 (unique sourceAgentId; unique
// (title, sourceSessionId)).
func (s *Store) Create(in CreateInput) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.ix.load()
	if err != nil {
		return nil, err
	}

	if key, ok := findByAgentID(f, in.SourceAgentID); ok {
		return nil, apperr.WithRef(apperr.KindDuplicate, key, "document with sourceAgentId %q already exists", in.SourceAgentID)
	}
	if key, ok := findByTitleAndSession(f, in.Title, in.SourceSessionID); ok {
		return nil, apperr.WithRef(apperr.KindDuplicate, key, "document titled %q for session %q already exists", in.Title, in.SourceSessionID)
	}

	now := time.Now().UTC()
	doc := &Document{
		ID:              s.ix.allocate(f),
		Title:           in.Title,
		Type:            in.Type,
		Project:         in.Project,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		SourceSessionID: in.SourceSessionID,
		SourceAgentID:   in.SourceAgentID,
		SourceTimestamp: in.SourceTimestamp,
		Parts:           in.Parts,
	}
	doc.Renumber()

	if err := s.writeDocument(doc); err != nil {
		return nil, err
	}

	f.Knowledges[IndexKey("", doc.ID)] = entryFromDocument(doc)
	if err := s.ix.save(f); err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateFromMarkdown parses a full document and stores it, allocating a new
// ID when the embedded one is missing, malformed, or already claimed; when
// the embedded ID is valid and free, nextId is advanced past it.
func (s *Store) CreateFromMarkdown(md string) (*Document, error) {
	doc, err := ParseMarkdown(md)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.ix.load()
	if err != nil {
		return nil, err
	}

	key := IndexKey("", doc.ID)
	_, collides := f.Knowledges[key]
	if doc.ID == "" || !idPattern.MatchString(doc.ID) || collides {
		doc.ID = s.ix.allocate(f)
	} else {
		advancePast(f, doc.ID)
	}
	doc.Renumber()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.Before(doc.CreatedAt) {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.Status == "" {
		doc.Status = StatusActive
	}

	if err := s.writeDocument(doc); err != nil {
		return nil, err
	}
	f.Knowledges[IndexKey("", doc.ID)] = entryFromDocument(doc)
	if err := s.ix.save(f); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get returns a document, reading its file only when the on-disk mtime
// exceeds the cached entry's mtime.
func (s *Store) Get(id, machineID string) (*Document, error) {
	key := IndexKey(machineID, id)
	path := DocumentPath(id, machineID)

	if doc := s.cache.get(key, path); doc != nil {
		return doc, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperr.New(apperr.KindNotFound, "document %s", key)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIoError, err, "read document %s", key)
	}
	doc, err := ParseMarkdown(string(data))
	if err != nil {
		return nil, err
	}
	doc.ID = id
	s.cache.put(key, path, doc)
	return doc, nil
}

// List scans the index only, never reading document files.
func (s *Store) List(filter Filter) ([]IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.ix.load()
	if err != nil {
		return nil, err
	}

	var out []IndexEntry
	for _, e := range f.Knowledges {
		if filter.Project != "" && e.Project != filter.Project {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		isRemote := e.Origin != nil
		if filter.Origin == "local" && isRemote {
			continue
		}
		if filter.Origin == "remote" && !isRemote {
			continue
		}
		out = append(out, e)
	}
	s.sortPinnedFirst(out)
	return out, nil
}

// sortPinnedFirst moves pinned entries to the front, preserving their
// original relative order otherwise (and the order of unpinned entries).
func (s *Store) sortPinnedFirst(entries []IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return s.pins.isPinned(entries[i].ID) && !s.pins.isPinned(entries[j].ID)
	})
}

// Patch describes a partial update to a document.
type Patch struct {
	Title  *string
	Type   *Type
	Status *Status
	Parts  *[]Part
}

// Update writes through a clone of the stored document, refusing to
// overwrite one that does not exist, and bumps updatedAt.
func (s *Store) Update(id, machineID string, p Patch) (*Document, error) {
	doc, err := s.Get(id, machineID)
	if err != nil {
		return nil, err
	}
	clone := *doc
	clone.Parts = append([]Part(nil), doc.Parts...)

	if p.Title != nil {
		clone.Title = *p.Title
	}
	if p.Type != nil {
		clone.Type = *p.Type
	}
	if p.Status != nil {
		clone.Status = *p.Status
	}
	if p.Parts != nil {
		clone.Parts = *p.Parts
	}
	clone.Renumber()
	clone.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.ix.load()
	if err != nil {
		return nil, err
	}
	key := IndexKey(machineID, id)
	if _, ok := f.Knowledges[key]; !ok {
		return nil, apperr.New(apperr.KindNotFound, "document %s", key)
	}

	if err := s.writeDocument(&clone); err != nil {
		return nil, err
	}
	s.cache.invalidate(key)
	f.Knowledges[key] = entryFromDocument(&clone)
	if err := s.ix.save(f); err != nil {
		return nil, err
	}
	return &clone, nil
}

// Delete removes a local document's file, comment file, and index entry.
// Remote documents are never deleted this way (invariant 7); the sync loop
// marks them archived instead.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.ix.load()
	if err != nil {
		return err
	}
	key := IndexKey("", id)
	if _, ok := f.Knowledges[key]; !ok {
		return apperr.New(apperr.KindNotFound, "document %s", id)
	}

	_ = os.Remove(DocumentPath(id, ""))
	_ = os.Remove(CommentsPath(id, ""))
	s.cache.invalidate(key)
	delete(f.Knowledges, key)
	return s.ix.save(f)
}

// Resave refreshes the index entry for a document without rewriting its
// file, used for repair when an index entry is stale or missing relative
// to the on-disk document (invariant 5).
func (s *Store) Resave(doc *Document, machineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.ix.load()
	if err != nil {
		return err
	}
	f.Knowledges[IndexKey(machineID, doc.ID)] = entryFromDocument(doc)
	return s.ix.save(f)
}

// FindByAgentID returns the document with the given sourceAgentId, local
// documents only.
func (s *Store) FindByAgentID(agentID string) (*Document, error) {
	s.mu.Lock()
	f, err := s.ix.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	key, ok := findByAgentID(f, agentID)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "document with sourceAgentId %s", agentID)
	}
	return s.Get(key, "")
}

// FindByTitleAndSession returns the local document matching (title,
// sourceSessionId).
func (s *Store) FindByTitleAndSession(title, sessionID string) (*Document, error) {
	s.mu.Lock()
	f, err := s.ix.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	key, ok := findByTitleAndSession(f, title, sessionID)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "document titled %s for session %s", title, sessionID)
	}
	return s.Get(key, "")
}

// FindRemoteKnowledge returns the remote-origin index entries mirrored from
// a given machine, whatever their status, used by the sync loop to compare against a peer's
// list (spec §4.7 step 3).
func (s *Store) FindRemoteKnowledge(machineID string) ([]IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.ix.load()
	if err != nil {
		return nil, err
	}
	var out []IndexEntry
	for _, e := range f.Knowledges {
		if e.Origin != nil && e.Origin.MachineID == machineID {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetRemoteKnowledgeIDs returns the set of document IDs stored locally for
// a given remote machine.
func (s *Store) GetRemoteKnowledgeIDs(machineID string) (map[string]bool, error) {
	entries, err := s.FindRemoteKnowledge(machineID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}
	return ids, nil
}

// DeleteRemoteKnowledge removes a synced-in remote document's file and
// index entry entirely. Unlike Delete, this is legitimate for remote
// documents: it is invoked only when the sync loop is replacing a stale
// copy with a newer one fetched from the same peer, not as a user-facing
// delete (invariant 7 still holds: users can never delete remote documents).
func (s *Store) DeleteRemoteKnowledge(id, machineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.ix.load()
	if err != nil {
		return err
	}
	key := IndexKey(machineID, id)
	if _, ok := f.Knowledges[key]; !ok {
		return apperr.New(apperr.KindNotFound, "remote document %s", key)
	}
	_ = os.Remove(DocumentPath(id, machineID))
	_ = os.Remove(CommentsPath(id, machineID))
	s.cache.invalidate(key)
	delete(f.Knowledges, key)
	return s.ix.save(f)
}

// StoreRemoteDocument writes a full document fetched from a peer under its
// per-machine subdirectory and adds an index entry keyed by (machineId, id).
func (s *Store) StoreRemoteDocument(doc *Document, origin Origin) error {
	doc.Origin = &origin

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeDocument(doc); err != nil {
		return err
	}
	f, err := s.ix.load()
	if err != nil {
		return err
	}
	f.Knowledges[IndexKey(origin.MachineID, doc.ID)] = entryFromDocument(doc)
	return s.ix.save(f)
}

func (s *Store) writeDocument(doc *Document) error {
	machineID := ""
	if doc.Origin != nil {
		machineID = doc.Origin.MachineID
	}
	path := DocumentPath(doc.ID, machineID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.KindIoError, err, "create directory for %s", path)
	}
	return writeFileAtomic(path, []byte(ToMarkdown(doc)))
}
