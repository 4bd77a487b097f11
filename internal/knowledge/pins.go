package knowledge

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/config"
)

// pinnedFile is the on-disk shape of pinned.json: local document IDs that
// list first in list output and are exempt from document-cache eviction,
// mirroring the teacher's pinned_notes table. Context suggestions do not
// consult pins.
type pinnedFile struct {
	IDs []string `json:"ids"`
}

// pinSet is the in-memory, mutex-guarded view of pinned.json.
type pinSet struct {
	mu   sync.Mutex
	path string
}

func newPinSet() *pinSet {
	return &pinSet{path: config.PinnedPath()}
}

func (p *pinSet) load() (*pinnedFile, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return &pinnedFile{}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIoError, err, "read pinned documents")
	}
	var f pinnedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.Wrap(apperr.KindParseError, err, "parse pinned documents")
	}
	return &f, nil
}

func (p *pinSet) save(f *pinnedFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindIoError, err, "marshal pinned documents")
	}
	return writeFileAtomic(p.path, data)
}

// isPinned reports whether id is pinned. Errors reading pinned.json are
// treated as "nothing pinned" so a corrupt pin file can never prevent cache
// eviction from making progress.
func (p *pinSet) isPinned(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.load()
	if err != nil {
		return false
	}
	for _, existing := range f.IDs {
		if existing == id {
			return true
		}
	}
	return false
}

func (p *pinSet) add(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.load()
	if err != nil {
		return err
	}
	for _, existing := range f.IDs {
		if existing == id {
			return nil
		}
	}
	f.IDs = append(f.IDs, id)
	return p.save(f)
}

func (p *pinSet) remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.load()
	if err != nil {
		return err
	}
	out := f.IDs[:0]
	found := false
	for _, existing := range f.IDs {
		if existing == id {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		return apperr.New(apperr.KindNotFound, "document %s is not pinned", id)
	}
	f.IDs = out
	return p.save(f)
}

func (p *pinSet) list() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.load()
	if err != nil {
		return nil, err
	}
	out := append([]string(nil), f.IDs...)
	sort.Strings(out)
	return out, nil
}

// Pin marks a local document as always-included, verifying it exists first.
func (s *Store) Pin(id string) error {
	if _, err := s.Get(id, ""); err != nil {
		return err
	}
	return s.pins.add(id)
}

// Unpin removes a document's pin.
func (s *Store) Unpin(id string) error {
	return s.pins.remove(id)
}

// IsPinned reports whether a local document is pinned.
func (s *Store) IsPinned(id string) bool {
	return s.pins.isPinned(id)
}

// ListPinned returns the pinned local documents' index entries, in the
// same stable order as their IDs.
func (s *Store) ListPinned() ([]IndexEntry, error) {
	ids, err := s.pins.list()
	if err != nil {
		return nil, err
	}
	entries, err := s.List(Filter{Origin: "local"})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]IndexEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	out := make([]IndexEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
