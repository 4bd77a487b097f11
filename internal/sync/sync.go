// Package sync implements remote knowledge sync (spec §4.7): discovering
// peer workstations via the hub, matching projects by normalized git
// remote, mirroring active local-origin knowledge, and flagging vanished
// entries stale rather than deleting them.
package sync

import (
	"sync"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/embedding"
	"github.com/langmartai/lmassist/internal/hub"
	"github.com/langmartai/lmassist/internal/indexer"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/metrics"
	"github.com/langmartai/lmassist/internal/vectorstore"
	"go.uber.org/zap"
)

// Status is the fire-and-forget sync run's pollable state (spec §4.7:
// "sync is fire-and-forget; status is polled through a separate endpoint").
type Status struct {
	Running             bool      `json:"running"`
	StartedAt           time.Time `json:"startedAt,omitempty"`
	FinishedAt          time.Time `json:"finishedAt,omitempty"`
	EntriesSynced       int       `json:"entriesSynced"`
	EntriesSkipped      int       `json:"entriesSkipped"`
	EntriesFlaggedStale int       `json:"entriesFlaggedStale"`
	Error               string    `json:"error,omitempty"`
}

// Project describes the local project being synced: its path and its
// (unnormalized) fetch remotes.
type Project struct {
	Path         string
	FetchRemotes []string
}

// Service runs remote sync passes against the configured hub. One Service
// serializes its own runs (spec §4.7 invariant: mutually exclusive with
// itself, unaffected by other components).
type Service struct {
	Store    *knowledge.Store
	DB       *vectorstore.DB
	Provider embedding.Provider
	Logger   *zap.Logger

	mu     sync.Mutex
	status Status
}

// NewService builds a sync Service. A nil logger is replaced with a no-op.
func NewService(store *knowledge.Store, db *vectorstore.DB, provider embedding.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Store: store, DB: db, Provider: provider, Logger: logger}
}

// StatusSnapshot returns the most recent (or in-flight) run's state.
func (s *Service) StatusSnapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start launches one sync pass in the background, failing fast if a run is
// already in flight.
func (s *Service) Start(hubClient *hub.Client, localProject Project) error {
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		metrics.SyncRunsTotal.WithLabelValues("conflict").Inc()
		return apperr.New(apperr.KindConflict, "remote sync already running")
	}
	s.status = Status{Running: true, StartedAt: time.Now().UTC()}
	s.mu.Unlock()

	go s.run(hubClient, localProject)
	return nil
}

func (s *Service) run(hubClient *hub.Client, localProject Project) {
	result, err := s.syncOnce(hubClient, localProject)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.FinishedAt = time.Now().UTC()
	s.status.EntriesSynced = result.EntriesSynced
	s.status.EntriesSkipped = result.EntriesSkipped
	s.status.EntriesFlaggedStale = result.EntriesFlaggedStale
	if err != nil {
		s.status.Error = err.Error()
		s.Logger.Warn("remote sync pass failed", zap.Error(err))
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
}

type syncResult struct {
	EntriesSynced       int
	EntriesSkipped      int
	EntriesFlaggedStale int
}

func (s *Service) syncOnce(hubClient *hub.Client, localProject Project) (syncResult, error) {
	var total syncResult

	peers, err := hubClient.ListPeers()
	if err != nil {
		return total, err
	}

	localRemotes := NormalizeRemotes(localProject.FetchRemotes)

	for _, peer := range peers {
		projects, err := hubClient.ListPeerProjects(peer.MachineID)
		if err != nil {
			s.Logger.Warn("skipping peer: could not list projects", zap.String("peer", peer.MachineID), zap.Error(err))
			continue
		}

		matched := false
		for _, p := range projects {
			if Intersects(localRemotes, NormalizeRemotes(p.FetchRemotes)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		r, err := s.syncPeer(hubClient, peer)
		if err != nil {
			s.Logger.Warn("peer sync failed", zap.String("peer", peer.MachineID), zap.Error(err))
			continue
		}
		total.EntriesSynced += r.EntriesSynced
		total.EntriesSkipped += r.EntriesSkipped
		total.EntriesFlaggedStale += r.EntriesFlaggedStale
	}

	if err := s.DB.RebuildFtsIndex(); err != nil {
		return total, err
	}
	return total, nil
}

// syncPeer mirrors one peer's active local-origin knowledge into our
// remote-scoped store, per spec §4.7 steps 3-4.
func (s *Service) syncPeer(hubClient *hub.Client, peer hub.Peer) (syncResult, error) {
	var result syncResult

	remoteEntries, err := hubClient.ListPeerKnowledge(peer.MachineID)
	if err != nil {
		return result, err
	}

	localIDs, err := s.Store.GetRemoteKnowledgeIDs(peer.MachineID)
	if err != nil {
		return result, err
	}

	seen := make(map[string]bool, len(remoteEntries))
	for _, re := range remoteEntries {
		seen[re.ID] = true

		existing, err := s.Store.Get(re.ID, peer.MachineID)
		if err == nil {
			if re.UpdatedAt.After(existing.UpdatedAt) {
				if err := s.replaceRemoteDocument(hubClient, peer, re.ID); err != nil {
					s.Logger.Warn("replace stale remote document failed", zap.String("id", re.ID), zap.Error(err))
					continue
				}
				result.EntriesSynced++
			} else {
				result.EntriesSkipped++
			}
			continue
		}
		if k, ok := apperr.KindOf(err); !ok || k != apperr.KindNotFound {
			s.Logger.Warn("check local copy of remote document failed", zap.String("id", re.ID), zap.Error(err))
			continue
		}

		if err := s.fetchAndStore(hubClient, peer, re.ID); err != nil {
			s.Logger.Warn("fetch remote document failed", zap.String("id", re.ID), zap.Error(err))
			continue
		}
		result.EntriesSynced++
	}

	archived := knowledge.StatusArchived
	for id := range localIDs {
		if seen[id] {
			continue
		}
		if _, err := s.Store.Update(id, peer.MachineID, knowledge.Patch{Status: &archived}); err != nil {
			s.Logger.Warn("flag stale remote document failed", zap.String("id", id), zap.Error(err))
			continue
		}
		result.EntriesFlaggedStale++
	}

	return result, nil
}

func (s *Service) fetchAndStore(hubClient *hub.Client, peer hub.Peer, id string) error {
	doc, err := s.fetchDocument(hubClient, peer, id)
	if err != nil {
		return err
	}
	origin := knowledge.Origin{MachineID: peer.MachineID, MachineHostname: peer.Hostname}
	if err := s.Store.StoreRemoteDocument(doc, origin); err != nil {
		return err
	}
	metrics.SyncDocumentsPulled.Inc()
	return indexer.IndexDocument(s.DB, s.Provider, doc)
}

func (s *Service) replaceRemoteDocument(hubClient *hub.Client, peer hub.Peer, id string) error {
	doc, err := s.fetchDocument(hubClient, peer, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteRemoteKnowledge(id, peer.MachineID); err != nil {
		return err
	}
	origin := knowledge.Origin{MachineID: peer.MachineID, MachineHostname: peer.Hostname}
	if err := s.Store.StoreRemoteDocument(doc, origin); err != nil {
		return err
	}
	metrics.SyncDocumentsPulled.Inc()
	return indexer.ReindexDocument(s.DB, s.Provider, doc)
}

func (s *Service) fetchDocument(hubClient *hub.Client, peer hub.Peer, id string) (*knowledge.Document, error) {
	markdown, err := hubClient.GetPeerDocument(peer.MachineID, id)
	if err != nil {
		return nil, err
	}
	doc, err := knowledge.ParseMarkdown(markdown)
	if err != nil {
		return nil, err
	}
	doc.ID = id
	return doc, nil
}
