package httpapi

import (
	"sync"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/generator"
)

// generateStatus is the fire-and-forget batch-generation run's pollable
// state, mirroring internal/sync.Status's "start, then poll" shape.
type generateStatus struct {
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Generated  int       `json:"generated"`
	Errors     int       `json:"errors"`
	Stopped    bool      `json:"stopped"`
	Error      string    `json:"error,omitempty"`
}

// generateState serializes batch-generation runs: at most one in flight.
type generateState struct {
	mu     sync.Mutex
	status generateStatus
}

func newGenerateState() *generateState {
	return &generateState{}
}

func (g *generateState) snapshot() generateStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// start launches one batch generation pass, failing fast if one is already
// running, per the same "mutually exclusive with itself" invariant spec
// §4.7 states for remote sync.
func (g *generateState) start(candidates []generator.Candidate, sink generator.Sink, onDone func()) error {
	g.mu.Lock()
	if g.status.Running {
		g.mu.Unlock()
		return apperr.New(apperr.KindConflict, "batch generation already running")
	}
	g.status = generateStatus{Running: true, StartedAt: time.Now().UTC()}
	g.mu.Unlock()

	go func() {
		result := generator.GenerateAll(candidates, sink)
		g.mu.Lock()
		g.status.Running = false
		g.status.FinishedAt = time.Now().UTC()
		g.status.Generated = result.Generated
		g.status.Errors = result.Errors
		g.status.Stopped = result.Stopped
		g.mu.Unlock()
		if onDone != nil {
			onDone()
		}
	}()
	return nil
}
