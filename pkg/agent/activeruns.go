package agent

import (
	"fmt"
	"sync"

	"github.com/idris/kestrel/internal/observability"
)

// activeRuns is the process-wide registry of in-flight runs: run id to
// cancellation flag, bounded to a maximum concurrent count.
type activeRuns struct {
	mu      sync.Mutex
	entries map[string]*runHandle
	limit   int
}

type runHandle struct {
	cancelled bool
}

func newActiveRuns(limit int) *activeRuns {
	return &activeRuns{
		entries: make(map[string]*runHandle),
		limit:   limit,
	}
}

func (a *activeRuns) register(runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.entries) >= a.limit {
		return fmt.Errorf("too many concurrent runs (limit %d)", a.limit)
	}
	a.entries[runID] = &runHandle{}
	observability.SetActiveRuns(len(a.entries))
	return nil
}

func (a *activeRuns) unregister(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.entries, runID)
	observability.SetActiveRuns(len(a.entries))
}

func (a *activeRuns) cancel(runID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	handle, ok := a.entries[runID]
	if !ok {
		return false
	}
	handle.cancelled = true
	return true
}

func (a *activeRuns) isCancelled(runID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	handle, ok := a.entries[runID]
	return ok && handle.cancelled
}

func (a *activeRuns) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.entries))
	for id := range a.entries {
		out = append(out, id)
	}
	return out
}
