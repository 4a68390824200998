package server

import (
	"sort"
	"sync"

	"wcisim/internal/sim"
	"wcisim/internal/supply"
)

// StoredRun is one completed run held for querying.
type StoredRun struct {
	Result *sim.Result
	Series []supply.Series
}

// RunStore is the in-memory index of completed runs. Safe for concurrent use
// by the serve loop and request handlers.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]StoredRun
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]StoredRun)}
}

func (s *RunStore) Put(run StoredRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Result.RunID] = run
}

func (s *RunStore) Get(runID string) (StoredRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	return run, ok
}

// IDs returns all stored run IDs, sorted for stable listings.
func (s *RunStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
