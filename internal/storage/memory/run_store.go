package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/review-trends/internal/store"
)

// RunStore provides an in-memory run registry for development/testing.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]store.CrawlRun
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]store.CrawlRun)}
}

// StartRun records a running run, resetting any previous outcome for the ID.
func (s *RunStore) StartRun(_ context.Context, id, platform string, targets int, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = store.CrawlRun{
		ID:        id,
		Platform:  platform,
		StartedAt: startedAt.UTC(),
		Status:    store.RunRunning,
		Targets:   targets,
	}
	return nil
}

// FinishRun marks a run terminal.
func (s *RunStore) FinishRun(_ context.Context, id string, outcome store.RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	finished := outcome.FinishedAt.UTC()
	run.FinishedAt = &finished
	run.Status = outcome.Status
	run.Succeeded = outcome.Succeeded
	run.Failed = outcome.Failed
	run.ErrorMessage = outcome.Error
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (store.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.CrawlRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, filtered by status when provided.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.CrawlRun, error) {
	s.mu.RLock()
	runs := make([]store.CrawlRun, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return []store.CrawlRun{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}
