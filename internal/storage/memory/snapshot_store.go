package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/store"
)

// SnapshotStore keeps snapshots in-memory for development/testing.
type SnapshotStore struct {
	mu    sync.RWMutex
	snaps []store.Snapshot
	ids   crawler.IDGenerator
	clock crawler.Clock
}

var _ store.SnapshotRepository = (*SnapshotStore)(nil)

// NewSnapshotStore constructs a SnapshotStore.
func NewSnapshotStore(ids crawler.IDGenerator, clock crawler.Clock) *SnapshotStore {
	return &SnapshotStore{ids: ids, clock: clock}
}

// Create validates and appends a snapshot.
func (s *SnapshotStore) Create(_ context.Context, in store.NewSnapshot) (store.Snapshot, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("generate snapshot id: %w", err)
	}
	snap, err := store.FromNew(id, in, s.clock.Now())
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("invalid snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return snap, nil
}

// ListAll returns a copy of every stored snapshot in insertion order.
func (s *SnapshotStore) ListAll(_ context.Context) ([]store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Snapshot, len(s.snaps))
	copy(out, s.snaps)
	return out, nil
}
