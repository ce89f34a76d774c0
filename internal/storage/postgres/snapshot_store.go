package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/store"
)

// SnapshotStore implements store.SnapshotRepository using Postgres.
type SnapshotStore struct {
	pool  querier
	ids   crawler.IDGenerator
	clock crawler.Clock
}

var _ store.SnapshotRepository = (*SnapshotStore)(nil)

// NewSnapshotStoreWithPool constructs a store from an existing pool.
func NewSnapshotStoreWithPool(pool querier, ids crawler.IDGenerator, clock crawler.Clock) (*SnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil || clock == nil {
		return nil, fmt.Errorf("id generator and clock are required")
	}
	return &SnapshotStore{pool: pool, ids: ids, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *SnapshotStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts one snapshot row.
func (s *SnapshotStore) Create(ctx context.Context, in store.NewSnapshot) (store.Snapshot, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("generate snapshot id: %w", err)
	}
	snap, err := store.FromNew(id, in, s.clock.Now())
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("invalid snapshot: %w", err)
	}
	query := `
		INSERT INTO scraps (
			id, run_id, establishment, city, state, platform, link,
			reviews, reviews_known, last_review, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err = s.pool.Exec(ctx, query,
		snap.ID,
		nullableText(snap.RunID),
		snap.Establishment,
		snap.City,
		snap.State,
		snap.Platform,
		snap.Link,
		snap.Reviews,
		snap.ReviewsKnown,
		snap.LastReview,
		snap.CreatedAt,
	)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return snap, nil
}

// ListAll returns every snapshot, oldest first.
func (s *SnapshotStore) ListAll(ctx context.Context) ([]store.Snapshot, error) {
	query := `
		SELECT id, COALESCE(run_id, ''), establishment, city, state, platform, link,
			reviews, reviews_known, last_review, created_at
		FROM scraps
		ORDER BY created_at ASC, id ASC;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []store.Snapshot{}
	for rows.Next() {
		var (
			snap       store.Snapshot
			lastReview *time.Time
		)
		err := rows.Scan(
			&snap.ID,
			&snap.RunID,
			&snap.Establishment,
			&snap.City,
			&snap.State,
			&snap.Platform,
			&snap.Link,
			&snap.Reviews,
			&snap.ReviewsKnown,
			&lastReview,
			&snap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if lastReview != nil {
			day := time.Date(lastReview.Year(), lastReview.Month(), lastReview.Day(), 0, 0, 0, 0, time.UTC)
			snap.LastReview = &day
		}
		snap.CreatedAt = snap.CreatedAt.UTC()
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return snaps, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
