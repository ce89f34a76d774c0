package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/store"
)

// SnapshotStore implements store.SnapshotRepository on SQLite.
type SnapshotStore struct {
	db    *sql.DB
	ids   crawler.IDGenerator
	clock crawler.Clock
}

var _ store.SnapshotRepository = (*SnapshotStore)(nil)

// NewSnapshotStore wraps an opened database.
func NewSnapshotStore(db *sql.DB, ids crawler.IDGenerator, clock crawler.Clock) (*SnapshotStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if ids == nil || clock == nil {
		return nil, fmt.Errorf("id generator and clock are required")
	}
	return &SnapshotStore{db: db, ids: ids, clock: clock}, nil
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
	var lastReview sql.NullString
	if snap.LastReview != nil {
		lastReview = sql.NullString{String: snap.LastReview.Format(dayLayout), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scraps (
			id, run_id, establishment, city, state, platform, link,
			reviews, reviews_known, last_review, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		snap.RunID,
		snap.Establishment,
		snap.City,
		snap.State,
		snap.Platform,
		snap.Link,
		snap.Reviews,
		snap.ReviewsKnown,
		lastReview,
		formatTime(snap.CreatedAt),
	)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return snap, nil
}

// ListAll returns every snapshot, oldest first.
func (s *SnapshotStore) ListAll(ctx context.Context) ([]store.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, establishment, city, state, platform, link,
			reviews, reviews_known, last_review, created_at
		FROM scraps
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snaps := []store.Snapshot{}
	for rows.Next() {
		var (
			snap       store.Snapshot
			lastReview sql.NullString
			createdAt  string
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
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if snap.LastReview, err = parseNullTime(lastReview, dayLayout); err != nil {
			return nil, err
		}
		if snap.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return snaps, nil
}
