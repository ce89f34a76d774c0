package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/review-trends/internal/store"
)

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool querier
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStoreWithPool constructs a RunStore from an existing pool.
func NewRunStoreWithPool(pool querier) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// StartRun inserts a running record or resets an existing one.
func (s *RunStore) StartRun(ctx context.Context, id, platform string, targets int, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, platform, started_at, status, targets)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET platform = EXCLUDED.platform,
			started_at = EXCLUDED.started_at,
			status = EXCLUDED.status,
			targets = EXCLUDED.targets,
			finished_at = NULL,
			succeeded = 0,
			failed = 0,
			error_message = NULL;
	`
	_, err := s.pool.Exec(ctx, query, id, platform, startedAt.UTC(), store.RunRunning, targets)
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// FinishRun marks a run terminal.
func (s *RunStore) FinishRun(ctx context.Context, id string, outcome store.RunOutcome) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, succeeded = $3, failed = $4, error_message = $5
		WHERE id = $6;
	`
	tag, err := s.pool.Exec(ctx, query,
		outcome.FinishedAt.UTC(),
		outcome.Status,
		outcome.Succeeded,
		outcome.Failed,
		outcome.Error,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, id string) (store.CrawlRun, error) {
	query := `
		SELECT id, platform, started_at, finished_at, status, targets, succeeded, failed, error_message
		FROM crawl_runs
		WHERE id = $1;
	`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.CrawlRun, error) {
	query := `
		SELECT id, platform, started_at, finished_at, status, targets, succeeded, failed, error_message
		FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3;
	`
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.CrawlRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.CrawlRun, error) {
	var (
		run    store.CrawlRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Platform,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Targets,
		&run.Succeeded,
		&run.Failed,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.CrawlRun{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
