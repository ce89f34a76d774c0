package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/review-trends/internal/store"
)

// RunStore implements store.RunRepository on SQLite.
type RunStore struct {
	db *sql.DB
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore wraps an opened database.
func NewRunStore(db *sql.DB) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &RunStore{db: db}, nil
}

// StartRun inserts a running record or resets an existing one.
func (s *RunStore) StartRun(ctx context.Context, id, platform string, targets int, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_runs (id, platform, started_at, status, targets)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET platform = excluded.platform,
			started_at = excluded.started_at,
			status = excluded.status,
			targets = excluded.targets,
			finished_at = NULL,
			succeeded = 0,
			failed = 0,
			error_message = NULL`,
		id, platform, formatTime(startedAt), string(store.RunRunning), targets,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// FinishRun marks a run terminal.
func (s *RunStore) FinishRun(ctx context.Context, id string, outcome store.RunOutcome) error {
	var errMsg sql.NullString
	if outcome.Error != nil {
		errMsg = sql.NullString{String: *outcome.Error, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE crawl_runs
		SET finished_at = ?, status = ?, succeeded = ?, failed = ?, error_message = ?
		WHERE id = ?`,
		formatTime(outcome.FinishedAt),
		string(outcome.Status),
		outcome.Succeeded,
		outcome.Failed,
		errMsg,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, id string) (store.CrawlRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, platform, started_at, finished_at, status, targets, succeeded, failed, error_message
		FROM crawl_runs
		WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	var statusArg sql.NullString
	if status != nil {
		statusArg = sql.NullString{String: string(*status), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, started_at, finished_at, status, targets, succeeded, failed, error_message
		FROM crawl_runs
		WHERE (?1 IS NULL OR status = ?1)
		ORDER BY started_at DESC, id DESC
		LIMIT ?2 OFFSET ?3`,
		statusArg, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (store.CrawlRun, error) {
	var (
		run        store.CrawlRun
		status     string
		startedAt  string
		finishedAt sql.NullString
		errMsg     sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Platform,
		&startedAt,
		&finishedAt,
		&status,
		&run.Targets,
		&run.Succeeded,
		&run.Failed,
		&errMsg,
	)
	if err != nil {
		return store.CrawlRun{}, err
	}
	run.Status = store.RunStatus(status)
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return store.CrawlRun{}, err
	}
	if run.FinishedAt, err = parseNullTime(finishedAt, timeLayout); err != nil {
		return store.CrawlRun{}, err
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.ErrorMessage = &msg
	}
	return run, nil
}
