package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Crawl run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// ParseRunStatus maps user input onto a RunStatus.
func ParseRunStatus(input string) (RunStatus, error) {
	switch input {
	case "running":
		return RunRunning, nil
	case "success", "succeeded":
		return RunSuccess, nil
	case "error", "failed", "failure":
		return RunError, nil
	default:
		return "", errors.New("invalid status")
	}
}

// CrawlRun models one orchestrator invocation.
type CrawlRun struct {
	// ID is the crawl-run identifier progress is keyed by.
	ID string `json:"run_id"`
	// Platform is the platform tag the run targeted.
	Platform string `json:"platform"`
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Status is running/success/error.
	Status RunStatus `json:"status"`
	// Targets is the deduplicated target count.
	Targets int `json:"targets"`
	// Succeeded and Failed count per-target outcomes.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// ErrorMessage optionally stores the fatal failure reason.
	ErrorMessage *string `json:"error,omitempty"`
}

// RunOutcome is the terminal state written when a run finishes.
type RunOutcome struct {
	FinishedAt time.Time
	Status     RunStatus
	Succeeded  int
	Failed     int
	Error      *string
}

// RunRepository persists crawl-run lifecycle records.
type RunRepository interface {
	// StartRun inserts (or idempotently refreshes) a running record.
	StartRun(ctx context.Context, id, platform string, targets int, startedAt time.Time) error
	// FinishRun marks the run terminal.
	FinishRun(ctx context.Context, id string, outcome RunOutcome) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id string) (CrawlRun, error)
	// ListRuns returns runs filtered by optional status plus limit/offset,
	// newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]CrawlRun, error)
}
