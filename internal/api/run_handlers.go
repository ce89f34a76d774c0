package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	runTimeout      = 3 * time.Second
)

// RunHandler exposes read-only crawl run endpoints.
type RunHandler struct {
	repo    store.RunRepository
	tracker ProgressReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the run registry, progress tracker and logger.
func NewRunHandler(repo store.RunRepository, tracker ProgressReader, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		repo:    repo,
		tracker: tracker,
		timeout: runTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It returns
// {"runs": [...]} newest first, 400 for invalid filters, 503 when the
// registry is unavailable, or 500 if the repository call fails.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run registry unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.RunStatus
	if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))); raw != "" {
		parsed, parseErr := store.ParseRunStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	runs, err := h.repo.ListRuns(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.CrawlRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}}, or 404 when
// the registry has never seen the run.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run registry unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

type progressDTO struct {
	RunID      string `json:"run_id"`
	Percentage int    `json:"percentage"`
	Running    bool   `json:"running"`
}

// GetProgress handles GET /v1/runs/{run_id}/progress. Live tracker state wins;
// runs evicted from the tracker fall back to the registry, where a finished
// run reads as 100.
func (h *RunHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.tracker != nil {
		if st, ok := h.tracker.Get(runID); ok {
			writeJSON(w, http.StatusOK, progressDTO{RunID: runID, Percentage: st.Percentage, Running: st.Running})
			return
		}
	}
	if h.repo == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("load run progress failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	dto := progressDTO{RunID: runID, Running: run.Status == store.RunRunning}
	if !dto.Running {
		dto.Percentage = 100
	}
	writeJSON(w, http.StatusOK, dto)
}

func parseRunID(r *http.Request) (string, error) {
	runID := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if runID == "" {
		return "", errors.New("run_id is required")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
