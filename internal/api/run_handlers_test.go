package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-trends/internal/progress"
	"github.com/JakeFAU/review-trends/internal/store"
	storageMemory "github.com/JakeFAU/review-trends/internal/storage/memory"
)

func newTestTracker(t *testing.T) *progress.Tracker {
	t.Helper()
	tracker, err := progress.NewTracker(16)
	require.NoError(t, err)
	return tracker
}

func seedRuns(t *testing.T) *storageMemory.RunStore {
	t.Helper()
	ctx := context.Background()
	repo := storageMemory.NewRunStore()
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.StartRun(ctx, "run-old", "ifood", 2, base))
	require.NoError(t, repo.FinishRun(ctx, "run-old", store.RunOutcome{
		FinishedAt: base.Add(time.Minute),
		Status:     store.RunSuccess,
		Succeeded:  2,
	}))
	require.NoError(t, repo.StartRun(ctx, "run-new", "aiqfome", 5, base.Add(time.Hour)))
	return repo
}

func getJSON(t *testing.T, server *Server, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestRunHandler_ListRuns(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{Runs: seedRuns(t)})

	var body struct {
		Runs []store.CrawlRun `json:"runs"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, server, "/v1/runs", &body))
	require.Len(t, body.Runs, 2)
	require.Equal(t, "run-new", body.Runs[0].ID)

	body.Runs = nil
	require.Equal(t, http.StatusOK, getJSON(t, server, "/v1/runs?status=succeeded", &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "run-old", body.Runs[0].ID)

	body.Runs = nil
	require.Equal(t, http.StatusOK, getJSON(t, server, "/v1/runs?limit=1&offset=1", &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "run-old", body.Runs[0].ID)
}

func TestRunHandler_ListRunsInvalidQuery(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{Runs: seedRuns(t)})
	for _, path := range []string{"/v1/runs?status=bogus", "/v1/runs?limit=0", "/v1/runs?offset=-1", "/v1/runs?limit=abc"} {
		require.Equal(t, http.StatusBadRequest, getJSON(t, server, path, nil), path)
	}
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, newTestServer(Deps{}), "/v1/runs", nil))
}

func TestRunHandler_GetRun(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{Runs: seedRuns(t)})

	var body struct {
		Run store.CrawlRun `json:"run"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, server, "/v1/runs/run-old", &body))
	require.Equal(t, store.RunSuccess, body.Run.Status)
	require.Equal(t, 2, body.Run.Succeeded)
	require.NotNil(t, body.Run.FinishedAt)

	require.Equal(t, http.StatusNotFound, getJSON(t, server, "/v1/runs/missing", nil))
}

func TestRunHandler_GetProgress(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	tracker.Start("run-live")
	tracker.Advance("run-live", 40)
	server := newTestServer(Deps{Runs: seedRuns(t), Tracker: tracker})

	var live progressDTO
	require.Equal(t, http.StatusOK, getJSON(t, server, "/v1/runs/run-live/progress", &live))
	require.Equal(t, progressDTO{RunID: "run-live", Percentage: 40, Running: true}, live)

	var finished progressDTO
	require.Equal(t, http.StatusOK, getJSON(t, server, "/v1/runs/run-old/progress", &finished))
	require.Equal(t, progressDTO{RunID: "run-old", Percentage: 100, Running: false}, finished)

	var running progressDTO
	require.Equal(t, http.StatusOK, getJSON(t, server, "/v1/runs/run-new/progress", &running))
	require.Equal(t, progressDTO{RunID: "run-new", Percentage: 0, Running: true}, running)

	require.Equal(t, http.StatusNotFound, getJSON(t, server, "/v1/runs/nope/progress", nil))
}
