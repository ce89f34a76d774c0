package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-trends/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.StartRun(ctx, "run-1", "ifood", 3, start))
	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, store.RunRunning, run.Status)
	require.Nil(t, run.FinishedAt)
	require.Equal(t, 3, run.Targets)

	msg := "boom"
	require.NoError(t, s.FinishRun(ctx, "run-1", store.RunOutcome{
		FinishedAt: start.Add(time.Minute),
		Status:     store.RunError,
		Succeeded:  1,
		Failed:     2,
		Error:      &msg,
	}))
	run, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, store.RunError, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, 2, run.Failed)
	require.Equal(t, "boom", *run.ErrorMessage)

	_, err = s.GetRun(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.FinishRun(ctx, "missing", store.RunOutcome{}), store.ErrNotFound)
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.StartRun(ctx, "a", "ifood", 1, base))
	require.NoError(t, s.StartRun(ctx, "b", "ifood", 1, base.Add(time.Minute)))
	require.NoError(t, s.StartRun(ctx, "c", "aiqfome", 1, base.Add(2*time.Minute)))
	require.NoError(t, s.FinishRun(ctx, "b", store.RunOutcome{FinishedAt: base, Status: store.RunSuccess}))

	all, err := s.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, runIDs(all))

	running := store.RunRunning
	filtered, err := s.ListRuns(ctx, &running, 10, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, runIDs(filtered))

	page, err := s.ListRuns(ctx, nil, 1, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, runIDs(page))

	empty, err := s.ListRuns(ctx, nil, 10, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func runIDs(runs []store.CrawlRun) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.ID)
	}
	return out
}
