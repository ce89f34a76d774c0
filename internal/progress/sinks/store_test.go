package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-trends/internal/progress"
	"github.com/JakeFAU/review-trends/internal/store"
)

// TestStoreSinkPersistsRuns ensures lifecycle events reach the repository and target events do not.
func TestStoreSinkPersistsRuns(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	now := time.Now().UTC()

	batch := []progress.Event{
		{RunID: "run-1", Stage: progress.StageRunStart, TS: now, Platform: "aiqfome", Targets: 2},
		{RunID: "run-1", Stage: progress.StageTargetDone, TS: now, Target: "https://aiqfome.com/x"},
		{RunID: "run-1", Stage: progress.StageRunDone, TS: now.Add(time.Second), Succeeded: 1, Failed: 1},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []string{"run-1"}, repo.starts)
	require.Equal(t, "aiqfome", repo.platform)
	require.Equal(t, 2, repo.targets)
	require.Len(t, repo.finishes, 1)
	out := repo.finishes[0]
	require.Equal(t, store.RunSuccess, out.Status)
	require.Equal(t, 1, out.Succeeded)
	require.Equal(t, 1, out.Failed)
	require.Nil(t, out.Error)
}

// TestStoreSinkRecordsErrorRuns maps RUN_ERROR notes onto the error message.
func TestStoreSinkRecordsErrorRuns(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-2", Stage: progress.StageRunError, TS: time.Now(), Note: "session start failed"},
	}))
	require.Len(t, repo.finishes, 1)
	require.Equal(t, store.RunError, repo.finishes[0].Status)
	require.NotNil(t, repo.finishes[0].Error)
	require.Equal(t, "session start failed", *repo.finishes[0].Error)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-3", Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.Error(t, err)
}

type fakeRunRepo struct {
	fail     bool
	starts   []string
	platform string
	targets  int
	finishes []store.RunOutcome
}

func (f *fakeRunRepo) StartRun(_ context.Context, id, platform string, targets int, _ time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.starts = append(f.starts, id)
	f.platform = platform
	f.targets = targets
	return nil
}

func (f *fakeRunRepo) FinishRun(_ context.Context, _ string, outcome store.RunOutcome) error {
	if f.fail {
		return assertErr("finish")
	}
	f.finishes = append(f.finishes, outcome)
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, string) (store.CrawlRun, error) {
	return store.CrawlRun{}, assertErr("read")
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.CrawlRun, error) {
	return nil, assertErr("list")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
