package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-trends/internal/progress"
	"github.com/JakeFAU/review-trends/internal/publisher/memory"
)

func TestNotifySinkPublishesTerminalEvents(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewNotifySink(pub, "crawl-runs", nil)
	now := time.Now().UTC()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", Stage: progress.StageRunStart, TS: now},
		{RunID: "run-1", Stage: progress.StageTargetDone, TS: now, Target: "x"},
		{RunID: "run-1", Stage: progress.StageRunDone, TS: now, Platform: "ifood", Targets: 3, Succeeded: 2, Failed: 1},
		{RunID: "run-2", Stage: progress.StageRunError, TS: now, Platform: "aiqfome", Note: "boom"},
	}))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "crawl-runs", msgs[0].Topic)
	require.Equal(t, "crawl-runs", msgs[1].Topic)

	done, ok := msgs[0].Payload.(RunNotification)
	require.True(t, ok)
	require.Equal(t, "success", done.Status)
	require.Equal(t, 2, done.Succeeded)
	require.Equal(t, 1, done.Failed)
	require.Empty(t, done.Error)

	failed, ok := msgs[1].Payload.(RunNotification)
	require.True(t, ok)
	require.Equal(t, "error", failed.Status)
	require.Equal(t, "boom", failed.Error)
}

func TestNotifySinkPublishError(t *testing.T) {
	t.Parallel()

	sink := NewNotifySink(failingPublisher{}, "t", nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", Stage: progress.StageRunDone, TS: time.Now()},
	})
	require.ErrorContains(t, err, "publish run notification")
}

func TestNotifySinkWithoutPublisher(t *testing.T) {
	t.Parallel()

	sink := NewNotifySink(nil, "t", nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", Stage: progress.StageRunDone, TS: time.Now()},
	}))
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", assertErr("publish")
}
