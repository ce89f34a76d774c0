package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-trends/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.Request, 1)
	errCh := make(chan error, 1)

	go func() {
		req, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- req
	}()

	require.NoError(t, q.Enqueue(context.Background(), crawler.Request{RunID: "run-1", Platform: crawler.PlatformIFood}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "run-1", got.RunID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return run")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue(1).Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), crawler.Request{RunID: "primed"}))
	require.Equal(t, 1, full.Len())
	err = full.Enqueue(ctx, crawler.Request{RunID: "blocked"})
	require.EqualError(t, err, "enqueue canceled: context canceled")
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), crawler.Request{RunID: "pending"}))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), crawler.Request{RunID: "late"}), ErrClosed)

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pending", got.RunID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
