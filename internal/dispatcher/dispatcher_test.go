package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/queue/memory"
	"github.com/JakeFAU/review-trends/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	dispatch := New(queue, []*worker.Worker{worker.New(1, queue, nil, zap.NewNop())})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestNewPoolRunsEnqueuedRequests(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(4)
	runner := &chanRunner{done: make(chan string, 4)}
	dispatch := NewPool(queue, runner, 2, nil)
	require.Len(t, dispatch.workers, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatch.Run(ctx)

	require.NoError(t, dispatch.Enqueue(ctx, crawler.Request{RunID: "run-a"}))
	require.NoError(t, dispatch.Enqueue(ctx, crawler.Request{RunID: "run-b"}))

	seen := map[string]bool{}
	for range 2 {
		select {
		case id := <-runner.done:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("queued run was not processed")
		}
	}
	require.Equal(t, map[string]bool{"run-a": true, "run-b": true}, seen)
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("boom")}, nil)

	err := dispatch.Enqueue(context.Background(), crawler.Request{RunID: "run"})
	require.EqualError(t, err, "queue enqueue: boom")
}

type chanRunner struct {
	done chan string
}

func (r *chanRunner) Run(_ context.Context, req crawler.Request) (crawler.Result, error) {
	r.done <- req.RunID
	return crawler.Result{RunID: req.RunID, Success: true}, nil
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, crawler.Request) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (crawler.Request, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return crawler.Request{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, crawler.Request) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (crawler.Request, error) {
	return crawler.Request{}, nil
}
