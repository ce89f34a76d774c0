// Package dispatcher fans queued crawl runs out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// NewPool builds count workers sharing queue and runner.
func NewPool(queue crawler.Queue, runner crawler.Runner, count int, logger *zap.Logger) *Dispatcher {
	if count < 1 {
		count = 1
	}
	workers := make([]*worker.Worker, 0, count)
	for i := 1; i <= count; i++ {
		workers = append(workers, worker.New(i, queue, runner, logger))
	}
	return New(queue, workers)
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req crawler.Request) error {
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
