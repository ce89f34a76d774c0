// Package worker runs queued crawl requests through the orchestrator.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/metrics"
)

// Crawl outcome labels recorded by metrics.ObserveCrawl.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Worker consumes queued runs and executes them one at a time.
type Worker struct {
	id     int
	queue  crawler.Queue
	runner crawler.Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, runner crawler.Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		runner: runner,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queued runs until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, crawler.ErrQueueClosed) {
				w.logger.Info("queue closed; worker exiting")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", req.RunID))
		w.process(ctx, req)
	}
}

// process executes one run synchronously and returns the outcome label.
func (w *Worker) process(ctx context.Context, req crawler.Request) string {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.runner == nil {
		w.logger.Error("no runner configured", zap.String("run_id", req.RunID))
		metrics.ObserveCrawl(StatusFailed)
		return StatusFailed
	}
	result, err := w.runner.Run(ctx, req)
	status := Outcome(result, err)
	metrics.ObserveCrawl(status)
	if err != nil {
		w.logger.Error("crawl run failed", zap.String("run_id", req.RunID), zap.Error(err))
		return status
	}
	w.logger.Info("crawl run processed",
		zap.String("run_id", req.RunID),
		zap.String("status", status),
		zap.Int("succeeded", len(result.Items)),
		zap.Int("failed", len(result.Failed)),
	)
	return status
}

// Outcome classifies a run result for metrics and logs.
func Outcome(result crawler.Result, err error) string {
	switch {
	case err != nil || !result.Success:
		return StatusFailed
	case len(result.Failed) > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}
