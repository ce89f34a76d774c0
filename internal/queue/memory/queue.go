// Package memory provides an in-process queue for asynchronous crawl runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/review-trends/internal/crawler"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained, and
// by Enqueue after Close.
var ErrClosed = crawler.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan crawler.Request
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.Request, capacity),
	}
}

// Enqueue pushes a run into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, req crawler.Request) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next run, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Request, error) {
	select {
	case <-ctx.Done():
		return crawler.Request{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return crawler.Request{}, ErrClosed
		}
		return req, nil
	}
}

// Len reports how many runs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
