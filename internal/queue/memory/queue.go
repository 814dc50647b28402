// Package memory provides the bounded in-process work queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
)

// ErrClosed is returned by Enqueue and Dequeue after Close.
var ErrClosed = analysis.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan analysis.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan analysis.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns once the context ends.
// Callers bound the wait with a short deadline to get backpressure instead of blocking.
func (q *Queue) Enqueue(ctx context.Context, item analysis.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (analysis.QueueItem, error) {
	select {
	case <-ctx.Done():
		return analysis.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return analysis.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close closes the underlying channel for shutdown. Items already queued can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
