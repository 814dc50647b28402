// Package dispatcher manages worker fan-out over the analysis queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
	"github.com/JakeFAU/genre-analyzer/internal/metrics"
	"github.com/JakeFAU/genre-analyzer/internal/worker"
)

// ErrQueueFull is returned when the queue cannot accept an item before the enqueue timeout.
var ErrQueueFull = errors.New("queue full")

// lenReporter is implemented by queues that can report their depth.
type lenReporter interface {
	Len() int
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue          analysis.Queue
	workers        []*worker.Worker
	enqueueTimeout time.Duration
}

// New creates a Dispatcher. A non-positive enqueueTimeout makes Enqueue wait on the caller's context only.
func New(queue analysis.Queue, workers []*worker.Worker, enqueueTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		queue:          queue,
		workers:        workers,
		enqueueTimeout: enqueueTimeout,
	}
}

// Run starts all workers and blocks until every worker has returned. Workers return
// when the context finishes or once the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue, bounded by the enqueue timeout.
func (d *Dispatcher) Enqueue(ctx context.Context, item analysis.QueueItem) error {
	enqueueCtx := ctx
	if d.enqueueTimeout > 0 {
		var cancel context.CancelFunc
		enqueueCtx, cancel = context.WithTimeout(ctx, d.enqueueTimeout)
		defer cancel()
	}
	err := d.queue.Enqueue(enqueueCtx, item)
	d.reportDepth()
	if err == nil {
		return nil
	}
	metrics.ObserveQueueRejection()
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("queue enqueue: %w", ErrQueueFull)
	}
	return fmt.Errorf("queue enqueue: %w", err)
}

func (d *Dispatcher) reportDepth() {
	if lr, ok := d.queue.(lenReporter); ok {
		metrics.SetQueueDepth(lr.Len())
	}
}
