package regorus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Dispatcher is the single consumer of the WorkQueue. One goroutine runs
// it; handlers therefore never execute concurrently with each other.
type Dispatcher struct {
	queue *WorkQueue
	h     *handlers

	passes    atomic.Uint64
	processed atomic.Uint64

	metrics MetricsReporter
	logger  *slog.Logger
}

func newDispatcher(queue *WorkQueue, h *handlers, metrics MetricsReporter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		h:       h,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "regorus.dispatcher")),
	}
}

// Run waits for wake-ups and drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Debug("dispatcher started")
	defer d.logger.Debug("dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.queue.signal:
			d.drain()
		}
	}
}

// drain processes items until the queue is empty. Items enqueued while
// draining, including ones produced by handlers, are picked up by the same
// pass.
func (d *Dispatcher) drain() {
	d.passes.Add(1)
	d.metrics.IncDispatchPasses()

	for {
		w, ok := d.queue.pop()
		if !ok {
			return
		}
		d.process(w)
	}
}

// process runs the handler for w and releases w's resources afterwards,
// even if the handler panicked.
func (d *Dispatcher) process(w Work) {
	defer w.release()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("work handler panicked",
				slog.String("kind", w.Kind().String()),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	d.h.dispatch(w)
	d.processed.Add(1)
	d.metrics.IncWorkProcessed(w.Kind().String())
}

// Passes returns the number of drain passes run so far.
func (d *Dispatcher) Passes() uint64 { return d.passes.Load() }

// Processed returns the number of work items handled so far.
func (d *Dispatcher) Processed() uint64 { return d.processed.Load() }
