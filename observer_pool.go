package xsplit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// PoolStats reports observer pool telemetry.
type PoolStats struct {
	Dropped      uint64 // events lost to a full buffer
	Processed    uint64
	Panicked     uint64 // observer calls that panicked
	ActiveEvents int    // queued, not yet dispatched
	Workers      int
	BufferSize   int
}

type observerJob struct {
	event     Event
	observers []Observer
}

// ObserverPool fans events out to observers on worker goroutines so emission
// never waits on an observer. Notify drops events when the buffer is full.
type ObserverPool struct {
	jobs    chan observerJob
	workers int
	stop    context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool

	dropped   atomic.Uint64
	processed atomic.Uint64
	panicked  atomic.Uint64
}

// NewObserverPool starts workers dispatch goroutines behind a buffer of
// bufferSize events. Cancelling ctx has the same effect as Close without
// waiting. Non-positive arguments select 4 workers and 1024 slots.
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1024
	}

	ctx, stop := context.WithCancel(ctx)
	op := &ObserverPool{
		jobs:    make(chan observerJob, bufferSize),
		workers: workers,
		stop:    stop,
	}
	op.wg.Add(workers)
	for range workers {
		go op.run(ctx)
	}
	return op
}

// Notify queues e for observers. It never blocks. The caller must not modify
// observers afterwards.
func (op *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 || op.closed.Load() {
		return
	}
	select {
	case op.jobs <- observerJob{event: e, observers: observers}:
	default:
		op.dropped.Add(1)
	}
}

// run dispatches until ctx ends, then empties whatever is still buffered.
func (op *ObserverPool) run(ctx context.Context) {
	defer op.wg.Done()
	for {
		select {
		case job := <-op.jobs:
			op.dispatch(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-op.jobs:
					op.dispatch(job)
				default:
					return
				}
			}
		}
	}
}

func (op *ObserverPool) dispatch(job observerJob) {
	for _, obs := range job.observers {
		if obs != nil {
			op.call(obs, job.event)
		}
	}
	op.processed.Add(1)
}

func (op *ObserverPool) call(obs Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			op.panicked.Add(1)
		}
	}()
	obs.OnEvent(e)
}

// Close stops accepting events and waits up to timeout for buffered events
// to be dispatched. Later calls are no-ops.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op == nil || op.closed.Swap(true) {
		return nil
	}
	op.stop()

	drained := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(drained)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-drained:
		return nil
	case <-t.C:
		return ErrObserverPoolShutdownTimeout
	}
}

func (op *ObserverPool) Stats() PoolStats {
	if op == nil {
		return PoolStats{}
	}
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		Panicked:     op.panicked.Load(),
		ActiveEvents: len(op.jobs),
		Workers:      op.workers,
		BufferSize:   cap(op.jobs),
	}
}
