package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xsplit"
)

// ErrQueueFull is returned by Accept when no space frees up within the send
// timeout. It matches xsplit.ErrRejected.
var ErrQueueFull = fmt.Errorf("%w: queue is full", xsplit.ErrRejected)

// Config controls queue behavior.
type Config struct {
	// Capacity is the number of messages held before Accept blocks (default: 1024).
	Capacity int
	// SendTimeout bounds how long Accept waits for space.
	// 0 waits until the context ends, negative rejects immediately.
	SendTimeout time.Duration
}

// Defaults returns the default queue configuration.
func Defaults() Config {
	return Config{Capacity: 1024}
}

func (c Config) Validate() error {
	if c.Capacity < 1 {
		return errors.New("queue capacity must be >= 1")
	}
	return nil
}

func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	return Config{
		Capacity:    max(1, getInt("capacity", 1024)),
		SendTimeout: getDur("send_timeout", 0),
	}
}

// Queue is a bounded in-memory DirectAcceptor. Split output accepted into it
// is held in order until a consumer receives it.
type Queue struct {
	cfg Config
	ch  chan *xsplit.Message

	metrics *queueMetrics
}

type queueMetrics struct {
	accepted atomic.Uint64
	rejected atomic.Uint64
	received atomic.Uint64
	cleared  atomic.Uint64
}

var _ xsplit.DirectAcceptor = (*Queue)(nil)

// New creates a queue. A non-positive capacity selects the default.
func New(cfg Config) *Queue {
	if cfg.Capacity < 1 {
		cfg.Capacity = Defaults().Capacity
	}
	return &Queue{
		cfg:     cfg,
		ch:      make(chan *xsplit.Message, cfg.Capacity),
		metrics: &queueMetrics{},
	}
}

// Accept enqueues msg, waiting for space as configured by SendTimeout.
func (q *Queue) Accept(ctx context.Context, msg *xsplit.Message) error {
	select {
	case q.ch <- msg:
		q.metrics.accepted.Add(1)
		return nil
	default:
	}

	if q.cfg.SendTimeout < 0 {
		q.metrics.rejected.Add(1)
		return ErrQueueFull
	}

	var timeout <-chan time.Time
	if q.cfg.SendTimeout > 0 {
		timer := time.NewTimer(q.cfg.SendTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case q.ch <- msg:
		q.metrics.accepted.Add(1)
		return nil
	case <-timeout:
		q.metrics.rejected.Add(1)
		return ErrQueueFull
	case <-ctx.Done():
		q.metrics.rejected.Add(1)
		return ctx.Err()
	}
}

// Receive blocks until a message is available or ctx ends.
func (q *Queue) Receive(ctx context.Context) (*xsplit.Message, error) {
	select {
	case m := <-q.ch:
		q.metrics.received.Add(1)
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryReceive returns the next message without blocking.
func (q *Queue) TryReceive() (*xsplit.Message, bool) {
	select {
	case m := <-q.ch:
		q.metrics.received.Add(1)
		return m, true
	default:
		return nil, false
	}
}

// Clear drops all queued messages and returns how many were removed.
func (q *Queue) Clear() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			q.metrics.cleared.Add(uint64(n))
			return n
		}
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Stats returns queue telemetry.
type Stats struct {
	Accepted uint64
	Rejected uint64
	Received uint64
	Cleared  uint64
	Depth    int
}

// Stats returns current queue metrics.
func (q *Queue) Stats() Stats {
	return Stats{
		Accepted: q.metrics.accepted.Load(),
		Rejected: q.metrics.rejected.Load(),
		Received: q.metrics.received.Load(),
		Cleared:  q.metrics.cleared.Load(),
		Depth:    len(q.ch),
	}
}
