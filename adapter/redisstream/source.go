package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xsplit"
)

// ErrNilHandler is returned by Subscribe when no handler is given.
var ErrNilHandler = errors.New("xsplit/redisstream: handler must not be nil")

// Source reads a stream through a consumer group and drives a handler.
type Source struct {
	cfg    Config
	client *redis.Client
	logger *xlog.Logger
	clock  xclock.Clock

	// delivery pool to reduce per-entry allocations
	dpool sync.Pool

	metrics *sourceMetrics
}

type sourceMetrics struct {
	consumed      atomic.Uint64
	acked         atomic.Uint64
	nacked        atomic.Uint64
	deadLettered  atomic.Uint64
	decodeErrors  atomic.Uint64
	consumeErrors atomic.Uint64
	claimed       atomic.Uint64
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithSourceLogger injects a custom xlog logger.
func WithSourceLogger(l *xlog.Logger) SourceOption {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSourceClock injects a custom xclock clock.
func WithSourceClock(c xclock.Clock) SourceOption {
	return func(s *Source) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewSource reads cfg.Stream as consumer cfg.Consumer of cfg.Group.
func NewSource(client *redis.Client, cfg Config, opts ...SourceOption) *Source {
	s := &Source{
		cfg:     cfg,
		client:  client,
		logger:  xlog.Default(),
		clock:   xclock.Default(),
		metrics: &sourceMetrics{},
		dpool: sync.Pool{
			New: func() any { return new(delivery) },
		},
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Subscription is a running consumer. Close stops polling and waits for
// in-flight handlers.
type Subscription struct {
	close func() error
}

func (s *Subscription) Close() error {
	if s.close != nil {
		return s.close()
	}
	return nil
}

// Subscribe starts the poller, worker pool and, when ClaimMinIdle is set,
// the pending-entry claim loop. An entry is acknowledged when h returns nil
// and rejected otherwise.
func (s *Source) Subscribe(ctx context.Context, h xsplit.Handler) (*Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	if s.cfg.AutoCreate {
		start := s.cfg.StartID
		if start == "" {
			start = "$"
		}
		err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, start).Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("create group %s on %s: %w", s.cfg.Group, s.cfg.Stream, err)
		}
	}

	innerCtx, cancel := context.WithCancel(ctx)
	workCh := make(chan *delivery, s.cfg.Concurrency*2)

	workers := &sync.WaitGroup{}
	for i := 0; i < s.cfg.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for d := range workCh {
				s.process(innerCtx, d, h)
				s.releaseDelivery(d)
			}
		}()
	}

	producers := &sync.WaitGroup{}
	producers.Add(1)
	go func() {
		defer producers.Done()
		s.pollerLoop(innerCtx, workCh)
	}()

	if s.cfg.ClaimMinIdle > 0 && s.cfg.ClaimInterval > 0 {
		producers.Add(1)
		go func() {
			defer producers.Done()
			s.claimLoop(innerCtx, workCh)
		}()
	}

	go func() {
		producers.Wait()
		close(workCh)
	}()

	var once sync.Once
	return &Subscription{
		close: func() error {
			once.Do(func() {
				cancel()
				producers.Wait()
				workers.Wait()
			})
			return nil
		},
	}, nil
}

// pollerLoop reads new entries with XREADGROUP and distributes them to workers.
func (s *Source) pollerLoop(ctx context.Context, workCh chan<- *delivery) {
	xArgs := &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    int64(max(1, s.cfg.BatchSize)),
		Block:    s.cfg.Block,
	}

	backoff := 100 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := s.client.XReadGroup(ctx, xArgs).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				// Block timeout
				backoff = 100 * time.Millisecond
				continue
			}

			s.metrics.consumeErrors.Add(1)
			s.logger.With(xlog.Str("stream", s.cfg.Stream), xlog.Dur("backoff", backoff)).
				Warn().Err(err).Msg("xsplit/redisstream: read failed")
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, stream := range res {
			if !s.dispatch(ctx, stream.Messages, workCh) {
				return
			}
		}
	}
}

// claimLoop periodically takes over entries left pending by crashed or
// failing consumers and feeds them back to the workers.
func (s *Source) claimLoop(ctx context.Context, workCh chan<- *delivery) {
	ticker := time.NewTicker(s.cfg.ClaimInterval)
	defer ticker.Stop()

	batch := int64(max(1, s.cfg.ClaimBatch))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: s.cfg.Stream,
			Group:  s.cfg.Group,
			Start:  "-",
			End:    "+",
			Count:  batch,
			Idle:   s.cfg.ClaimMinIdle,
		}).Result()
		if err != nil || len(pending) == 0 {
			continue
		}

		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.ID)
		}

		msgs, err := s.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   s.cfg.Stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			MinIdle:  s.cfg.ClaimMinIdle,
			Messages: ids,
		}).Result()
		if err != nil {
			continue
		}
		s.metrics.claimed.Add(uint64(len(msgs)))
		if !s.dispatch(ctx, msgs, workCh) {
			return
		}
	}
}

// dispatch queues entries for the workers. It reports false when ctx ended.
func (s *Source) dispatch(ctx context.Context, msgs []redis.XMessage, workCh chan<- *delivery) bool {
	for _, x := range msgs {
		d := s.newDelivery()
		d.s = s
		d.group = s.cfg.Group
		d.id = x.ID
		d.vals = x.Values
		d.onceAck = &sync.Once{}

		s.metrics.consumed.Add(1)

		select {
		case workCh <- d:
		case <-ctx.Done():
			s.releaseDelivery(d)
			return false
		}
	}
	return true
}

// process decodes one entry, runs the handler and settles the entry.
func (s *Source) process(ctx context.Context, d *delivery, h xsplit.Handler) {
	start := s.clock.Now()

	msg, err := decodeEntry(d.id, d.vals)
	if err != nil {
		s.metrics.decodeErrors.Add(1)
		s.settle(ctx, d, err)
		return
	}
	d.msg = msg

	err = h(xsplit.InjectAll(ctx, nil, s.logger, s.clock), msg)
	s.settle(ctx, d, err)

	s.logger.With(
		xlog.Str("stream", s.cfg.Stream),
		xlog.Str("entry_id", d.id),
		xlog.Dur("duration", s.clock.Since(start)),
	).Debug().Msg("xsplit/redisstream: entry handled")
}

// settle acks or nacks d. It runs even after ctx is cancelled so that
// in-flight entries are not left pending on shutdown.
func (s *Source) settle(ctx context.Context, d *delivery, reason error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ackTimeout())
	defer cancel()
	lg := s.logger.With(xlog.Str("stream", s.cfg.Stream), xlog.Str("entry_id", d.id))

	if reason == nil {
		if err := d.Ack(actx); err != nil {
			lg.Warn().Err(err).Msg("xsplit/redisstream: ack failed")
		}
		return
	}

	lg.Warn().Err(reason).Msg("xsplit/redisstream: handler failed")
	if err := d.Nack(actx, reason); err != nil {
		lg.Warn().Err(err).Msg("xsplit/redisstream: nack failed")
	}
}

func (s *Source) ackTimeout() time.Duration {
	if s.cfg.AckTimeout > 0 {
		return s.cfg.AckTimeout
	}
	return 5 * time.Second
}

func (s *Source) newDelivery() *delivery {
	return s.dpool.Get().(*delivery)
}

// releaseDelivery returns a delivery to the pool after clearing references.
func (s *Source) releaseDelivery(d *delivery) {
	if d == nil {
		return
	}
	*d = delivery{}
	s.dpool.Put(d)
}

// SourceStats is source telemetry.
type SourceStats struct {
	Consumed      uint64
	Acked         uint64
	Nacked        uint64
	DeadLettered  uint64
	DecodeErrors  uint64
	ConsumeErrors uint64
	Claimed       uint64
}

func (s *Source) Stats() SourceStats {
	return SourceStats{
		Consumed:      s.metrics.consumed.Load(),
		Acked:         s.metrics.acked.Load(),
		Nacked:        s.metrics.nacked.Load(),
		DeadLettered:  s.metrics.deadLettered.Load(),
		DecodeErrors:  s.metrics.decodeErrors.Load(),
		ConsumeErrors: s.metrics.consumeErrors.Load(),
		Claimed:       s.metrics.claimed.Load(),
	}
}
