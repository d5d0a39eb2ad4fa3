package flux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsplit"
	"github.com/trickstertwo/xsplit/reactive"
)

// ErrNilHandler is returned by New when no handler is given.
var ErrNilHandler = errors.New("xsplit/flux: handler must not be nil")

// Config controls demand issued per subscription.
type Config struct {
	// Prefetch is the number of messages kept requested ahead of the handler.
	// 0 requests an unbounded amount up front.
	Prefetch int
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{Prefetch: 32}
}

func (c Config) Validate() error {
	if c.Prefetch < 0 {
		return fmt.Errorf("prefetch must be >= 0, got %d", c.Prefetch)
	}
	return nil
}

func ConfigFromMap(cfg map[string]any) Config {
	out := Defaults()
	switch v := cfg["prefetch"].(type) {
	case int:
		out.Prefetch = v
	case int64:
		out.Prefetch = int(v)
	case float64:
		out.Prefetch = int(v)
	}
	return out
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// Channel is a SubscriberTarget delivering split output to a handler.
type Channel struct {
	ctx     context.Context
	cfg     Config
	handler xsplit.Handler
	logger  *xlog.Logger

	mu    sync.Mutex
	flows []*Flow

	metrics *channelMetrics
}

type channelMetrics struct {
	subscriptions atomic.Uint64
	delivered     atomic.Uint64
	handlerErrors atomic.Uint64
	completed     atomic.Uint64
	failed        atomic.Uint64
}

var _ xsplit.SubscriberTarget = (*Channel)(nil)

// New creates a Channel. Every handler call receives ctx; cancelling ctx
// cancels all running flows.
func New(ctx context.Context, cfg Config, h xsplit.Handler, opts ...Option) (*Channel, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Channel{
		ctx:     ctx,
		cfg:     cfg,
		handler: xsplit.RecoveryMiddleware()(h),
		logger:  xlog.Default(),
		metrics: &channelMetrics{},
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c, nil
}

// SubscribeTo subscribes to p and starts delivering its messages.
func (c *Channel) SubscribeTo(p reactive.Publisher[*xsplit.Message]) {
	f := &Flow{ch: c, done: make(chan struct{})}

	c.mu.Lock()
	c.flows = append(c.flows, f)
	c.mu.Unlock()
	c.metrics.subscriptions.Add(1)

	if c.ctx.Err() != nil {
		f.terminate(context.Cause(c.ctx))
	} else {
		stop := context.AfterFunc(c.ctx, f.cancel)
		f.mu.Lock()
		f.stop = stop
		f.mu.Unlock()
		if f.terminated.Load() {
			stop()
		}
	}

	p.Subscribe(f)
}

// Flows returns the flows started so far, oldest first.
func (c *Channel) Flows() []*Flow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Flow(nil), c.flows...)
}

// Wait blocks until every flow started so far has terminated and returns
// their errors joined.
func (c *Channel) Wait(ctx context.Context) error {
	var errs []error
	for _, f := range c.Flows() {
		select {
		case <-f.Done():
			if err := f.Err(); err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}

// Stats returns channel telemetry.
type Stats struct {
	Subscriptions uint64
	Delivered     uint64
	HandlerErrors uint64
	Completed     uint64
	Failed        uint64
}

func (c *Channel) Stats() Stats {
	return Stats{
		Subscriptions: c.metrics.subscriptions.Load(),
		Delivered:     c.metrics.delivered.Load(),
		HandlerErrors: c.metrics.handlerErrors.Load(),
		Completed:     c.metrics.completed.Load(),
		Failed:        c.metrics.failed.Load(),
	}
}

// Flow is the consumer side of one split. Signals for a flow are serialized
// by the publisher, so handler calls never overlap.
type Flow struct {
	ch *Channel

	mu   sync.Mutex
	sub  reactive.Subscription
	stop func() bool

	consumed   int64
	terminated atomic.Bool

	once sync.Once
	done chan struct{}
	err  error
}

var _ reactive.Subscriber[*xsplit.Message] = (*Flow)(nil)

// Done is closed when the flow completes, fails or is cancelled.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Err returns the terminal error, valid after Done is closed.
func (f *Flow) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

func (f *Flow) OnSubscribe(s reactive.Subscription) {
	f.mu.Lock()
	f.sub = s
	f.mu.Unlock()
	if f.terminated.Load() {
		s.Cancel()
		return
	}
	if f.ch.cfg.Prefetch == 0 {
		s.Request(reactive.Unbounded)
		return
	}
	s.Request(int64(f.ch.cfg.Prefetch))
}

func (f *Flow) OnNext(m *xsplit.Message) {
	if f.terminated.Load() {
		return
	}
	if err := f.ch.handler(f.ch.ctx, m); err != nil {
		f.ch.metrics.handlerErrors.Add(1)
		f.ch.logger.With(xlog.Str("correlation_id", m.CorrelationID())).
			Warn().Err(err).Msg("xsplit/flux: handler failed, cancelling split")
		f.subscription().Cancel()
		f.terminate(err)
		return
	}
	f.ch.metrics.delivered.Add(1)
	f.replenish()
}

func (f *Flow) OnError(err error) {
	f.terminate(err)
}

func (f *Flow) OnComplete() {
	f.terminate(nil)
}

// replenish requests a new batch once three quarters of the prefetch window
// has been consumed.
func (f *Flow) replenish() {
	prefetch := int64(f.ch.cfg.Prefetch)
	if prefetch == 0 {
		return
	}
	limit := max(prefetch-prefetch/4, 1)
	f.consumed++
	if f.consumed >= limit {
		n := f.consumed
		f.consumed = 0
		f.subscription().Request(n)
	}
}

func (f *Flow) subscription() reactive.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub
}

// cancel stops the flow from outside the publisher's signal path. A
// subscription arriving later is cancelled by OnSubscribe.
func (f *Flow) cancel() {
	f.terminate(context.Cause(f.ch.ctx))
	if s := f.subscription(); s != nil {
		s.Cancel()
	}
}

func (f *Flow) terminate(err error) {
	f.once.Do(func() {
		f.terminated.Store(true)
		f.err = err
		if err != nil {
			f.ch.metrics.failed.Add(1)
		} else {
			f.ch.metrics.completed.Add(1)
		}
		f.mu.Lock()
		stop := f.stop
		f.mu.Unlock()
		if stop != nil {
			stop()
		}
		close(f.done)
	})
}
