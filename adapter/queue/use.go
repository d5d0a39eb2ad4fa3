package queue

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsplit"
)

// Use builds a Splitter writing into a new Queue and installs it as the
// process-wide default.
//
// Example:
//
//	s, q := queue.Use(queue.Config{Capacity: 4096},
//	    queue.WithLogger(logger),
//	    queue.WithObserver(observer),
//	)
func Use(cfg Config, opts ...Option) (*xsplit.Splitter, *Queue) {
	if cfg.Capacity == 0 {
		cfg.Capacity = Defaults().Capacity
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Errorf("queue.Use: %w", err))
	}
	q := New(cfg)

	sb := xsplit.NewSplitterBuilder().WithOutput(q)
	for _, o := range opts {
		if o != nil {
			o(sb)
		}
	}

	s, err := sb.Build()
	if err != nil {
		panic(fmt.Errorf("queue.Use: %w", err))
	}

	xsplit.SetDefault(s)
	return s, q
}

// Option configures the xsplit.Splitter when calling Use.
type Option func(*xsplit.SplitterBuilder)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithLogger(l) }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithClock(c) }
}

// WithMiddleware adds handler middlewares (retry, timeout, etc).
func WithMiddleware(mw ...xsplit.Middleware) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithMiddleware(mw...) }
}

// WithSendTimeout bounds each delivery on the splitter side.
func WithSendTimeout(d time.Duration) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithSendTimeout(d) }
}

// WithDelimiters makes string payloads splittable.
func WithDelimiters(d string) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithDelimiters(d) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...xsplit.Observer) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithObserver(obs...) }
}

// WithObserverPool configures the async observer pool.
func WithObserverPool(workers, bufferSize int) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithObserverPool(workers, bufferSize) }
}
