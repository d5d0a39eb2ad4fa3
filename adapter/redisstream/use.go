package redisstream

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsplit"
)

// Use connects to Redis, builds a Splitter writing into cfg.Stream and
// installs it as the process-wide default. It panics if Redis is unreachable,
// which suits services that must not start without their output.
//
// The returned client is shared with the acceptor; close it on shutdown.
//
//	s, client := redisstream.Use(cfg, redisstream.WithLogger(logger))
//	defer client.Close()
//	sub, _ := redisstream.NewSource(client, inbound).Subscribe(ctx, s.Handler())
func Use(cfg Config, opts ...Option) (*xsplit.Splitter, *redis.Client) {
	client, err := Dial(cfg)
	if err != nil {
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}

	sb := xsplit.NewSplitterBuilder().WithOutput(NewAcceptor(client, cfg))
	for _, o := range opts {
		if o != nil {
			o(sb)
		}
	}

	s, err := sb.Build()
	if err != nil {
		_ = client.Close()
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}

	xsplit.SetDefault(s)
	return s, client
}

// Option tunes the Splitter built by Use.
type Option func(*xsplit.SplitterBuilder)

func WithLogger(l *xlog.Logger) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithLogger(l) }
}

func WithClock(c xclock.Clock) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithClock(c) }
}

// WithCodec selects how payloads and non-string headers are encoded into
// entry fields (default: json).
func WithCodec(name string) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithCodec(name) }
}

func WithMiddleware(mw ...xsplit.Middleware) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithMiddleware(mw...) }
}

// WithSendTimeout bounds each XADD issued by a split.
func WithSendTimeout(d time.Duration) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithSendTimeout(d) }
}

// WithDelimiters makes string payloads split into tokens before they are written.
func WithDelimiters(d string) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithDelimiters(d) }
}

func WithObserver(obs ...xsplit.Observer) Option {
	return func(b *xsplit.SplitterBuilder) { b.WithObserver(obs...) }
}
