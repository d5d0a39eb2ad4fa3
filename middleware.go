package xsplit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/trickstertwo/xlog"
)

// RetryConfig controls retry behavior for handler middleware.
//
// The splitter itself never retries. Retrying a split re-emits every element,
// including those a failed attempt already delivered.
type RetryConfig struct {
	// MaxAttempts counts the first execution. Values below 1 mean one attempt.
	MaxAttempts int
	// Backoff returns the base wait after the given failed attempt (1-based).
	// Nil retries immediately.
	Backoff func(attempt int) time.Duration
	// RetryIf selects retryable errors. Nil retries everything except
	// payload type errors.
	RetryIf func(err error) bool
	// Jitter adds up to Jitter of random delay to each wait.
	Jitter time.Duration
}

func (c RetryConfig) attempts() int {
	return max(c.MaxAttempts, 1)
}

func (c RetryConfig) retryable(err error) bool {
	if c.RetryIf != nil {
		return c.RetryIf(err)
	}
	// A payload that cannot be split will never become splittable.
	return !errors.Is(err, ErrPayloadType)
}

func (c RetryConfig) wait(attempt int) time.Duration {
	var d time.Duration
	if c.Backoff != nil {
		d = c.Backoff(attempt)
	}
	if c.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(c.Jitter)))
	}
	return d
}

// RetryMiddleware re-runs a failing handler up to MaxAttempts times. It gives
// up early when ctx ends or the error is not retryable.
func RetryMiddleware(cfg RetryConfig) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			var err error
			for attempt := 1; ; attempt++ {
				if err = next(ctx, msg); err == nil {
					return nil
				}
				if ctx.Err() != nil || attempt >= cfg.attempts() || !cfg.retryable(err) {
					return err
				}
				if d := cfg.wait(attempt); d > 0 {
					t := time.NewTimer(d)
					select {
					case <-ctx.Done():
						t.Stop()
						return err
					case <-t.C:
					}
				}
			}
		}
	}
}

// TimeoutMiddleware bounds a handler call to d. On expiry the call returns
// context.DeadlineExceeded at once; a split still running underneath stops
// when it observes the cancelled context.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next Handler) Handler { return next }
	}
	return func(next Handler) Handler {
		guarded := RecoveryMiddleware()(next)
		return func(ctx context.Context, msg *Message) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			result := make(chan error, 1)
			go func() { result <- guarded(tctx, msg) }()

			select {
			case err := <-result:
				return err
			case <-tctx.Done():
				return tctx.Err()
			}
		}
	}
}

// RecoveryMiddleware converts handler panics into errors matching ErrHandlerPanic.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// LoggingMiddleware logs every handled message at debug level and failures
// at warn level.
func LoggingMiddleware(l *xlog.Logger) Middleware {
	return func(next Handler) Handler {
		if l == nil {
			return next
		}
		return func(ctx context.Context, msg *Message) error {
			start := time.Now()
			err := next(ctx, msg)

			var id string
			if msg != nil {
				id = msg.ID()
			}
			ll := l.With(
				xlog.Str("id", id),
				xlog.Dur("dur", time.Since(start)),
			)
			if err != nil {
				ll.Warn().Err(err).Msg("xsplit: handler failed")
				return err
			}
			ll.Debug().Msg("xsplit: handler done")
			return nil
		}
	}
}

// Chain wraps h so that mws[0] runs first. Nil middlewares are skipped.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
