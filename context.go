package xsplit

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

type ctxKey int

const (
	codecKey ctxKey = iota
	loggerKey
	clockKey
	sourceKey
)

func withValue[T comparable](ctx context.Context, key ctxKey, v T) context.Context {
	var zero T
	if v == zero {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOf[T any](ctx context.Context, key ctxKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// CodecFromContext returns the Codec of the splitter that is delivering the
// current message.
func CodecFromContext(ctx context.Context) (Codec, bool) {
	return valueOf[Codec](ctx, codecKey)
}

func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	return valueOf[*xlog.Logger](ctx, loggerKey)
}

func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	return valueOf[xclock.Clock](ctx, clockKey)
}

// SourceFromContext returns the message being split. Acceptors see it on
// every Accept call of a direct split.
func SourceFromContext(ctx context.Context) (*Message, bool) {
	return valueOf[*Message](ctx, sourceKey)
}

// InjectAll attaches codec, logger and clock for handlers and acceptors.
// Nil values are skipped.
func InjectAll(ctx context.Context, codec Codec, logger *xlog.Logger, clock xclock.Clock) context.Context {
	ctx = withValue(ctx, codecKey, codec)
	ctx = withValue(ctx, loggerKey, logger)
	return withValue(ctx, clockKey, clock)
}

func withSource(ctx context.Context, msg *Message) context.Context {
	return withValue(ctx, sourceKey, msg)
}
