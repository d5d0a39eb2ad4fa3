package xsplit

import (
	"context"

	"github.com/trickstertwo/xsplit/reactive"
)

// Handler processes a single inbound message. Splitter.Handler adapts a
// splitter to this shape so message sources can drive it.
type Handler func(ctx context.Context, msg *Message) error

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// DirectAcceptor is a synchronous, possibly bounded sink. Accept may block
// until capacity is available; a non-nil error means the message was not taken.
type DirectAcceptor interface {
	Accept(ctx context.Context, msg *Message) error
}

// AcceptorFunc is an Adapter that lets a plain function satisfy DirectAcceptor.
type AcceptorFunc func(ctx context.Context, msg *Message) error

func (f AcceptorFunc) Accept(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// SubscriberTarget is an asynchronous destination. It receives the split
// output as a Publisher and drives it through reactive demand.
type SubscriberTarget interface {
	SubscribeTo(p reactive.Publisher[*Message])
}

// Collection is an eagerly held, ordered group of elements whose size is
// known without consuming it.
type Collection interface {
	Len() int
	At(i int) any
}

// Iterator is a lazily produced sequence pulled one element at a time.
// It may be infinite; bounding it is the caller's responsibility.
type Iterator interface {
	HasNext() bool
	Next() any
}

// Observer receives splitter lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API represents the complete xsplit surface.
type API interface {
	Split(ctx context.Context, msg *Message) error
	SplitTo(ctx context.Context, msg *Message, dst any) error
	Handler() Handler
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}
