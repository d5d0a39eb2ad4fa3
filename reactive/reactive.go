// Package reactive defines the demand-driven push protocol used between
// asynchronous producers and consumers of xsplit messages.
//
// A Subscriber receives OnSubscribe exactly once, then at most as many OnNext
// signals as it has requested through its Subscription, followed by at most
// one terminal signal (OnError or OnComplete). Signals to one Subscriber are
// never concurrent.
package reactive

import (
	"errors"
	"math"
)

// Unbounded requests all remaining elements.
const Unbounded int64 = math.MaxInt64

// ErrInvalidDemand is signalled when Request is called with n <= 0.
var ErrInvalidDemand = errors.New("reactive: request must be positive")

// Publisher produces elements for subscribers on demand.
type Publisher[T any] interface {
	Subscribe(s Subscriber[T])
}

// Subscriber consumes elements pushed by a Publisher.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// Subscription links one Subscriber to one Publisher.
type Subscription interface {
	// Request adds n to the outstanding demand.
	Request(n int64)
	// Cancel asks the publisher to stop. It may still deliver signals already in flight.
	Cancel()
}

// PublisherFunc is an Adapter that lets a plain function satisfy Publisher.
type PublisherFunc[T any] func(s Subscriber[T])

func (f PublisherFunc[T]) Subscribe(s Subscriber[T]) { f(s) }

// SubscriberFuncs is an Adapter assembling a Subscriber from callbacks. Nil callbacks are ignored.
type SubscriberFuncs[T any] struct {
	Subscribe func(s Subscription)
	Next      func(v T)
	Error     func(err error)
	Complete  func()
}

func (f SubscriberFuncs[T]) OnSubscribe(s Subscription) {
	if f.Subscribe != nil {
		f.Subscribe(s)
	}
}

func (f SubscriberFuncs[T]) OnNext(v T) {
	if f.Next != nil {
		f.Next(v)
	}
}

func (f SubscriberFuncs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f SubscriberFuncs[T]) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// AddDemand adds n to current, saturating at Unbounded.
func AddDemand(current, n int64) int64 {
	if current == Unbounded || n >= Unbounded-current {
		return Unbounded
	}
	return current + n
}
