package reactive

import (
	"fmt"
	"sync"
)

// FromFunc returns a cold Publisher that calls next for every element.
// Each subscription gets its own goroutine which pushes only while demand is
// outstanding. It reads one element ahead, so an exhausted source completes
// without waiting for further demand. next returns false when the source is
// exhausted; a non-nil error terminates the subscription with OnError. next
// must not be shared between concurrent subscriptions unless it is safe for
// that.
func FromFunc[T any](next func() (T, bool, error)) Publisher[T] {
	return PublisherFunc[T](func(s Subscriber[T]) {
		sub := &pushSubscription[T]{
			next:   next,
			target: s,
			wake:   make(chan struct{}, 1),
		}
		s.OnSubscribe(sub)
		go sub.run()
	})
}

// Just publishes the given values in order and completes.
func Just[T any](values ...T) Publisher[T] {
	return PublisherFunc[T](func(s Subscriber[T]) {
		i := 0
		FromFunc(func() (T, bool, error) {
			var zero T
			if i >= len(values) {
				return zero, false, nil
			}
			v := values[i]
			i++
			return v, true, nil
		}).Subscribe(s)
	})
}

// Range publishes count consecutive integers starting at start.
func Range(start, count int) Publisher[int] {
	return PublisherFunc[int](func(s Subscriber[int]) {
		i := 0
		FromFunc(func() (int, bool, error) {
			if i >= count {
				return 0, false, nil
			}
			v := start + i
			i++
			return v, true, nil
		}).Subscribe(s)
	})
}

// FromChan publishes values received from ch until it is closed.
// A single channel should back a single subscription.
func FromChan[T any](ch <-chan T) Publisher[T] {
	return FromFunc(func() (T, bool, error) {
		v, ok := <-ch
		return v, ok, nil
	})
}

// Error publishes no element and fails immediately with err.
func Error[T any](err error) Publisher[T] {
	return FromFunc(func() (T, bool, error) {
		var zero T
		return zero, false, err
	})
}

// Erase converts a typed Publisher into a Publisher of any, which is the
// shape xsplit recognizes as an asynchronous stream payload.
func Erase[T any](p Publisher[T]) Publisher[any] {
	return PublisherFunc[any](func(s Subscriber[any]) {
		p.Subscribe(SubscriberFuncs[T]{
			Subscribe: s.OnSubscribe,
			Next:      func(v T) { s.OnNext(v) },
			Error:     s.OnError,
			Complete:  s.OnComplete,
		})
	})
}

type pushSubscription[T any] struct {
	next   func() (T, bool, error)
	target Subscriber[T]
	wake   chan struct{}

	mu        sync.Mutex
	demand    int64
	cancelled bool
	failure   error
}

func (p *pushSubscription[T]) Request(n int64) {
	p.mu.Lock()
	switch {
	case p.cancelled:
	case n <= 0:
		p.failure = fmt.Errorf("%w: got %d", ErrInvalidDemand, n)
	default:
		p.demand = AddDemand(p.demand, n)
	}
	p.mu.Unlock()
	p.signal()
}

func (p *pushSubscription[T]) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	p.mu.Unlock()
	p.signal()
}

func (p *pushSubscription[T]) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run is the single goroutine emitting to target, so signals are serialized.
// It keeps one element fetched ahead of demand: a source that runs dry
// completes as soon as its last element is out, whatever demand remains.
func (p *pushSubscription[T]) run() {
	for {
		v, ok, err := p.safeNext()
		if err != nil {
			if p.markDone() {
				p.target.OnError(err)
			}
			return
		}
		if !ok {
			if p.markDone() {
				p.target.OnComplete()
			}
			return
		}

		p.mu.Lock()
		for !p.cancelled && p.failure == nil && p.demand == 0 {
			p.mu.Unlock()
			<-p.wake
			p.mu.Lock()
		}
		if p.cancelled {
			p.mu.Unlock()
			return
		}
		if p.failure != nil {
			err := p.failure
			p.cancelled = true
			p.mu.Unlock()
			p.target.OnError(err)
			return
		}
		if p.demand != Unbounded {
			p.demand--
		}
		p.mu.Unlock()

		p.target.OnNext(v)
	}
}

// markDone ends the subscription and reports whether a terminal signal may
// still be sent.
func (p *pushSubscription[T]) markDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return false
	}
	p.cancelled = true
	return true
}

func (p *pushSubscription[T]) safeNext() (v T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reactive: source panic: %v", r)
		}
	}()
	return p.next()
}
