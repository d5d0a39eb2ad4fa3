package xsplit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsplit/reactive"
)

// bridge is the single-use publisher handed to a SubscriberTarget. It turns
// the classified payload into stamped messages, pushing only against
// downstream demand.
type bridge struct {
	s          *Splitter
	ctx        context.Context
	msg        *Message
	src        splittable
	start      time.Time
	subscribed atomic.Bool
}

var _ reactive.Publisher[*Message] = (*bridge)(nil)

func (s *Splitter) newBridge(ctx context.Context, msg *Message, src splittable) *bridge {
	return &bridge{
		s:     s,
		ctx:   context.WithoutCancel(ctx),
		msg:   msg,
		src:   src,
		start: s.clock.Now(),
	}
}

func (b *bridge) Subscribe(down reactive.Subscriber[*Message]) {
	if !b.subscribed.CompareAndSwap(false, true) {
		down.OnSubscribe(noopSubscription{})
		down.OnError(ErrAlreadySubscribed)
		return
	}

	switch b.src.shape {
	case ShapeArray, ShapeCollection, ShapeLazySequence:
		ctx, cancel := context.WithCancel(b.ctx)
		p := &pullSubscription{
			b:      b,
			down:   down,
			src:    b.src.bind(ctx),
			size:   b.src.size(),
			sized:  b.src.shape != ShapeLazySequence,
			cancel: cancel,
		}
		down.OnSubscribe(p)
		p.schedule()
	case ShapeAsyncStream:
		b.src.stream.Subscribe(&relay{b: b, down: down})
	}
}

// finish records the terminal outcome of the split.
func (b *bridge) finish(err error) {
	b.s.finishSplit(b.msg, b.src.shape, b.start, err)
}

type noopSubscription struct{}

func (noopSubscription) Request(int64) {}
func (noopSubscription) Cancel()       {}

// pullSubscription emits an eager or lazy source. A work-in-progress counter
// guarantees one drain loop at a time, so downstream signals are serialized
// and elements keep their source order.
type pullSubscription struct {
	b      *bridge
	down   reactive.Subscriber[*Message]
	src    splittable
	size   int
	sized  bool
	cancel context.CancelFunc

	demand    atomic.Int64
	cancelled atomic.Bool
	wip       atomic.Int32

	mu      sync.Mutex
	failure error

	// owned by the drain loop
	index int
	done  bool
}

func (p *pullSubscription) Request(n int64) {
	if n <= 0 {
		p.mu.Lock()
		if p.failure == nil {
			p.failure = fmt.Errorf("%w: got %d", reactive.ErrInvalidDemand, n)
		}
		p.mu.Unlock()
	} else {
		for {
			cur := p.demand.Load()
			if p.demand.CompareAndSwap(cur, reactive.AddDemand(cur, n)) {
				break
			}
		}
	}
	p.schedule()
}

func (p *pullSubscription) Cancel() {
	if p.cancelled.CompareAndSwap(false, true) {
		p.cancel()
		p.schedule()
	}
}

func (p *pullSubscription) schedule() {
	if p.wip.Add(1) == 1 {
		go p.drain()
	}
}

func (p *pullSubscription) drain() {
	missed := int32(1)
	for {
		p.emitAvailable()
		missed = p.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

func (p *pullSubscription) emitAvailable() {
	for !p.done {
		if p.cancelled.Load() {
			p.terminate(nil)
			p.b.s.cancelled(p.b.msg)
			return
		}
		if err := p.takeFailure(); err != nil {
			p.cancelled.Store(true)
			p.terminate(err)
			p.down.OnError(err)
			return
		}
		if p.sized && p.index >= p.size {
			p.terminate(nil)
			p.down.OnComplete()
			return
		}
		if p.demand.Load() == 0 {
			if p.sized {
				return
			}
			// Peek so an exhausted lazy source completes without more demand.
			more, err := p.peek()
			if p.cancelled.Load() {
				continue
			}
			if err != nil {
				serr := p.b.s.streamFailed(p.b.msg, err)
				p.terminate(serr)
				p.down.OnError(serr)
				return
			}
			if more {
				return
			}
			p.terminate(nil)
			p.down.OnComplete()
			return
		}

		v, ok, err := p.pull()
		if p.cancelled.Load() {
			continue
		}
		if err != nil {
			serr := p.b.s.streamFailed(p.b.msg, err)
			p.terminate(serr)
			p.down.OnError(serr)
			return
		}
		if !ok {
			p.terminate(nil)
			p.down.OnComplete()
			return
		}

		m := p.b.s.stamper.Stamp(p.b.msg, v, p.index, p.size)
		p.index++
		if p.demand.Load() != reactive.Unbounded {
			p.demand.Add(-1)
		}
		p.b.s.emitted(m)
		p.down.OnNext(m)
	}
}

// pull produces the next element. Panics raised by a lazy source become errors.
func (p *pullSubscription) pull() (v any, ok bool, err error) {
	if p.sized {
		return p.src.at(p.index), true, nil
	}
	defer recoverLazy(&err)
	if !p.src.lazy.HasNext() {
		return nil, false, p.src.interrupted()
	}
	return p.src.lazy.Next(), true, nil
}

// peek reports whether a lazy source has another element without taking it.
func (p *pullSubscription) peek() (more bool, err error) {
	defer recoverLazy(&err)
	if p.src.lazy.HasNext() {
		return true, nil
	}
	return false, p.src.interrupted()
}

func recoverLazy(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("lazy source panic: %v", r)
	}
}

func (p *pullSubscription) takeFailure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.failure
	p.failure = nil
	return err
}

func (p *pullSubscription) terminate(err error) {
	p.done = true
	p.cancel()
	p.src.release()
	p.b.finish(err)
}

type signalKind int

const (
	signalNext signalKind = iota
	signalError
	signalComplete
	signalFail
	signalCancel
)

type signal struct {
	kind signalKind
	v    any
	err  error
}

// relay bridges an upstream asynchronous stream to the downstream subscriber.
// Upstream signals may arrive from any goroutine; they are queued and drained
// by whichever goroutine wins the work-in-progress counter, so downstream
// pushes are never concurrent.
type relay struct {
	b    *bridge
	down reactive.Subscriber[*Message]
	up   reactive.Subscription

	demand    atomic.Int64
	cancelled atomic.Bool
	wip       atomic.Int32

	mu    sync.Mutex
	queue []signal

	// owned by the drain loop
	index int
	done  bool
}

func (r *relay) OnSubscribe(up reactive.Subscription) {
	r.up = up
	r.down.OnSubscribe(r)
}

func (r *relay) OnNext(v any) { r.enqueue(signal{kind: signalNext, v: v}) }

func (r *relay) OnError(err error) { r.enqueue(signal{kind: signalError, err: err}) }

func (r *relay) OnComplete() { r.enqueue(signal{kind: signalComplete}) }

// Request records demand before forwarding it, so an upstream element can
// never arrive ahead of the demand that allows it.
func (r *relay) Request(n int64) {
	if n <= 0 {
		r.enqueue(signal{kind: signalFail, err: fmt.Errorf("%w: got %d", reactive.ErrInvalidDemand, n)})
		return
	}
	for {
		cur := r.demand.Load()
		if r.demand.CompareAndSwap(cur, reactive.AddDemand(cur, n)) {
			break
		}
	}
	r.up.Request(n)
}

func (r *relay) Cancel() {
	if r.cancelled.CompareAndSwap(false, true) {
		r.up.Cancel()
		r.enqueue(signal{kind: signalCancel})
	}
}

func (r *relay) enqueue(sig signal) {
	r.mu.Lock()
	r.queue = append(r.queue, sig)
	r.mu.Unlock()

	if r.wip.Add(1) != 1 {
		return
	}
	missed := int32(1)
	for {
		for {
			r.mu.Lock()
			if len(r.queue) == 0 {
				r.mu.Unlock()
				break
			}
			next := r.queue[0]
			r.queue[0] = signal{}
			r.queue = r.queue[1:]
			r.mu.Unlock()
			r.handle(next)
		}
		missed = r.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

func (r *relay) handle(sig signal) {
	if r.done {
		return
	}
	if r.cancelled.Load() && sig.kind != signalFail {
		r.done = true
		r.b.s.cancelled(r.b.msg)
		r.b.finish(nil)
		return
	}

	switch sig.kind {
	case signalNext:
		if !r.takeDemand() {
			r.cancelled.Store(true)
			r.up.Cancel()
			r.b.s.logger.With(xlog.Str("correlation_id", r.b.msg.ID())).
				Warn().Msg("xsplit: upstream ignored backpressure")
			r.fail(r.b.s.streamFailed(r.b.msg, ErrBackpressureOverflow))
			return
		}
		m := r.b.s.stamper.Stamp(r.b.msg, sig.v, r.index, SequenceSizeUnknown)
		r.index++
		r.b.s.emitted(m)
		r.down.OnNext(m)
	case signalError:
		r.fail(r.b.s.streamFailed(r.b.msg, sig.err))
	case signalComplete:
		r.done = true
		r.b.finish(nil)
		r.down.OnComplete()
	case signalFail:
		r.cancelled.Store(true)
		r.up.Cancel()
		r.fail(sig.err)
	}
}

func (r *relay) fail(err error) {
	r.done = true
	r.b.finish(err)
	r.down.OnError(err)
}

func (r *relay) takeDemand() bool {
	for {
		cur := r.demand.Load()
		switch {
		case cur == 0:
			return false
		case cur == reactive.Unbounded:
			return true
		case r.demand.CompareAndSwap(cur, cur-1):
			return true
		}
	}
}
