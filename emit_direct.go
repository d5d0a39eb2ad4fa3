package xsplit

import (
	"context"
	"sync/atomic"

	"github.com/trickstertwo/xsplit/reactive"
)

// emitDirect delivers every element of src to dst on the calling goroutine.
func (s *Splitter) emitDirect(ctx context.Context, msg *Message, src splittable, dst DirectAcceptor) error {
	switch src.shape {
	case ShapeArray, ShapeCollection:
		n := src.size()
		for i := 0; i < n; i++ {
			if err := s.deliver(ctx, dst, s.stamper.Stamp(msg, src.at(i), i, n)); err != nil {
				return err
			}
		}
		return nil

	case ShapeLazySequence:
		src = src.bind(ctx)
		defer src.release()
		for i := 0; ; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !src.lazy.HasNext() {
				return src.interrupted()
			}
			m := s.stamper.Stamp(msg, src.lazy.Next(), i, SequenceSizeUnknown)
			if err := s.deliver(ctx, dst, m); err != nil {
				return err
			}
		}

	case ShapeAsyncStream:
		return s.drainStream(ctx, msg, src.stream, dst)

	default:
		return &PayloadTypeError{}
	}
}

// deliver hands one stamped message to dst, bounded by the send timeout.
func (s *Splitter) deliver(ctx context.Context, dst DirectAcceptor, m *Message) error {
	actx := ctx
	cancel := func() {}
	if s.sendTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, s.sendTimeout)
	}
	defer cancel()

	if err := dst.Accept(actx, m); err != nil {
		s.metrics.deliveryErrCount.Add(1)
		derr := &DeliveryError{
			CorrelationID:  m.CorrelationID(),
			SequenceNumber: m.SequenceNumber(),
			Err:            err,
		}
		s.notifyAsync(Event{
			Type:           DeliveryFailed,
			CorrelationID:  m.CorrelationID(),
			SequenceNumber: m.SequenceNumber(),
			Err:            derr,
		})
		return derr
	}

	s.emitted(m)
	return nil
}

// drainStream degrades an asynchronous stream into a blocking drain: one
// element is requested at a time and delivered on the calling goroutine in
// arrival order. It returns when the stream completes.
func (s *Splitter) drainStream(ctx context.Context, msg *Message, stream reactive.Publisher[any], dst DirectAcceptor) error {
	sub := &drainSubscriber{
		subs:    make(chan reactive.Subscription, 1),
		signals: make(chan drainSignal, 2),
	}
	stream.Subscribe(sub)

	var up reactive.Subscription
	select {
	case up = <-sub.subs:
	case <-ctx.Done():
		sub.abandon()
		s.cancelled(msg)
		return ctx.Err()
	}

	for i := 0; ; i++ {
		up.Request(1)

		var sig drainSignal
		select {
		case sig = <-sub.signals:
		case <-ctx.Done():
			up.Cancel()
			s.cancelled(msg)
			return ctx.Err()
		}

		switch {
		case sub.overflow.Load():
			up.Cancel()
			return s.streamFailed(msg, ErrBackpressureOverflow)
		case sig.err != nil:
			return s.streamFailed(msg, sig.err)
		case sig.done:
			return nil
		}

		if err := s.deliver(ctx, dst, s.stamper.Stamp(msg, sig.v, i, SequenceSizeUnknown)); err != nil {
			up.Cancel()
			return err
		}
	}
}

type drainSignal struct {
	v    any
	err  error
	done bool
}

// drainSubscriber forwards upstream signals to the draining goroutine.
// It never blocks the producer.
type drainSubscriber struct {
	subs      chan reactive.Subscription
	signals   chan drainSignal
	abandoned atomic.Bool
	overflow  atomic.Bool
}

func (d *drainSubscriber) OnSubscribe(s reactive.Subscription) {
	d.subs <- s
	if d.abandoned.Load() {
		d.cancelPending()
	}
}

func (d *drainSubscriber) OnNext(v any) { d.push(drainSignal{v: v}) }

func (d *drainSubscriber) OnError(err error) { d.push(drainSignal{err: err}) }

func (d *drainSubscriber) OnComplete() { d.push(drainSignal{done: true}) }

func (d *drainSubscriber) push(sig drainSignal) {
	select {
	case d.signals <- sig:
	default:
		d.overflow.Store(true)
	}
}

// abandon cancels the subscription whether or not it has arrived yet.
func (d *drainSubscriber) abandon() {
	d.abandoned.Store(true)
	d.cancelPending()
}

func (d *drainSubscriber) cancelPending() {
	select {
	case s := <-d.subs:
		s.Cancel()
	default:
	}
}
