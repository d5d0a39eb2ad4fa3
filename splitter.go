package xsplit

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ API = (*Splitter)(nil)
var _ HealthChecker = (*Splitter)(nil)

// Splitter fans one inbound message with a plural payload out into one
// message per element. Build it with NewSplitterBuilder.
//
// Splitting is not idempotent: splitting the same message twice produces two
// fan-outs that share one correlation id. Telling them apart downstream is the
// caller's responsibility.
type Splitter struct {
	output       any
	stamper      Stamper
	codec        Codec
	clock        xclock.Clock
	logger       *xlog.Logger
	middlewares  []Middleware
	delimiters   string
	sendTimeout  time.Duration
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer
	metrics      *splitMetrics
	closed       atomic.Bool
	closeOnce    sync.Once
}

// splitMetrics uses lock-free atomics for telemetry.
type splitMetrics struct {
	splitCount       atomic.Uint64
	emitCount        atomic.Uint64
	payloadTypeCount atomic.Uint64
	deliveryErrCount atomic.Uint64
	streamErrCount   atomic.Uint64
	cancelCount      atomic.Uint64
	splitNs          atomic.Int64
}

// Split splits msg into the output configured with WithOutput.
func (s *Splitter) Split(ctx context.Context, msg *Message) error {
	return s.SplitTo(ctx, msg, s.output)
}

// SplitTo splits msg into dst, which must be a DirectAcceptor or a
// SubscriberTarget.
//
// For a DirectAcceptor every element is delivered before SplitTo returns;
// a failed Accept stops the split with a *DeliveryError and messages already
// accepted stay delivered. For a SubscriberTarget the output publisher is
// handed over and SplitTo returns at once; later failures reach the target's
// subscriber as error signals only.
func (s *Splitter) SplitTo(ctx context.Context, msg *Message, dst any) error {
	if s.closed.Load() {
		return ErrSplitterClosed
	}
	if msg == nil {
		return ErrNilMessage
	}

	src := classify(msg.Payload(), s.delimiters)
	if src.shape == ShapeNotSplittable {
		s.metrics.payloadTypeCount.Add(1)
		err := &PayloadTypeError{Type: reflect.TypeOf(msg.Payload())}
		s.notifyAsync(Event{Type: Rejected, CorrelationID: msg.ID(), Err: err})
		return err
	}

	switch d := dst.(type) {
	case nil:
		src.release()
		return ErrNoDestination
	case SubscriberTarget:
		s.metrics.splitCount.Add(1)
		s.notifyAsync(Event{Type: SplitStart, CorrelationID: msg.ID(), Shape: src.shape})
		d.SubscribeTo(s.newBridge(ctx, msg, src))
		return nil
	case DirectAcceptor:
		s.metrics.splitCount.Add(1)
		s.notifyAsync(Event{Type: SplitStart, CorrelationID: msg.ID(), Shape: src.shape})

		start := s.clock.Now()
		err := s.emitDirect(InjectAll(withSource(ctx, msg), s.codec, s.logger, s.clock), msg, src, d)
		s.finishSplit(msg, src.shape, start, err)
		return err
	default:
		src.release()
		return ErrInvalidDestination
	}
}

// Handler exposes the splitter as a message handler for inbound sources.
// Panics are recovered into errors and configured middlewares are applied.
func (s *Splitter) Handler() Handler {
	base := RecoveryMiddleware()(s.Split)
	return Chain(base, s.middlewares...)
}

// finishSplit records the terminal outcome of one split.
func (s *Splitter) finishSplit(msg *Message, shape Shape, start time.Time, err error) {
	duration := s.clock.Since(start)
	s.recordSplitTime(duration.Nanoseconds())
	s.notifyAsync(Event{
		Type:          SplitDone,
		CorrelationID: msg.ID(),
		Shape:         shape,
		Duration:      duration,
		Err:           err,
	})
}

// emitted records one delivered element.
func (s *Splitter) emitted(m *Message) {
	s.metrics.emitCount.Add(1)
	s.notifyAsync(Event{Type: Emit, CorrelationID: m.CorrelationID(), SequenceNumber: m.SequenceNumber()})
}

// streamFailed records an upstream failure and returns it wrapped.
func (s *Splitter) streamFailed(msg *Message, err error) *StreamError {
	s.metrics.streamErrCount.Add(1)
	serr := &StreamError{CorrelationID: msg.ID(), Err: err}
	s.notifyAsync(Event{Type: StreamFailed, CorrelationID: msg.ID(), Err: serr})
	return serr
}

func (s *Splitter) cancelled(msg *Message) {
	s.metrics.cancelCount.Add(1)
	s.notifyAsync(Event{Type: Cancelled, CorrelationID: msg.ID()})
}

// GetMetrics returns current splitter metrics.
func (s *Splitter) GetMetrics() Metrics {
	return Metrics{
		Splits:            s.metrics.splitCount.Load(),
		Emitted:           s.metrics.emitCount.Load(),
		PayloadTypeErrors: s.metrics.payloadTypeCount.Load(),
		DeliveryErrors:    s.metrics.deliveryErrCount.Load(),
		StreamErrors:      s.metrics.streamErrCount.Load(),
		Cancelled:         s.metrics.cancelCount.Load(),
		EventsDropped:     s.observerPool.Stats().Dropped,
		AvgSplitTimeMs:    float64(s.metrics.splitNs.Load()) / 1e6,
	}
}

// Health checks splitter health for Kubernetes probes.
func (s *Splitter) Health(ctx context.Context) HealthStatus {
	if s.closed.Load() {
		return HealthStatus{
			Status:    StatusUnhealthy,
			Timestamp: s.clock.Now(),
			Message:   "splitter is closed",
		}
	}

	metrics := s.GetMetrics()
	status := StatusHealthy

	// Degraded if failure rate > 5%
	failures := metrics.DeliveryErrors + metrics.StreamErrors + metrics.PayloadTypeErrors
	attempts := metrics.Splits + metrics.PayloadTypeErrors
	if failures > 0 && attempts > 0 {
		if float64(failures)/float64(attempts) > 0.05 {
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: s.clock.Now(),
	}
}

// Close stops accepting splits and drains the observer pool. Reactive splits
// already handed to a target keep running until they terminate.
func (s *Splitter) Close(ctx context.Context) error {
	var closeErr error

	s.closeOnce.Do(func() {
		s.closed.Store(true)

		timeout := 5 * time.Second
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		if err := s.observerPool.Close(timeout); err != nil {
			s.logger.Warn().Err(err).Msg("xsplit: observer pool shutdown timeout")
			closeErr = err
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (s *Splitter) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	s.observersMu.Lock()
	s.observers = append(s.observers, obs)
	s.observersMu.Unlock()
}

// RemoveObserver removes the first observer equal to obs.
func (s *Splitter) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	for i, o := range s.observers {
		if sameObserver(o, obs) {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			break
		}
	}
}

// sameObserver reports a == b; observers of uncomparable types (such as
// ObserverFunc) never match.
func sameObserver(a, b Observer) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// notifyAsync dispatches events through the observer pool without blocking.
func (s *Splitter) notifyAsync(e Event) {
	if s.observerPool == nil || s.closed.Load() {
		return
	}

	s.observersMu.RLock()
	if len(s.observers) == 0 {
		s.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.observersMu.RUnlock()

	s.observerPool.Notify(e, observers)
}

// recordSplitTime keeps an exponential moving average of split durations.
func (s *Splitter) recordSplitTime(ns int64) {
	const alpha = 0.2
	current := s.metrics.splitNs.Load()
	if current == 0 {
		s.metrics.splitNs.Store(ns)
		return
	}
	s.metrics.splitNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
