package xsplit

import (
	"strconv"

	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver writes splitter events to Logger. Failures are logged at
// warn level, everything else at debug level. A nil Logger discards events.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}

	l := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("correlation_id", e.CorrelationID),
	)
	if e.SequenceNumber > 0 {
		l = l.With(xlog.Str("sequence_number", strconv.Itoa(e.SequenceNumber)))
	}
	if e.Shape != ShapeNotSplittable {
		l = l.With(xlog.Str("shape", e.Shape.String()))
	}
	if e.Duration > 0 {
		l = l.With(xlog.Dur("duration", e.Duration))
	}

	if e.Err != nil {
		l.Warn().Err(e.Err).Msg("xsplit event")
		return
	}
	l.Debug().Msg("xsplit event")
}
