package xsplit

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrPayloadType          = errors.New("xsplit: payload is not splittable")
	ErrDelivery             = errors.New("xsplit: delivery failed")
	ErrStream               = errors.New("xsplit: upstream stream failed")
	ErrNilMessage           = errors.New("xsplit: message must not be nil")
	ErrNoDestination        = errors.New("xsplit: no destination configured")
	ErrInvalidDestination   = errors.New("xsplit: destination is neither a DirectAcceptor nor a SubscriberTarget")
	ErrRejected             = errors.New("xsplit: message rejected by acceptor")
	ErrBackpressureOverflow = errors.New("xsplit: upstream pushed more elements than requested")
	ErrAlreadySubscribed    = errors.New("xsplit: split publisher allows a single subscriber")
	ErrSplitterClosed       = errors.New("xsplit: splitter is closed")
	ErrHandlerPanic         = errors.New("xsplit: handler panic")
	ErrUnknownCodec         = errors.New("xsplit: codec not registered")

	ErrObserverPoolShutdownTimeout = errors.New("xsplit: observer pool shutdown timeout")
)

// PayloadTypeError reports a payload that matches none of the splittable shapes.
type PayloadTypeError struct {
	Type reflect.Type
}

func (e *PayloadTypeError) Error() string {
	if e.Type == nil {
		return "xsplit: payload is not splittable: <nil>"
	}
	return fmt.Sprintf("xsplit: payload of type %s is not splittable", e.Type)
}

func (e *PayloadTypeError) Is(target error) bool { return target == ErrPayloadType }

// DeliveryError reports a direct acceptor failure. Messages with a lower
// sequence number were already delivered and are not revoked.
type DeliveryError struct {
	CorrelationID  string
	SequenceNumber int
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("xsplit: delivery of %s#%d failed: %v", e.CorrelationID, e.SequenceNumber, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// StreamError wraps a failure raised by the element source of a split.
type StreamError struct {
	CorrelationID string
	Err           error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("xsplit: stream for %s failed: %v", e.CorrelationID, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

func (e *StreamError) Is(target error) bool { return target == ErrStream }
