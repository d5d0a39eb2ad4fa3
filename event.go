package xsplit

import (
	"time"
)

// EventType enumerates splitter lifecycle events for the Observer pattern.
type EventType string

const (
	SplitStart     EventType = "split_start"
	SplitDone      EventType = "split_done"
	Emit           EventType = "emit"
	DeliveryFailed EventType = "delivery_failed"
	StreamFailed   EventType = "stream_error"
	Cancelled      EventType = "cancelled"
	Rejected       EventType = "rejected"
)

// Event carries telemetry for observers.
type Event struct {
	Type           EventType
	CorrelationID  string
	SequenceNumber int
	Shape          Shape
	Duration       time.Duration
	Err            error
}
