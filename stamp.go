package xsplit

import (
	"github.com/trickstertwo/xclock"
)

// Stamper derives split output messages from a source message.
// It holds no mutable state and is safe for concurrent use.
type Stamper struct {
	idGen IDGenerator
	clock xclock.Clock
}

// NewStamper returns a Stamper. Nil arguments select the defaults.
func NewStamper(idGen IDGenerator, clock xclock.Clock) Stamper {
	if idGen == nil {
		idGen = DefaultIDGenerator
	}
	if clock == nil {
		clock = xclock.Default()
	}
	return Stamper{idGen: idGen, clock: clock}
}

// Stamp builds the message for element index (0-based) of a split of src.
// All headers of src are copied, then id, timestamp, correlation-id,
// sequence-number and sequence-size are set. size is the total element
// count or SequenceSizeUnknown. If src is itself part of a split, its
// correlation triple is pushed onto the sequence-details stack.
func (s Stamper) Stamp(src *Message, payload any, index, size int) *Message {
	mb := NewMessageBuilder().
		WithPayload(payload).
		WithIDGenerator(s.idGen).
		WithClock(s.clock).
		CopyHeaders(src.headers)

	if parent := src.CorrelationID(); parent != "" {
		details := src.SequenceDetails()
		details = append(details, SequenceDetails{
			CorrelationID:  parent,
			SequenceNumber: src.SequenceNumber(),
			SequenceSize:   src.SequenceSize(),
		})
		mb.SetHeader(HeaderSequenceDetails, details)
	}

	return mb.
		SetHeader(HeaderCorrelationID, src.ID()).
		SetHeader(HeaderSequenceNumber, index+1).
		SetHeader(HeaderSequenceSize, size).
		Build()
}
