package xsplit

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
)

// Header names set on every message and on split output.
const (
	HeaderID              = "id"
	HeaderTimestamp       = "timestamp"
	HeaderCorrelationID   = "correlation-id"
	HeaderSequenceNumber  = "sequence-number"
	HeaderSequenceSize    = "sequence-size"
	HeaderSequenceDetails = "sequence-details"
)

// SequenceSizeUnknown is stamped when the element count of a split is not
// known before the source completes.
const SequenceSizeUnknown = 0

// IDGenerator produces unique message identifiers.
type IDGenerator func() string

// DefaultIDGenerator generates RFC 4122 v4 UUID strings.
var DefaultIDGenerator IDGenerator = uuid.NewString

// SequenceDetails is a correlation triple saved when a split message is split again.
type SequenceDetails struct {
	CorrelationID  string
	SequenceNumber int
	SequenceSize   int
}

// Message is an immutable envelope: an opaque payload plus headers.
// Derived messages are new instances; use MessageBuilder to copy headers.
type Message struct {
	payload any
	headers map[string]any
}

// NewMessage creates a message with a fresh id and timestamp.
// Any id or timestamp present in headers is replaced.
func NewMessage(payload any, headers map[string]any) *Message {
	return NewMessageBuilder().WithPayload(payload).CopyHeaders(headers).Build()
}

// Payload returns the message payload.
func (m *Message) Payload() any { return m.payload }

// Headers returns a copy of all headers.
func (m *Message) Headers() map[string]any { return maps.Clone(m.headers) }

// Header returns a single header value.
func (m *Message) Header(key string) (any, bool) {
	v, ok := m.headers[key]
	return v, ok
}

func (m *Message) ID() string {
	s, _ := m.headers[HeaderID].(string)
	return s
}

func (m *Message) Timestamp() time.Time {
	t, _ := m.headers[HeaderTimestamp].(time.Time)
	return t
}

// CorrelationID returns the id of the message this one was split from, if any.
func (m *Message) CorrelationID() string {
	s, _ := m.headers[HeaderCorrelationID].(string)
	return s
}

// SequenceNumber returns the 1-based position within a split, or 0.
func (m *Message) SequenceNumber() int {
	n, _ := m.headers[HeaderSequenceNumber].(int)
	return n
}

// SequenceSize returns the split size, or SequenceSizeUnknown.
func (m *Message) SequenceSize() int {
	n, _ := m.headers[HeaderSequenceSize].(int)
	return n
}

// SequenceDetails returns the stack of enclosing split correlations, outermost first.
func (m *Message) SequenceDetails() []SequenceDetails {
	d, _ := m.headers[HeaderSequenceDetails].([]SequenceDetails)
	return append([]SequenceDetails(nil), d...)
}

// MessageBuilder constructs messages (Builder pattern).
type MessageBuilder struct {
	payload any
	headers map[string]any
	idGen   IDGenerator
	clock   xclock.Clock
}

// NewMessageBuilder returns a builder using DefaultIDGenerator and the default clock.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{headers: make(map[string]any)}
}

func (mb *MessageBuilder) WithPayload(p any) *MessageBuilder {
	mb.payload = p
	return mb
}

func (mb *MessageBuilder) SetHeader(key string, value any) *MessageBuilder {
	mb.headers[key] = value
	return mb
}

// CopyHeaders copies all entries of h, overwriting existing keys.
func (mb *MessageBuilder) CopyHeaders(h map[string]any) *MessageBuilder {
	for k, v := range h {
		mb.headers[k] = v
	}
	return mb
}

func (mb *MessageBuilder) WithIDGenerator(g IDGenerator) *MessageBuilder {
	mb.idGen = g
	return mb
}

func (mb *MessageBuilder) WithClock(c xclock.Clock) *MessageBuilder {
	mb.clock = c
	return mb
}

// Build assigns id and timestamp and returns the message.
// The builder must not be reused after Build.
func (mb *MessageBuilder) Build() *Message {
	gen := mb.idGen
	if gen == nil {
		gen = DefaultIDGenerator
	}
	clk := mb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	mb.headers[HeaderID] = gen()
	mb.headers[HeaderTimestamp] = clk.Now()
	m := &Message{payload: mb.payload, headers: mb.headers}
	mb.headers = nil
	return m
}
