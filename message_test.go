package xsplit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xclock"
)

func sequentialIDs(prefix string) IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestNewMessage_AssignsIdentity(t *testing.T) {
	m := NewMessage("p", map[string]any{HeaderID: "forged", "k": "v"})

	assert.NotEqual(t, "forged", m.ID())
	assert.NotEmpty(t, m.ID())
	assert.False(t, m.Timestamp().IsZero())

	v, ok := m.Header("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 0, m.SequenceNumber())
	assert.Equal(t, "", m.CorrelationID())
}

func TestMessage_HeadersAreCopies(t *testing.T) {
	src := map[string]any{"k": "v"}
	m := NewMessage(1, src)
	src["k"] = "changed"

	h := m.Headers()
	h["k"] = "mutated"

	v, _ := m.Header("k")
	assert.Equal(t, "v", v)
}

func TestMessageBuilder(t *testing.T) {
	m := NewMessageBuilder().
		WithPayload([]int{1}).
		WithIDGenerator(sequentialIDs("m")).
		WithClock(xclock.Default()).
		SetHeader("a", 1).
		CopyHeaders(map[string]any{"b": 2}).
		Build()

	assert.Equal(t, "m-1", m.ID())
	assert.Equal(t, []int{1}, m.Payload())
	assert.Len(t, m.Headers(), 4)
}

func TestStamper_Stamp(t *testing.T) {
	st := NewStamper(sequentialIDs("part"), nil)
	src := NewMessage([]string{"a", "b"}, map[string]any{"trace": "t1"})

	m := st.Stamp(src, "b", 1, 2)

	assert.Equal(t, "part-1", m.ID())
	assert.Equal(t, "b", m.Payload())
	assert.Equal(t, src.ID(), m.CorrelationID())
	assert.Equal(t, 2, m.SequenceNumber())
	assert.Equal(t, 2, m.SequenceSize())
	trace, _ := m.Header("trace")
	assert.Equal(t, "t1", trace)
	assert.Empty(t, m.SequenceDetails())

	// src itself is untouched
	assert.Equal(t, "", src.CorrelationID())
}

func TestStamper_PushesSequenceDetails(t *testing.T) {
	st := NewStamper(sequentialIDs("x"), nil)
	root := NewMessage(nil, nil)
	lvl1 := st.Stamp(root, nil, 0, 3)
	lvl2 := st.Stamp(lvl1, nil, 1, SequenceSizeUnknown)
	lvl3 := st.Stamp(lvl2, nil, 0, 1)

	d := lvl3.SequenceDetails()
	require.Len(t, d, 2)
	assert.Equal(t, SequenceDetails{CorrelationID: root.ID(), SequenceNumber: 1, SequenceSize: 3}, d[0])
	assert.Equal(t, SequenceDetails{CorrelationID: lvl1.ID(), SequenceNumber: 2, SequenceSize: SequenceSizeUnknown}, d[1])
	assert.Equal(t, lvl2.ID(), lvl3.CorrelationID())

	// callers get a copy
	d[0].SequenceNumber = 99
	assert.Equal(t, 1, lvl3.SequenceDetails()[0].SequenceNumber)
}
