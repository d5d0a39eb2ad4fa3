package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xsplit"
)

func TestQueue_AcceptReceiveInOrder(t *testing.T) {
	q := New(Config{Capacity: 4})
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, q.Accept(ctx, xsplit.NewMessage(p, nil)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		m, err := q.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, m.Payload())
	}

	_, ok := q.TryReceive()
	assert.False(t, ok)

	st := q.Stats()
	assert.Equal(t, uint64(3), st.Accepted)
	assert.Equal(t, uint64(3), st.Received)
	assert.Equal(t, 0, st.Depth)
}

func TestQueue_NonBlockingRejectsWhenFull(t *testing.T) {
	q := New(Config{Capacity: 1, SendTimeout: -1})
	ctx := context.Background()

	require.NoError(t, q.Accept(ctx, xsplit.NewMessage(1, nil)))
	err := q.Accept(ctx, xsplit.NewMessage(2, nil))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.ErrorIs(t, err, xsplit.ErrRejected)
	assert.Equal(t, uint64(1), q.Stats().Rejected)
}

func TestQueue_SendTimeoutElapses(t *testing.T) {
	q := New(Config{Capacity: 1, SendTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, q.Accept(ctx, xsplit.NewMessage(1, nil)))

	start := time.Now()
	err := q.Accept(ctx, xsplit.NewMessage(2, nil))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueue_BlockingAcceptWaitsForSpace(t *testing.T) {
	q := New(Config{Capacity: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, q.Accept(ctx, xsplit.NewMessage(1, nil)))

	done := make(chan error, 1)
	go func() { done <- q.Accept(ctx, xsplit.NewMessage(2, nil)) }()

	m, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Payload())
	require.NoError(t, <-done)

	m, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Payload())
}

func TestQueue_AcceptHonorsContext(t *testing.T) {
	q := New(Config{Capacity: 1})
	require.NoError(t, q.Accept(context.Background(), xsplit.NewMessage(1, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Accept(ctx, xsplit.NewMessage(2, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_Clear(t *testing.T) {
	q := New(Config{Capacity: 8})
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Accept(context.Background(), xsplit.NewMessage(i, nil)))
	}
	assert.Equal(t, 5, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(5), q.Stats().Cleared)
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{
		"capacity":     float64(16),
		"send_timeout": "250ms",
	})
	assert.Equal(t, 16, cfg.Capacity)
	assert.Equal(t, 250*time.Millisecond, cfg.SendTimeout)
	require.NoError(t, cfg.Validate())

	assert.Error(t, Config{}.Validate())
	assert.Equal(t, 1024, ConfigFromMap(nil).Capacity)
}

// A splitter writing into a queue that is too small surfaces the rejection as
// a delivery error and keeps what was already accepted.
func TestUse_SplitIntoQueue(t *testing.T) {
	s, q := Use(Config{Capacity: 2, SendTimeout: -1})
	defer func() { _ = s.Close(context.Background()) }()

	assert.Same(t, s, xsplit.Default())

	msg := xsplit.NewMessage([]string{"x", "y", "z"}, nil)
	err := xsplit.Split(context.Background(), msg)

	var derr *xsplit.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 3, derr.SequenceNumber)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	first, ok := q.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "x", first.Payload())
	assert.Equal(t, msg.ID(), first.CorrelationID())
	assert.Equal(t, 1, first.SequenceNumber())
	assert.Equal(t, 3, first.SequenceSize())
}
