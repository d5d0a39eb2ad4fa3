package flux_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xsplit"
	"github.com/trickstertwo/xsplit/adapter/flux"
	"github.com/trickstertwo/xsplit/reactive"
)

type sink struct {
	mu   sync.Mutex
	seen []any
	seqs []int
}

func (s *sink) handle(_ context.Context, m *xsplit.Message) error {
	s.mu.Lock()
	s.seen = append(s.seen, m.Payload())
	s.seqs = append(s.seqs, m.SequenceNumber())
	s.mu.Unlock()
	return nil
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func newSplitter(t *testing.T, ch *flux.Channel) *xsplit.Splitter {
	t.Helper()
	s, err := xsplit.NewSplitterBuilder().WithOutput(ch).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func waitFor(t *testing.T, ch *flux.Channel) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return ch.Wait(ctx)
}

func TestChannel_DeliversInOrderWithPrefetch(t *testing.T) {
	out := &sink{}
	ch, err := flux.New(context.Background(), flux.Config{Prefetch: 2}, out.handle)
	require.NoError(t, err)
	s := newSplitter(t, ch)

	items := make([]int, 10)
	for i := range items {
		items[i] = i * 10
	}
	require.NoError(t, s.Split(context.Background(), xsplit.NewMessage(items, nil)))
	require.NoError(t, waitFor(t, ch))

	assert.Equal(t, []any{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, out.seen)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, out.seqs)

	st := ch.Stats()
	assert.Equal(t, uint64(1), st.Subscriptions)
	assert.Equal(t, uint64(10), st.Delivered)
	assert.Equal(t, uint64(1), st.Completed)
	assert.Zero(t, st.Failed)
}

func TestChannel_UnboundedPrefetchWithStream(t *testing.T) {
	out := &sink{}
	ch, err := flux.New(context.Background(), flux.Config{Prefetch: 0}, out.handle)
	require.NoError(t, err)
	s := newSplitter(t, ch)

	require.NoError(t, s.Split(context.Background(), xsplit.NewMessage(reactive.Erase(reactive.Range(1, 5)), nil)))
	require.NoError(t, waitFor(t, ch))

	assert.Equal(t, []any{1, 2, 3, 4, 5}, out.seen)
}

func TestChannel_HandlerErrorCancelsSplit(t *testing.T) {
	boom := errors.New("handler failed")
	var calls int
	ch, err := flux.New(context.Background(), flux.Defaults(), func(_ context.Context, m *xsplit.Message) error {
		calls++
		if m.SequenceNumber() == 3 {
			return boom
		}
		return nil
	})
	require.NoError(t, err)
	s := newSplitter(t, ch)

	require.NoError(t, s.Split(context.Background(), xsplit.NewMessage([]string{"a", "b", "c", "d", "e"}, nil)))
	assert.ErrorIs(t, waitFor(t, ch), boom)
	assert.Equal(t, 3, calls)

	st := ch.Stats()
	assert.Equal(t, uint64(2), st.Delivered)
	assert.Equal(t, uint64(1), st.HandlerErrors)
	assert.Equal(t, uint64(1), st.Failed)
	require.Eventually(t, func() bool { return s.GetMetrics().Cancelled == 1 }, time.Second, 5*time.Millisecond)
}

func TestChannel_HandlerPanicFailsFlow(t *testing.T) {
	ch, err := flux.New(context.Background(), flux.Defaults(), func(context.Context, *xsplit.Message) error {
		panic("bad handler")
	})
	require.NoError(t, err)
	s := newSplitter(t, ch)

	require.NoError(t, s.Split(context.Background(), xsplit.NewMessage([]int{1}, nil)))
	assert.ErrorIs(t, waitFor(t, ch), xsplit.ErrHandlerPanic)
}

func TestChannel_ContextCancelStopsEndlessSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := &sink{}
	ch, err := flux.New(ctx, flux.Config{Prefetch: 4}, out.handle)
	require.NoError(t, err)
	s := newSplitter(t, ch)

	endless := iter.Seq[any](func(yield func(any) bool) {
		for i := 0; yield(i); i++ {
		}
	})
	require.NoError(t, s.Split(context.Background(), xsplit.NewMessage(endless, nil)))
	require.Eventually(t, func() bool { return out.len() >= 10 }, time.Second, time.Millisecond)

	cancel()
	err = waitFor(t, ch)
	assert.ErrorIs(t, err, context.Canceled)
	require.Eventually(t, func() bool { return s.GetMetrics().Cancelled == 1 }, time.Second, 5*time.Millisecond)
}

func TestChannel_SubscribeAfterContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch, err := flux.New(ctx, flux.Defaults(), (&sink{}).handle)
	require.NoError(t, err)
	s := newSplitter(t, ch)

	require.NoError(t, s.Split(context.Background(), xsplit.NewMessage([]int{1, 2}, nil)))
	assert.ErrorIs(t, waitFor(t, ch), context.Canceled)
	assert.Zero(t, ch.Stats().Delivered)
}

func TestChannel_MultipleSplits(t *testing.T) {
	out := &sink{}
	ch, err := flux.New(context.Background(), flux.Config{Prefetch: 1}, out.handle)
	require.NoError(t, err)
	s := newSplitter(t, ch)

	require.NoError(t, s.Split(context.Background(), xsplit.NewMessage([]int{1, 2}, nil)))
	require.NoError(t, s.Split(context.Background(), xsplit.NewMessage([]int{3, 4, 5}, nil)))
	require.NoError(t, waitFor(t, ch))

	assert.Len(t, ch.Flows(), 2)
	assert.ElementsMatch(t, []any{1, 2, 3, 4, 5}, out.seen)
	assert.Equal(t, uint64(2), ch.Stats().Completed)
}

func TestNew_Validation(t *testing.T) {
	_, err := flux.New(context.Background(), flux.Defaults(), nil)
	assert.ErrorIs(t, err, flux.ErrNilHandler)

	_, err = flux.New(context.Background(), flux.Config{Prefetch: -1}, (&sink{}).handle)
	assert.Error(t, err)
}

func TestConfigFromMap(t *testing.T) {
	assert.Equal(t, 32, flux.ConfigFromMap(nil).Prefetch)
	assert.Equal(t, 8, flux.ConfigFromMap(map[string]any{"prefetch": 8}).Prefetch)
	assert.Equal(t, 0, flux.ConfigFromMap(map[string]any{"prefetch": float64(0)}).Prefetch)
}
