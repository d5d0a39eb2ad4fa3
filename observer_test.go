package xsplit

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
)

func TestObserverPool_DispatchesAndSurvivesPanics(t *testing.T) {
	pool := NewObserverPool(t.Context(), 2, 16)

	var seen atomic.Int32
	good := ObserverFunc(func(Event) { seen.Add(1) })
	bad := ObserverFunc(func(Event) { panic("observer bug") })

	for i := 0; i < 5; i++ {
		pool.Notify(Event{Type: Emit}, []Observer{bad, good})
	}
	require.Eventually(t, func() bool { return seen.Load() == 5 }, time.Second, 5*time.Millisecond)

	require.NoError(t, pool.Close(time.Second))
	st := pool.Stats()
	assert.Equal(t, uint64(5), st.Processed)
	assert.Equal(t, uint64(5), st.Panicked)
	assert.Equal(t, 2, st.Workers)
	assert.Equal(t, 16, st.BufferSize)

	// closed pools drop silently
	pool.Notify(Event{Type: Emit}, []Observer{good})
	assert.Equal(t, uint64(5), pool.Stats().Processed)
}

func TestObserverPool_DropsWhenFull(t *testing.T) {
	pool := NewObserverPool(t.Context(), 1, 1)
	defer func() { _ = pool.Close(time.Second) }()

	release := make(chan struct{})
	slow := ObserverFunc(func(Event) { <-release })

	for i := 0; i < 10; i++ {
		pool.Notify(Event{Type: Emit}, []Observer{slow})
	}
	close(release)

	assert.Greater(t, pool.Stats().Dropped, uint64(0))
}

func TestLoggingObserver_HandlesEveryEventType(t *testing.T) {
	logger := zerolog.Use(zerolog.Config{
		MinLevel:          xlog.LevelDebug,
		Console:           false,
		ConsoleTimeFormat: time.RFC3339Nano,
	}).With(xlog.Str("app", "xsplit-test"))

	obs := LoggingObserver{Logger: logger}
	events := []Event{
		{Type: SplitStart, CorrelationID: "c-1", Shape: ShapeArray},
		{Type: Emit, CorrelationID: "c-1", SequenceNumber: 1},
		{Type: DeliveryFailed, CorrelationID: "c-1", SequenceNumber: 2, Err: errors.New("full")},
		{Type: SplitDone, CorrelationID: "c-1", Shape: ShapeArray, Duration: time.Millisecond},
		{Type: Rejected, CorrelationID: "c-2", Err: &PayloadTypeError{}},
	}
	for _, e := range events {
		assert.NotPanics(t, func() { obs.OnEvent(e) })
	}
	assert.NotPanics(t, func() { LoggingObserver{}.OnEvent(Event{Type: Emit}) })
}
