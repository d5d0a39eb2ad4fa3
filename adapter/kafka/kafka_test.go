package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xsplit"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) (string, bool) {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}

func TestAcceptor_KeysRecordsByCorrelation(t *testing.T) {
	w := &fakeWriter{}
	cfg := Defaults()
	cfg.Topic = "parts"
	acc := &Acceptor{cfg: cfg, writer: w}

	s, err := xsplit.NewSplitterBuilder().WithOutput(acc).Build()
	require.NoError(t, err)
	defer func() { _ = s.Close(context.Background()) }()

	msg := xsplit.NewMessage([]string{"a", "b", "c"}, nil)
	require.NoError(t, s.Split(context.Background(), msg))

	require.Len(t, w.msgs, 3)
	for i, rec := range w.msgs {
		assert.Equal(t, msg.ID(), string(rec.Key))

		seq, ok := header(rec, xsplit.HeaderSequenceNumber)
		require.True(t, ok)
		assert.Equal(t, []string{"1", "2", "3"}[i], seq)

		ct, _ := header(rec, "content-type")
		assert.Equal(t, "json", ct)
	}
	assert.Equal(t, `"a"`, string(w.msgs[0].Value))
	assert.Equal(t, uint64(3), acc.Stats().Accepted)

	require.NoError(t, acc.Close())
	assert.True(t, w.closed)
}

func TestAcceptor_WriteFailureStopsSplit(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	cfg := Defaults()
	cfg.Topic = "parts"
	acc := &Acceptor{cfg: cfg, writer: w}

	s, err := xsplit.NewSplitterBuilder().WithOutput(acc).Build()
	require.NoError(t, err)
	defer func() { _ = s.Close(context.Background()) }()

	err = s.Split(context.Background(), xsplit.NewMessage([]int{1, 2}, nil))

	var derr *xsplit.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 1, derr.SequenceNumber)
	assert.Equal(t, uint64(1), acc.Stats().Errors)
}

func TestConfig(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{
		"brokers":       "k1:9092,k2:9092",
		"topic":         "out",
		"required_acks": 1,
		"batch_timeout": "5ms",
		"write_timeout": 3 * time.Second,
	})
	assert.Equal(t, 5*time.Millisecond, cfg.BatchTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, "out", cfg.Topic)
	assert.Equal(t, 1, cfg.RequiredAcks)
	assert.Equal(t, xsplit.HeaderCorrelationID, cfg.KeyHeader)
	require.NoError(t, cfg.Validate())

	assert.Error(t, Defaults().Validate())

	acc, err := NewAcceptor(cfg)
	require.NoError(t, err)
	require.NoError(t, acc.Close())
}
