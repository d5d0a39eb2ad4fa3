// Package kafka writes split output to a Kafka topic.
//
// Every split message becomes one record. The record key is taken from a
// header (correlation-id by default) so all parts of one split land in the
// same partition and keep their sequence order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/trickstertwo/xsplit"
)

// Config controls the Kafka writer.
type Config struct {
	Brokers      []string
	Topic        string
	KeyHeader    string
	BatchTimeout time.Duration
	// RequiredAcks is -1 for all replicas, 0 for none, 1 for the leader.
	RequiredAcks int
	MaxAttempts  int
	WriteTimeout time.Duration
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Brokers:      []string{"127.0.0.1:9092"},
		KeyHeader:    xsplit.HeaderCorrelationID,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("config: at least one broker required")
	}
	if c.Topic == "" {
		return errors.New("config: topic required")
	}
	if c.RequiredAcks < -1 || c.RequiredAcks > 1 {
		return fmt.Errorf("config: required_acks must be -1, 0 or 1, got %d", c.RequiredAcks)
	}
	return nil
}

// ConfigFromMap safely converts cfg into Config with defaults.
// brokers may be a []string or a comma-separated string.
func ConfigFromMap(cfg map[string]any) Config {
	c := Defaults()

	switch v := cfg["brokers"].(type) {
	case []string:
		if len(v) > 0 {
			c.Brokers = v
		}
	case string:
		if v != "" {
			c.Brokers = strings.Split(v, ",")
		}
	}
	if v, ok := cfg["topic"].(string); ok {
		c.Topic = v
	}
	if v, ok := cfg["key_header"].(string); ok && v != "" {
		c.KeyHeader = v
	}
	c.BatchTimeout = durationFrom(cfg, "batch_timeout", c.BatchTimeout)
	c.WriteTimeout = durationFrom(cfg, "write_timeout", c.WriteTimeout)
	if v, ok := cfg["required_acks"].(int); ok {
		c.RequiredAcks = v
	}
	if v, ok := cfg["max_attempts"].(int); ok && v > 0 {
		c.MaxAttempts = v
	}
	return c
}

// durationFrom reads a positive time.Duration or a duration string.
func durationFrom(cfg map[string]any, key string, def time.Duration) time.Duration {
	switch v := cfg[key].(type) {
	case time.Duration:
		if v > 0 {
			return v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// messageWriter is the part of *kafka.Writer the acceptor needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Acceptor is a DirectAcceptor producing one Kafka record per message.
type Acceptor struct {
	cfg    Config
	writer messageWriter

	accepted atomic.Uint64
	errors   atomic.Uint64
}

var _ xsplit.DirectAcceptor = (*Acceptor)(nil)

// NewAcceptor builds a synchronous kafka.Writer for cfg.
func NewAcceptor(cfg Config) (*Acceptor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:            cfg.MaxAttempts,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
		Async:                  false,
	}
	return &Acceptor{cfg: cfg, writer: w}, nil
}

// Accept encodes msg with the codec found in ctx and writes it.
func (a *Acceptor) Accept(ctx context.Context, msg *xsplit.Message) error {
	rec, err := a.record(xsplit.CodecOrDefault(ctx), msg)
	if err != nil {
		a.errors.Add(1)
		return err
	}
	if err := a.writer.WriteMessages(ctx, rec); err != nil {
		a.errors.Add(1)
		return fmt.Errorf("kafka write %s: %w", a.cfg.Topic, err)
	}
	a.accepted.Add(1)
	return nil
}

// record converts msg into a Kafka message.
func (a *Acceptor) record(codec xsplit.Codec, msg *xsplit.Message) (kafka.Message, error) {
	value, err := codec.Marshal(msg.Payload())
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode payload: %w", err)
	}

	headers := msg.Headers()
	rec := kafka.Message{
		Value:   value,
		Time:    msg.Timestamp(),
		Headers: make([]kafka.Header, 0, len(headers)+1),
	}
	if k, ok := headers[a.cfg.KeyHeader].(string); ok && k != "" {
		rec.Key = []byte(k)
	}

	rec.Headers = append(rec.Headers, kafka.Header{Key: "content-type", Value: []byte(codec.Name())})
	for k, v := range headers {
		if k == xsplit.HeaderTimestamp {
			continue
		}
		var b []byte
		switch h := v.(type) {
		case string:
			b = []byte(h)
		default:
			if b, err = codec.Marshal(h); err != nil {
				return kafka.Message{}, fmt.Errorf("encode header %q: %w", k, err)
			}
		}
		rec.Headers = append(rec.Headers, kafka.Header{Key: k, Value: b})
	}
	return rec, nil
}

// Close flushes and closes the writer.
func (a *Acceptor) Close() error {
	return a.writer.Close()
}

// Stats is acceptor telemetry.
type Stats struct {
	Accepted uint64
	Errors   uint64
}

func (a *Acceptor) Stats() Stats {
	return Stats{Accepted: a.accepted.Load(), Errors: a.errors.Load()}
}
