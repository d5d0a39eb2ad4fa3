package redisstream

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xsplit"
)

// Acceptor appends split messages to a Redis stream (XADD).
// The payload codec is taken from the context the splitter injects,
// falling back to JSON.
type Acceptor struct {
	cfg    Config
	client *redis.Client

	metrics *acceptorMetrics
}

type acceptorMetrics struct {
	accepted atomic.Uint64
	errors   atomic.Uint64
}

var _ xsplit.DirectAcceptor = (*Acceptor)(nil)

// NewAcceptor writes into cfg.Stream using client.
func NewAcceptor(client *redis.Client, cfg Config) *Acceptor {
	return &Acceptor{cfg: cfg, client: client, metrics: &acceptorMetrics{}}
}

// Accept encodes msg and appends it to the stream.
func (a *Acceptor) Accept(ctx context.Context, msg *xsplit.Message) error {
	values, err := encodeEntry(xsplit.CodecOrDefault(ctx), msg)
	if err != nil {
		a.metrics.errors.Add(1)
		return err
	}

	args := &redis.XAddArgs{
		Stream: a.cfg.Stream,
		ID:     "*",
		Values: values,
	}
	if a.cfg.MaxLenApprox > 0 {
		args.MaxLen = a.cfg.MaxLenApprox
		args.Approx = true
	}

	if err := a.client.XAdd(ctx, args).Err(); err != nil {
		a.metrics.errors.Add(1)
		return fmt.Errorf("xadd %s: %w", a.cfg.Stream, err)
	}
	a.metrics.accepted.Add(1)
	return nil
}

// AcceptorStats is acceptor telemetry.
type AcceptorStats struct {
	Accepted uint64
	Errors   uint64
}

func (a *Acceptor) Stats() AcceptorStats {
	return AcceptorStats{
		Accepted: a.metrics.accepted.Load(),
		Errors:   a.metrics.errors.Load(),
	}
}
