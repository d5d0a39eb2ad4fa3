package redisstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xsplit"
)

// delivery is one stream entry handed to a worker.
type delivery struct {
	s     *Source
	group string
	id    string
	vals  map[string]any
	msg   *xsplit.Message

	// Ensures Ack/Nack happens exactly once
	onceAck *sync.Once
}

// Ack acknowledges the entry, marking it as processed.
func (d *delivery) Ack(ctx context.Context) error {
	var err error
	d.onceAck.Do(func() {
		err = d.s.client.XAck(ctx, d.s.cfg.Stream, d.group, d.id).Err()
		if err == nil {
			d.s.metrics.acked.Add(1)
			if d.s.cfg.AutoDeleteOnAck {
				_ = d.s.client.XDel(ctx, d.s.cfg.Stream, d.id).Err()
			}
		}
	})
	return err
}

// Nack rejects the entry. Redis Streams has no explicit NACK, so with a
// dead-letter stream configured the raw entry is copied there and the
// original acknowledged; otherwise it stays pending for the claim loop.
func (d *delivery) Nack(ctx context.Context, reason error) error {
	d.s.metrics.nacked.Add(1)

	dl := d.s.cfg.DeadLetter
	if dl == "" {
		return nil
	}

	values := make(map[string]any, 3+len(d.vals))
	for k, v := range d.vals {
		values[k] = v
	}
	values[fieldOrigStream] = d.s.cfg.Stream
	values[fieldOrigID] = d.id
	values[fieldError] = fmt.Sprintf("%v", reason)

	if err := d.s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dl,
		ID:     "*",
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("dead-letter %s: %w", dl, err)
	}
	d.s.metrics.deadLettered.Add(1)

	return d.Ack(ctx)
}
