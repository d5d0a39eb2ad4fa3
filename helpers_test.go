package xsplit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trickstertwo/xsplit/reactive"
)

// collector is a DirectAcceptor recording every message it takes.
type collector struct {
	mu   sync.Mutex
	msgs []*Message
}

func (c *collector) Accept(_ context.Context, m *Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
	return nil
}

func (c *collector) snapshot() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Message(nil), c.msgs...)
}

func payloads(msgs []*Message) []any {
	out := make([]any, len(msgs))
	for i, m := range msgs {
		out[i] = m.Payload()
	}
	return out
}

// recorder is a Subscriber of split output; initial is requested on subscribe.
type recorder struct {
	initial int64

	mu     sync.Mutex
	sub    reactive.Subscription
	msgs   []*Message
	err    error
	done   chan struct{}
	ended  atomic.Bool
	subbed chan struct{}
}

func newRecorder(initial int64) *recorder {
	return &recorder{initial: initial, done: make(chan struct{}), subbed: make(chan struct{})}
}

func (r *recorder) OnSubscribe(s reactive.Subscription) {
	r.mu.Lock()
	r.sub = s
	r.mu.Unlock()
	close(r.subbed)
	if r.initial > 0 {
		s.Request(r.initial)
	}
}

func (r *recorder) OnNext(m *Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.end()
}

func (r *recorder) OnComplete() { r.end() }

func (r *recorder) end() {
	if r.ended.CompareAndSwap(false, true) {
		close(r.done)
	}
}

func (r *recorder) subscription() reactive.Subscription {
	<-r.subbed
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub
}

func (r *recorder) snapshot() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.msgs...)
}

func (r *recorder) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("split output did not terminate")
	}
}

// subscribeTarget subscribes its subscribers to every publisher handed over,
// in order.
type subscribeTarget struct {
	subs []reactive.Subscriber[*Message]
}

func (t *subscribeTarget) SubscribeTo(p reactive.Publisher[*Message]) {
	for _, s := range t.subs {
		p.Subscribe(s)
	}
}

// dualTarget implements both destination capabilities.
type dualTarget struct {
	collector
	subscribeTarget
}

// sliceCollection is a Collection over a slice.
type sliceCollection []string

func (c sliceCollection) Len() int     { return len(c) }
func (c sliceCollection) At(i int) any { return c[i] }

// counter is an Iterator producing 1..n.
type counter struct{ i, n int }

func (c *counter) HasNext() bool { return c.i < c.n }
func (c *counter) Next() any {
	c.i++
	return c.i
}

// flood ignores demand and pushes count elements per request.
func flood(count int) reactive.Publisher[any] {
	return reactive.PublisherFunc[any](func(s reactive.Subscriber[any]) {
		s.OnSubscribe(floodSubscription{s: s, count: count})
	})
}

type floodSubscription struct {
	s     reactive.Subscriber[any]
	count int
}

func (f floodSubscription) Request(int64) {
	for i := 0; i < f.count; i++ {
		f.s.OnNext(fmt.Sprintf("e%d", i))
	}
}

func (floodSubscription) Cancel() {}

// events is an Observer recording event types.
type events struct {
	mu  sync.Mutex
	all []Event
}

func (e *events) OnEvent(ev Event) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
}

func (e *events) count(t EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.all {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func newTestSplitter(t *testing.T, init func(b *SplitterBuilder)) *Splitter {
	t.Helper()
	s, closeFn, err := New(init)
	if err != nil {
		t.Fatalf("build splitter: %v", err)
	}
	t.Cleanup(func() { _ = closeFn() })
	return s
}
