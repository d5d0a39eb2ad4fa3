package xsplit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	defaultSplitter atomic.Pointer[Splitter]
	defaultInitMu   sync.Mutex
)

// Default returns the process-wide Splitter. The lazily built fallback has no
// output, so Split on it fails with ErrNoDestination until an adapter's Use
// or SetDefault installs a configured one.
func Default() *Splitter {
	if s := defaultSplitter.Load(); s != nil {
		return s
	}

	defaultInitMu.Lock()
	defer defaultInitMu.Unlock()
	if s := defaultSplitter.Load(); s != nil {
		return s
	}
	s, err := NewSplitterBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("xsplit: failed to initialize default splitter: %v", err))
	}
	defaultSplitter.Store(s)
	return s
}

// SetDefault replaces the process-wide Splitter. The previous one is not closed.
func SetDefault(s *Splitter) {
	if s == nil {
		panic("xsplit: SetDefault called with nil Splitter")
	}
	defaultSplitter.Store(s)
}

// Split splits msg with the default splitter.
func Split(ctx context.Context, msg *Message) error {
	return Default().Split(ctx, msg)
}

// SplitTo splits msg into dst with the default splitter.
func SplitTo(ctx context.Context, msg *Message, dst any) error {
	return Default().SplitTo(ctx, msg, dst)
}
