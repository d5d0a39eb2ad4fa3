package xsplit

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// SplitterBuilder constructs Splitter instances (Builder pattern).
type SplitterBuilder struct {
	output any

	codecName string
	codecInst Codec

	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock
	idGen       IDGenerator

	delimiters  string
	sendTimeout time.Duration

	poolWorkers int
	poolBuffer  int
}

// NewSplitterBuilder returns a new builder with sensible defaults.
func NewSplitterBuilder() *SplitterBuilder {
	return &SplitterBuilder{
		codecName:   "json",
		poolWorkers: 4,
		poolBuffer:  1024,
	}
}

// WithOutput sets the destination used by Split. It must be a
// DirectAcceptor or a SubscriberTarget.
func (sb *SplitterBuilder) WithOutput(dst any) *SplitterBuilder {
	sb.output = dst
	return sb
}

func (sb *SplitterBuilder) WithCodec(name string) *SplitterBuilder {
	sb.codecName = name
	return sb
}

// WithCodecInstance accepts a ready Codec instance.
func (sb *SplitterBuilder) WithCodecInstance(c Codec) *SplitterBuilder {
	sb.codecInst = c
	return sb
}

func (sb *SplitterBuilder) WithMiddleware(mw ...Middleware) *SplitterBuilder {
	sb.middlewares = append(sb.middlewares, mw...)
	return sb
}

func (sb *SplitterBuilder) WithObserver(obs ...Observer) *SplitterBuilder {
	for _, o := range obs {
		if o != nil {
			sb.observers = append(sb.observers, o)
		}
	}
	return sb
}

// WithObserverPool sizes the asynchronous observer dispatcher.
func (sb *SplitterBuilder) WithObserverPool(workers, bufferSize int) *SplitterBuilder {
	sb.poolWorkers = workers
	sb.poolBuffer = bufferSize
	return sb
}

func (sb *SplitterBuilder) WithLogger(l *xlog.Logger) *SplitterBuilder {
	sb.logger = l
	return sb
}

func (sb *SplitterBuilder) WithClock(c xclock.Clock) *SplitterBuilder {
	sb.clock = c
	return sb
}

// WithIDGenerator replaces the id source for split output messages.
func (sb *SplitterBuilder) WithIDGenerator(g IDGenerator) *SplitterBuilder {
	sb.idGen = g
	return sb
}

// WithDelimiters makes string payloads splittable: they are tokenized on any
// of the given runes and empty tokens are dropped.
func (sb *SplitterBuilder) WithDelimiters(delimiters string) *SplitterBuilder {
	sb.delimiters = delimiters
	return sb
}

// WithSendTimeout bounds each Accept call on the direct path.
// Zero waits as long as the caller's context allows.
func (sb *SplitterBuilder) WithSendTimeout(d time.Duration) *SplitterBuilder {
	if d >= 0 {
		sb.sendTimeout = d
	}
	return sb
}

func (sb *SplitterBuilder) Build() (*Splitter, error) {
	switch sb.output.(type) {
	case nil, DirectAcceptor, SubscriberTarget:
	default:
		return nil, ErrInvalidDestination
	}

	var cd Codec
	var err error
	if sb.codecInst != nil {
		cd = sb.codecInst
	} else {
		cd, err = NewCodec(sb.codecName)
		if err != nil {
			return nil, err
		}
	}

	clk := sb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := sb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	s := &Splitter{
		output:       sb.output,
		stamper:      NewStamper(sb.idGen, clk),
		codec:        cd,
		clock:        clk,
		logger:       lg,
		middlewares:  sb.middlewares,
		delimiters:   sb.delimiters,
		sendTimeout:  sb.sendTimeout,
		observerPool: NewObserverPool(context.Background(), sb.poolWorkers, sb.poolBuffer),
		metrics:      &splitMetrics{},
	}

	hasLoggingObserver := false
	for _, o := range sb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		s.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range sb.observers {
		s.AddObserver(o)
	}

	return s, nil
}

// New constructs a Splitter via Builder and returns a close func for convenience.
func New(init func(b *SplitterBuilder)) (*Splitter, func() error, error) {
	b := NewSplitterBuilder()
	if init != nil {
		init(b)
	}
	s, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return s.Close(context.Background()) }
	return s, closeFn, nil
}
