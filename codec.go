package xsplit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Codec is the Strategy for encoding/decoding payloads when split output
// leaves the process.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the default JSON implementation.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// CodecFactory constructs codecs via Factory pattern.
type CodecFactory func() Codec

type codecRegistry struct {
	mu        sync.RWMutex
	factories map[string]CodecFactory
}

var codecs = &codecRegistry{
	factories: map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
	},
}

func (r *codecRegistry) lookup(name string) (CodecFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// RegisterCodec makes a codec available to NewCodec and to inbound sources
// that record the codec name next to the payload. Registering a name twice
// replaces the earlier factory.
func RegisterCodec(name string, factory CodecFactory) error {
	switch {
	case name == "":
		return errors.New("codec name must not be empty")
	case factory == nil:
		return errors.New("codec factory must not be nil")
	}
	codecs.mu.Lock()
	codecs.factories[name] = factory
	codecs.mu.Unlock()
	return nil
}

// NewCodec constructs a codec by name.
func NewCodec(name string) (Codec, error) {
	f, ok := codecs.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return f(), nil
}

// RegisteredCodecs lists registered codec names in sorted order.
func RegisteredCodecs() []string {
	codecs.mu.RLock()
	names := make([]string, 0, len(codecs.factories))
	for n := range codecs.factories {
		names = append(names, n)
	}
	codecs.mu.RUnlock()
	slices.Sort(names)
	return names
}

// CodecOrDefault returns the Codec injected into ctx, falling back to JSON.
func CodecOrDefault(ctx context.Context) Codec {
	if c, ok := CodecFromContext(ctx); ok {
		return c
	}
	return JSONCodec{}
}

// Decode unmarshals data into T using the Codec found in ctx (JSON if none).
func Decode[T any](ctx context.Context, data []byte) (T, error) {
	var v T
	err := CodecOrDefault(ctx).Unmarshal(data, &v)
	return v, err
}
