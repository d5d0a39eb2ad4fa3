package xsplit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperCodec struct{ JSONCodec }

func (upperCodec) Name() string { return "upper-json" }

func TestCodecRegistry(t *testing.T) {
	require.NoError(t, RegisterCodec("upper-json", func() Codec { return upperCodec{} }))
	assert.Contains(t, RegisteredCodecs(), "json")
	assert.Contains(t, RegisteredCodecs(), "upper-json")

	c, err := NewCodec("upper-json")
	require.NoError(t, err)
	assert.Equal(t, "upper-json", c.Name())

	_, err = NewCodec("missing")
	assert.ErrorIs(t, err, ErrUnknownCodec)

	assert.Error(t, RegisterCodec("", func() Codec { return JSONCodec{} }))
	assert.Error(t, RegisterCodec("x", nil))
}

func TestDecode_UsesInjectedCodec(t *testing.T) {
	v, err := Decode[map[string]int](context.Background(), []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v["a"])

	ctx := InjectAll(context.Background(), upperCodec{}, nil, nil)
	c := CodecOrDefault(ctx)
	assert.Equal(t, "upper-json", c.Name())

	_, ok := LoggerFromContext(ctx)
	assert.False(t, ok)
}
