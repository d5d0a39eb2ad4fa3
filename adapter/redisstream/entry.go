package redisstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trickstertwo/xsplit"
)

// encodeEntry flattens msg into stream entry fields.
func encodeEntry(codec xsplit.Codec, msg *xsplit.Message) (map[string]any, error) {
	payload, err := codec.Marshal(msg.Payload())
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	headers := msg.Headers()
	vals := make(map[string]any, 4+len(headers))
	vals[fieldID] = msg.ID()
	vals[fieldPayload] = payload
	vals[fieldCodec] = codec.Name()
	vals[fieldTimestamp] = msg.Timestamp().UnixNano()

	for k, v := range headers {
		if k == xsplit.HeaderID || k == xsplit.HeaderTimestamp {
			continue
		}
		s, err := encodeHeader(codec, v)
		if err != nil {
			return nil, fmt.Errorf("encode header %q: %w", k, err)
		}
		vals[fieldHeaderPrefix+k] = s
	}
	return vals, nil
}

func encodeHeader(codec xsplit.Codec, v any) (string, error) {
	switch h := v.(type) {
	case string:
		return h, nil
	case int:
		return strconv.Itoa(h), nil
	case int64:
		return strconv.FormatInt(h, 10), nil
	case bool:
		return strconv.FormatBool(h), nil
	case time.Time:
		return h.Format(time.RFC3339Nano), nil
	}
	b, err := codec.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeEntry rebuilds a message from stream entry fields. The payload is
// decoded into any, so encoded slices come back as []any and stay splittable.
// The message keeps its original id when the entry carries one.
func decodeEntry(streamID string, vals map[string]any) (*xsplit.Message, error) {
	codecName := "json"
	if v, ok := vals[fieldCodec]; ok {
		codecName = asString(v)
	}
	codec, err := xsplit.NewCodec(codecName)
	if err != nil {
		return nil, err
	}

	var payload any
	if v, ok := vals[fieldPayload]; ok {
		if err := codec.Unmarshal([]byte(asString(v)), &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}

	id := streamID
	if v, ok := vals[fieldID]; ok && asString(v) != "" {
		id = asString(v)
	}

	mb := xsplit.NewMessageBuilder().
		WithPayload(payload).
		WithIDGenerator(func() string { return id }).
		SetHeader(HeaderStreamID, streamID)
	if ns, ok := toInt64(vals[fieldTimestamp]); ok && ns > 0 {
		mb.SetHeader(HeaderProducedAt, time.Unix(0, ns))
	}

	for k, v := range vals {
		name, ok := strings.CutPrefix(k, fieldHeaderPrefix)
		if !ok {
			continue
		}
		h, err := decodeHeader(codec, name, asString(v))
		if err != nil {
			return nil, fmt.Errorf("decode header %q: %w", name, err)
		}
		mb.SetHeader(name, h)
	}
	return mb.Build(), nil
}

// decodeHeader restores the typed split headers; others stay strings.
func decodeHeader(codec xsplit.Codec, name, raw string) (any, error) {
	switch name {
	case xsplit.HeaderSequenceNumber, xsplit.HeaderSequenceSize:
		return strconv.Atoi(raw)
	case xsplit.HeaderSequenceDetails:
		var d []xsplit.SequenceDetails
		if err := codec.Unmarshal([]byte(raw), &d); err != nil {
			return nil, err
		}
		return d, nil
	}
	return raw, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	case []byte:
		return toInt64(string(n))
	}
	return 0, false
}
