package redisstream

// Stream entry fields.
const (
	fieldID           = "id"
	fieldPayload      = "payload" // codec-encoded bytes
	fieldCodec        = "codec"
	fieldTimestamp    = "ts" // int64 ns
	fieldHeaderPrefix = "h:"
)

// Dead-letter entry fields.
const (
	fieldOrigStream = "orig_stream"
	fieldOrigID     = "orig_id"
	fieldError      = "error"
)

// Headers set on inbound messages.
const (
	// HeaderStreamID is the Redis entry id the message was read from.
	HeaderStreamID = "redis-stream-id"
	// HeaderProducedAt is the timestamp the message carried when it was written.
	HeaderProducedAt = "produced-at"
)
