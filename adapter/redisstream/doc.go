// Package redisstream connects xsplit to Redis Streams.
//
// Acceptor is a DirectAcceptor that appends every split message to a stream
// with XADD. Source reads a stream through a consumer group and hands each
// entry to an xsplit.Handler, typically Splitter.Handler, so that plural
// payloads published upstream are split as they arrive.
//
// Entry layout:
//   - id: message id
//   - payload: payload encoded with the codec named in "codec" (default json)
//   - ts: message timestamp in Unix nanoseconds
//   - h:<name>: one field per remaining header
//
// Minimal config keys for ConfigFromMap:
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - stream: stream key written by Acceptor and read by Source
//   - group: consumer group name (default "xsplit")
//   - consumer: consumer name (default "xsplit-<host>-<pid>")
//   - concurrency: number of workers (default 8)
//   - batch_size: XREADGROUP COUNT (default 128)
//   - block: XREADGROUP BLOCK duration (default 5s)
//   - dead_letter: stream receiving entries whose handler failed (optional)
//
// Example:
//
//	client, _ := redisstream.Dial(cfg)
//	s, _ := xsplit.NewSplitterBuilder().
//	    WithOutput(redisstream.NewAcceptor(client, outCfg)).
//	    Build()
//	sub, _ := redisstream.NewSource(client, inCfg).Subscribe(ctx, s.Handler())
//	defer sub.Close()
package redisstream
