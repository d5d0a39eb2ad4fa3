package redisstream

import (
	"fmt"
	"os"
	"time"
)

// Config for the Redis Streams acceptor and source.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// Stream is the key written by Acceptor and read by Source.
	Stream string

	// Consumer group
	Group       string
	Consumer    string
	StartID     string
	Concurrency int
	BatchSize   int
	Block       time.Duration
	AutoCreate  bool
	AckTimeout  time.Duration

	// Stream management
	AutoDeleteOnAck bool
	DeadLetter      string
	MaxLenApprox    int64

	// Pending entry recovery
	ClaimMinIdle  time.Duration
	ClaimBatch    int
	ClaimInterval time.Duration
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "xsplit"
	}

	return Config{
		Addr:          "127.0.0.1:6379",
		Stream:        "xsplit",
		Group:         "xsplit",
		Consumer:      fmt.Sprintf("xsplit-%s-%d", hostname, os.Getpid()),
		StartID:       "$",
		Concurrency:   8,
		BatchSize:     128,
		Block:         5 * time.Second,
		AutoCreate:    true,
		AckTimeout:    5 * time.Second,
		ClaimBatch:    128,
		ClaimInterval: 15 * time.Second,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Stream == "" {
		return fmt.Errorf("config: stream required")
	}
	if c.Group == "" {
		return fmt.Errorf("config: group required")
	}
	if c.Consumer == "" {
		return fmt.Errorf("config: consumer required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.Block <= 0 {
		return fmt.Errorf("config: block must be > 0, got %v", c.Block)
	}
	if c.DeadLetter != "" && c.DeadLetter == c.Stream {
		return fmt.Errorf("config: dead_letter must differ from stream %q", c.Stream)
	}
	if c.ClaimMinIdle > 0 && c.ClaimInterval <= 0 {
		return fmt.Errorf("config: claim_interval must be > 0 if claim_min_idle is set")
	}
	return nil
}

// toMap converts Config to its generic map form.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":               c.Addr,
		"username":           c.Username,
		"password":           c.Password,
		"db":                 c.DB,
		"tls":                c.TLS,
		"tls_server_name":    c.TLSServerName,
		"stream":             c.Stream,
		"group":              c.Group,
		"consumer":           c.Consumer,
		"start_id":           c.StartID,
		"concurrency":        c.Concurrency,
		"batch_size":         c.BatchSize,
		"block":              c.Block,
		"auto_create":        c.AutoCreate,
		"ack_timeout":        c.AckTimeout,
		"auto_delete_on_ack": c.AutoDeleteOnAck,
		"dead_letter":        c.DeadLetter,
		"max_len_approx":     c.MaxLenApprox,
		"claim_min_idle":     c.ClaimMinIdle,
		"claim_batch":        c.ClaimBatch,
		"claim_interval":     c.ClaimInterval,
	}
}

// ConfigFromMap safely converts cfg into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	d := Defaults()

	getString := func(k, def string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return def
	}
	getInt := func(k string, def int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return def
	}
	getInt64 := func(k string, def int64) int64 {
		switch v := cfg[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
		return def
	}
	getBool := func(k string, def bool) bool {
		if v, ok := cfg[k].(bool); ok {
			return v
		}
		return def
	}
	getDur := func(k string, def time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return def
	}

	return Config{
		Addr:          getString("addr", d.Addr),
		Username:      getString("username", ""),
		Password:      getString("password", ""),
		DB:            getInt("db", 0),
		TLS:           getBool("tls", false),
		TLSServerName: getString("tls_server_name", ""),

		Stream: getString("stream", d.Stream),

		Group:       getString("group", d.Group),
		Consumer:    getString("consumer", d.Consumer),
		StartID:     getString("start_id", d.StartID),
		Concurrency: getInt("concurrency", d.Concurrency),
		BatchSize:   getInt("batch_size", d.BatchSize),
		Block:       getDur("block", d.Block),
		AutoCreate:  getBool("auto_create", d.AutoCreate),
		AckTimeout:  getDur("ack_timeout", d.AckTimeout),

		AutoDeleteOnAck: getBool("auto_delete_on_ack", false),
		DeadLetter:      getString("dead_letter", ""),
		MaxLenApprox:    getInt64("max_len_approx", 0),

		ClaimMinIdle:  getDur("claim_min_idle", 0),
		ClaimBatch:    getInt("claim_batch", d.ClaimBatch),
		ClaimInterval: getDur("claim_interval", d.ClaimInterval),
	}
}
