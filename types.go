package xsplit

import (
	"time"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Metrics is a point-in-time snapshot of splitter counters.
type Metrics struct {
	Splits            uint64 // splits started
	Emitted           uint64 // messages delivered or pushed downstream
	PayloadTypeErrors uint64
	DeliveryErrors    uint64
	StreamErrors      uint64
	Cancelled         uint64
	EventsDropped     uint64
	AvgSplitTimeMs    float64 // exponential moving average
}

// HealthStatus indicates splitter health for Kubernetes probes.
type HealthStatus struct {
	Status    string
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
