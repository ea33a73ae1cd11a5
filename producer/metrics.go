package producer

import (
	"time"
)

// MetricsCollector collects dispatch metrics
type MetricsCollector interface {
	// RecordCall records one dispatched call and its send strategy
	RecordCall(method string, strategy string, duration time.Duration, success bool)

	// RecordNoReply records a request that got no reply
	RecordNoReply(method string)
}

// NoOpMetricsCollector is a no-op implementation of MetricsCollector
type NoOpMetricsCollector struct{}

// RecordCall does nothing
func (n *NoOpMetricsCollector) RecordCall(method string, strategy string, duration time.Duration, success bool) {
}

// RecordNoReply does nothing
func (n *NoOpMetricsCollector) RecordNoReply(method string) {}
