// Package metrics exports producer dispatch and connection metrics to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/glimte/mmate-producers/internal/rabbitmq"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "mmate"
	subsystem = "producer"
)

// Collector implements producer.MetricsCollector, rabbitmq.ConnectionStateListener and
// rabbitmq.BreakerListener
type Collector struct {
	mu      sync.RWMutex
	methods map[string]*MethodStats

	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	noReplyTotal    *prometheus.CounterVec
	connected       prometheus.Gauge
	disconnects     prometheus.Counter
	reconnectTrials prometheus.Counter
	breakerState    *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

// MethodStats holds the in-process totals for one producer method
type MethodStats struct {
	Calls        uint64        `json:"calls"`
	Failures     uint64        `json:"failures"`
	NoReplies    uint64        `json:"no_replies"`
	TotalLatency time.Duration `json:"total_latency"`
	LastCallAt   time.Time     `json:"last_call_at"`
}

// AvgLatency returns the mean call duration
func (s MethodStats) AvgLatency() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Calls)
}

// Snapshot is a point-in-time view of all method statistics
type Snapshot struct {
	Methods     map[string]MethodStats `json:"methods"`
	TotalCalls  uint64                 `json:"total_calls"`
	CollectedAt time.Time              `json:"collected_at"`
}

// NewCollector creates a collector registering with registerer, or the default registerer when nil
func NewCollector(registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Collector{
		methods:    make(map[string]*MethodStats),
		registerer: registerer,
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "calls_total",
			Help:      "Total number of producer method calls",
		}, []string{"method", "strategy", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "call_duration_seconds",
			Help:      "Duration of producer method calls including the wait for a reply",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "strategy"}),
		noReplyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "no_reply_total",
			Help:      "Total number of requests that received no reply in time",
		}, []string{"method"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "up",
			Help:      "Whether the broker connection is established",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "disconnects_total",
			Help:      "Total number of lost broker connections",
		}),
		reconnectTrials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnection attempts",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"breaker"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (c *Collector) Register() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registered {
		return nil
	}

	for _, col := range []prometheus.Collector{
		c.callsTotal,
		c.callDuration,
		c.noReplyTotal,
		c.connected,
		c.disconnects,
		c.reconnectTrials,
		c.breakerState,
	} {
		if err := c.registerer.Register(col); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	c.registered = true
	return nil
}

// RecordCall implements producer.MetricsCollector
func (c *Collector) RecordCall(method string, strategy string, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}

	c.mu.Lock()
	stats := c.statsFor(method)
	stats.Calls++
	if !success {
		stats.Failures++
	}
	stats.TotalLatency += duration
	stats.LastCallAt = time.Now()
	c.mu.Unlock()

	c.callsTotal.WithLabelValues(method, strategy, outcome).Inc()
	c.callDuration.WithLabelValues(method, strategy).Observe(duration.Seconds())
}

// RecordNoReply implements producer.MetricsCollector
func (c *Collector) RecordNoReply(method string) {
	c.mu.Lock()
	c.statsFor(method).NoReplies++
	c.mu.Unlock()

	c.noReplyTotal.WithLabelValues(method).Inc()
}

// OnConnected implements rabbitmq.ConnectionStateListener
func (c *Collector) OnConnected() {
	c.connected.Set(1)
}

// OnDisconnected implements rabbitmq.ConnectionStateListener
func (c *Collector) OnDisconnected(err error) {
	c.connected.Set(0)
	c.disconnects.Inc()
}

// OnReconnecting implements rabbitmq.ConnectionStateListener
func (c *Collector) OnReconnecting(attempt int) {
	c.reconnectTrials.Inc()
}

// OnBreakerStateChange implements rabbitmq.BreakerListener
func (c *Collector) OnBreakerStateChange(name string, from, to rabbitmq.BreakerState) {
	c.breakerState.WithLabelValues(name).Set(float64(to))
}

// Method returns a copy of the statistics of one method, or nil when it was never called
func (c *Collector) Method(method string) *MethodStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if stats, ok := c.methods[method]; ok {
		cp := *stats
		return &cp
	}
	return nil
}

// Snapshot returns a point-in-time copy of all method statistics
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Methods:     make(map[string]MethodStats, len(c.methods)),
		CollectedAt: time.Now(),
	}
	for name, stats := range c.methods {
		snap.Methods[name] = *stats
		snap.TotalCalls += stats.Calls
	}
	return snap
}

// Reset clears all metrics (useful for testing)
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.methods = make(map[string]*MethodStats)
	c.callsTotal.Reset()
	c.callDuration.Reset()
	c.noReplyTotal.Reset()
	c.connected.Set(0)
}

// statsFor returns the stats of method, creating them; callers hold c.mu
func (c *Collector) statsFor(method string) *MethodStats {
	if stats, ok := c.methods[method]; ok {
		return stats
	}
	stats := &MethodStats{}
	c.methods[method] = stats
	return stats
}
