package health

import (
	"context"
	"fmt"
	"time"

	"github.com/glimte/mmate-producers/internal/rabbitmq"
)

func newResult(name string) (CheckResult, time.Time) {
	start := time.Now()
	return CheckResult{Name: name, Timestamp: start, Details: make(map[string]interface{})}, start
}

func finish(result CheckResult, start time.Time, status Status, message string, err error) CheckResult {
	result.Status = status
	result.Message = message
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)
	result.Details["response_time_ms"] = result.Duration.Milliseconds()
	return result
}

// RabbitMQChecker checks that the managed connection is up and can open channels
type RabbitMQChecker struct {
	manager *rabbitmq.ConnectionManager
}

// NewRabbitMQChecker creates a new RabbitMQ health checker
func NewRabbitMQChecker(manager *rabbitmq.ConnectionManager) *RabbitMQChecker {
	return &RabbitMQChecker{manager: manager}
}

// Name implements Checker
func (c *RabbitMQChecker) Name() string {
	return "rabbitmq"
}

// Check implements Checker
func (c *RabbitMQChecker) Check(ctx context.Context) CheckResult {
	result, start := newResult(c.Name())

	conn, err := c.manager.GetConnection()
	if err != nil {
		return finish(result, start, StatusUnhealthy, "no connection", err)
	}
	result.Details["connection_open"] = !conn.IsClosed()

	ch, err := conn.Channel()
	if err != nil {
		return finish(result, start, StatusUnhealthy, "failed to open channel", err)
	}
	ch.Close()

	return finish(result, start, StatusHealthy, "connection is healthy", nil)
}

// ChannelPoolChecker checks that the publishing pool can hand out a channel
type ChannelPoolChecker struct {
	pool *rabbitmq.ChannelPool
}

// NewChannelPoolChecker creates a new channel pool health checker
func NewChannelPoolChecker(pool *rabbitmq.ChannelPool) *ChannelPoolChecker {
	return &ChannelPoolChecker{pool: pool}
}

// Name implements Checker
func (c *ChannelPoolChecker) Name() string {
	return "channel_pool"
}

// Check implements Checker
func (c *ChannelPoolChecker) Check(ctx context.Context) CheckResult {
	result, start := newResult(c.Name())

	ch, err := c.pool.Get(ctx)
	if err != nil {
		return finish(result, start, StatusUnhealthy, "failed to get channel from pool", err)
	}
	c.pool.Put(ch)

	result.Details["pool_size"] = c.pool.Size()
	return finish(result, start, StatusHealthy, "channel pool is healthy", nil)
}

// PendingRequestsChecker reports degraded health while many requests wait for replies
type PendingRequestsChecker struct {
	requester *rabbitmq.Requester
	threshold int
}

// NewPendingRequestsChecker creates a checker that degrades above threshold pending requests
func NewPendingRequestsChecker(requester *rabbitmq.Requester, threshold int) *PendingRequestsChecker {
	return &PendingRequestsChecker{requester: requester, threshold: threshold}
}

// Name implements Checker
func (c *PendingRequestsChecker) Name() string {
	return "pending_requests"
}

// Check implements Checker
func (c *PendingRequestsChecker) Check(ctx context.Context) CheckResult {
	result, start := newResult(c.Name())

	pending := c.requester.PendingCount()
	result.Details["pending"] = pending

	if c.threshold > 0 && pending > c.threshold {
		return finish(result, start, StatusDegraded, fmt.Sprintf("%d requests awaiting replies", pending), nil)
	}
	return finish(result, start, StatusHealthy, "reply backlog is normal", nil)
}

// CircuitBreakerChecker reports unhealthy while the breaker rejects sends
type CircuitBreakerChecker struct {
	breaker *rabbitmq.CircuitBreaker
}

// NewCircuitBreakerChecker creates a circuit breaker health checker
func NewCircuitBreakerChecker(breaker *rabbitmq.CircuitBreaker) *CircuitBreakerChecker {
	return &CircuitBreakerChecker{breaker: breaker}
}

// Name implements Checker
func (c *CircuitBreakerChecker) Name() string {
	return "circuit_breaker"
}

// Check implements Checker
func (c *CircuitBreakerChecker) Check(ctx context.Context) CheckResult {
	result, start := newResult(c.Name())

	state := c.breaker.State()
	result.Details["breaker"] = c.breaker.Name()
	result.Details["state"] = state.String()

	switch state {
	case rabbitmq.BreakerOpen:
		return finish(result, start, StatusUnhealthy, "circuit breaker is open", nil)
	case rabbitmq.BreakerHalfOpen:
		return finish(result, start, StatusDegraded, "circuit breaker is probing", nil)
	}
	return finish(result, start, StatusHealthy, "circuit breaker is closed", nil)
}

// ComponentChecker adapts a function into a Checker
type ComponentChecker struct {
	name  string
	check func(ctx context.Context) (Status, string, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, check func(ctx context.Context) (Status, string, error)) *ComponentChecker {
	return &ComponentChecker{name: name, check: check}
}

// Name implements Checker
func (c *ComponentChecker) Name() string {
	return c.name
}

// Check implements Checker
func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	result, start := newResult(c.Name())
	status, message, err := c.check(ctx)
	return finish(result, start, status, message, err)
}
