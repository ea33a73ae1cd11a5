package rabbitmq

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a circuit breaker rejects broker operations
var ErrCircuitOpen = errors.New("rabbitmq: circuit breaker open")

// BreakerState is the state of a CircuitBreaker
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitOpenError reports a rejected operation
type CircuitOpenError struct {
	Name      string
	State     BreakerState
	Failures  int
	NextProbe time.Time
}

func (e *CircuitOpenError) Error() string {
	if e.State == BreakerHalfOpen {
		return fmt.Sprintf("rabbitmq: circuit breaker %s half-open, probe in flight", e.Name)
	}
	return fmt.Sprintf("rabbitmq: circuit breaker %s open after %d failures, next probe in %v",
		e.Name, e.Failures, time.Until(e.NextProbe).Round(time.Millisecond))
}

func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// BreakerListener is notified of state transitions.
// It is called with the breaker locked and must not call back into it.
type BreakerListener interface {
	OnBreakerStateChange(name string, from, to BreakerState)
}

// CircuitBreaker stops sending to a broker that keeps failing.
// Only broker failures count: caller errors, cancellations and missing replies leave it untouched.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	halfOpenRequests int
	logger           *slog.Logger
	now              func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
	listeners []BreakerListener
}

// BreakerOption configures a circuit breaker
type BreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets how many consecutive failures open the circuit
func WithFailureThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = n
	}
}

// WithSuccessThreshold sets how many half-open successes close the circuit
func WithSuccessThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.successThreshold = n
	}
}

// WithOpenTimeout sets how long the circuit stays open before probing
func WithOpenTimeout(timeout time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.openTimeout = timeout
	}
}

// WithHalfOpenRequests limits concurrent probes while half-open
func WithHalfOpenRequests(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.halfOpenRequests = n
	}
}

// WithBreakerLogger sets the logger
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(name string, options ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 1,
		openTimeout:      30 * time.Second,
		halfOpenRequests: 1,
		logger:           slog.Default(),
		now:              time.Now,
	}

	for _, opt := range options {
		opt(cb)
	}

	return cb
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state; an open circuit whose timeout elapsed reports half-open
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && !cb.now().Before(cb.openedAt.Add(cb.openTimeout)) {
		return BreakerHalfOpen
	}
	return cb.state
}

// AddListener registers a state change listener
func (cb *CircuitBreaker) AddListener(listener BreakerListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// Execute runs fn unless the circuit rejects it, then records its outcome
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// Reset closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(BreakerClosed)
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		nextProbe := cb.openedAt.Add(cb.openTimeout)
		if cb.now().Before(nextProbe) {
			return &CircuitOpenError{Name: cb.name, State: BreakerOpen, Failures: cb.failures, NextProbe: nextProbe}
		}
		cb.transition(BreakerHalfOpen)
		fallthrough

	case BreakerHalfOpen:
		if cb.inFlight >= cb.halfOpenRequests {
			return &CircuitOpenError{Name: cb.name, State: BreakerHalfOpen, Failures: cb.failures}
		}
		cb.inFlight++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	switch {
	case err == nil:
		cb.failures = 0
		if cb.state == BreakerHalfOpen {
			cb.successes++
			if cb.successes >= cb.successThreshold {
				cb.transition(BreakerClosed)
			}
		}

	case countsAsFailure(err):
		cb.failures++
		if cb.state == BreakerHalfOpen || cb.failures >= cb.failureThreshold {
			cb.logger.Warn("circuit breaker opened",
				"breaker", cb.name,
				"failures", cb.failures,
				"error", err)
			cb.openedAt = cb.now()
			cb.transition(BreakerOpen)
		}
	}
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	cb.successes = 0
	cb.inFlight = 0
	if to == BreakerClosed {
		cb.failures = 0
	}

	for _, l := range cb.listeners {
		l.OnBreakerStateChange(cb.name, from, to)
	}
}

func countsAsFailure(err error) bool {
	switch {
	case errors.Is(err, ErrReplyTimeout),
		errors.Is(err, ErrTooManyPending),
		errors.Is(err, ErrCircuitOpen):
		return false
	}
	return IsRetryable(err)
}
