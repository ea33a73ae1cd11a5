package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// Connection errors
	ErrConnectionClosed   = errors.New("rabbitmq: connection is closed")
	ErrConnectionNotReady = errors.New("rabbitmq: connection not ready")
	ErrMaxRetriesExceeded = errors.New("rabbitmq: maximum reconnection attempts exceeded")
	ErrConnectionTimeout  = errors.New("rabbitmq: connection timeout")

	// Channel errors
	ErrChannelClosed         = errors.New("rabbitmq: channel is closed")
	ErrChannelPoolClosed     = errors.New("rabbitmq: channel pool is closed")
	ErrChannelPoolExhausted  = errors.New("rabbitmq: channel pool exhausted")
	ErrChannelCreationFailed = errors.New("rabbitmq: failed to create channel")

	// Publisher errors
	ErrPublishTimeout      = errors.New("rabbitmq: publish timeout")
	ErrPublishNotConfirmed = errors.New("rabbitmq: publish not confirmed")
	ErrMandatoryFailed     = errors.New("rabbitmq: mandatory publish failed")

	// Request errors
	ErrRequesterClosed = errors.New("rabbitmq: requester is closed")
	ErrReplyTimeout    = errors.New("rabbitmq: no reply within timeout")
	ErrTooManyPending  = errors.New("rabbitmq: too many pending requests")

	// General errors
	ErrInvalidConfiguration = errors.New("rabbitmq: invalid configuration")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
	Attempts  int       // Number of attempts made
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("rabbitmq connection error: %s %s failed after %d attempts: %v", e.Op, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChannelError represents a channel-related error
type ChannelError struct {
	Op        string    // Operation that failed
	ChannelID string    // Channel identifier
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("rabbitmq channel error: %s on channel %s: %v", e.Op, e.ChannelID, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// PublishError represents a publish operation error
type PublishError struct {
	Exchange   string    // Target exchange
	RoutingKey string    // Routing key used
	Mandatory  bool      // Whether mandatory flag was set
	Err        error     // Underlying error
	Timestamp  time.Time // When the error occurred
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq publish error: failed to publish to %q/%q (mandatory=%v): %v",
		e.Exchange, e.RoutingKey, e.Mandatory, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether an operation failing with err may succeed when repeated
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrInvalidConfiguration),
		errors.Is(err, ErrMaxRetriesExceeded),
		errors.Is(err, ErrRequesterClosed),
		errors.Is(err, ErrChannelPoolClosed),
		errors.Is(err, ErrMandatoryFailed),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}

	return true
}

// SanitizeURL hides the password of an AMQP URL
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
