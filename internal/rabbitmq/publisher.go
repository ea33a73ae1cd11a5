package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes messages on pooled channels and waits for publisher confirms
type Publisher struct {
	pool           *ChannelPool
	confirm        bool
	mandatory      bool
	confirmTimeout time.Duration
	maxRetries     int
	retryDelay     time.Duration
	breaker        *CircuitBreaker
	logger         *slog.Logger
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithConfirmMode enables or disables waiting for publisher confirms
func WithConfirmMode(enabled bool) PublisherOption {
	return func(p *Publisher) {
		p.confirm = enabled
	}
}

// WithMandatory publishes with the mandatory flag; unroutable messages then fail with ErrMandatoryFailed.
// Requires confirm mode.
func WithMandatory(mandatory bool) PublisherOption {
	return func(p *Publisher) {
		p.mandatory = mandatory
	}
}

// WithConfirmTimeout sets the confirmation timeout
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithPublishRetries sets how often a failed publish is repeated
func WithPublishRetries(retries int, delay time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.maxRetries = retries
		p.retryDelay = delay
	}
}

// WithCircuitBreaker rejects publishes while cb is open
func WithCircuitBreaker(cb *CircuitBreaker) PublisherOption {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a new publisher
func NewPublisher(pool *ChannelPool, options ...PublisherOption) *Publisher {
	p := &Publisher{
		pool:           pool,
		confirm:        true,
		confirmTimeout: 5 * time.Second,
		retryDelay:     time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish publishes msg to exchange with routingKey
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if p.breaker == nil {
		return p.publish(ctx, exchange, routingKey, msg)
	}

	err := p.breaker.Execute(func() error {
		return p.publish(ctx, exchange, routingKey, msg)
	})
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return &PublishError{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Mandatory:  p.mandatory,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn("retrying publish",
				"exchange", exchange,
				"routingKey", routingKey,
				"attempt", attempt,
				"error", lastErr)

			select {
			case <-time.After(time.Duration(attempt) * p.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = p.publishOnce(ctx, exchange, routingKey, msg)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
	}

	if lastErr == nil {
		return nil
	}
	return &PublishError{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Mandatory:  p.mandatory,
		Err:        lastErr,
		Timestamp:  time.Now(),
	}
}

func (p *Publisher) publishOnce(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	ch, err := p.pool.Get(ctx)
	if err != nil {
		return err
	}

	if !p.confirm {
		err := ch.PublishWithContext(ctx, exchange, routingKey, p.mandatory, false, msg)
		p.pool.Put(ch)
		return err
	}

	confirms, returns, err := ch.EnableConfirms()
	if err != nil {
		p.pool.Discard(ch)
		return err
	}

	if err := ch.PublishWithContext(ctx, exchange, routingKey, p.mandatory, false, msg); err != nil {
		p.pool.Discard(ch)
		return fmt.Errorf("failed to publish: %w", err)
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	var returned *amqp.Return
	for {
		select {
		case ret := <-returns:
			returned = &ret

		case confirm, ok := <-confirms:
			if !ok {
				p.pool.Discard(ch)
				return ErrChannelClosed
			}
			if returned == nil {
				select {
				case ret := <-returns:
					returned = &ret
				default:
				}
			}
			p.pool.Put(ch)
			if !confirm.Ack {
				return ErrPublishNotConfirmed
			}
			if returned != nil {
				return fmt.Errorf("%w: %d %s", ErrMandatoryFailed, returned.ReplyCode, returned.ReplyText)
			}
			return nil

		case <-timer.C:
			p.pool.Discard(ch)
			return ErrPublishTimeout

		case <-ctx.Done():
			p.pool.Discard(ch)
			return ctx.Err()
		}
	}
}
