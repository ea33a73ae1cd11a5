// Package rabbitmq provides the RabbitMQ messaging client used by generated producers.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/mmate-producers/contracts"
	"github.com/glimte/mmate-producers/internal/rabbitmq"
)

// ErrNilMessage is returned when asked to send a nil message
var ErrNilMessage = errors.New("rabbitmq: nil message")

// Template implements producer.MessagingClient on a managed RabbitMQ connection.
// Fire-and-forget sends go through a confirming publisher on pooled channels; request/reply uses
// direct reply-to.
type Template struct {
	manager   *rabbitmq.ConnectionManager
	pool      *rabbitmq.ChannelPool
	publisher *rabbitmq.Publisher
	requester *rabbitmq.Requester
	logger    *slog.Logger
	closeOnce sync.Once
}

// TemplateConfig holds configuration for the template
type TemplateConfig struct {
	ConnectionOptions []rabbitmq.ConnectionOption
	PoolOptions       []rabbitmq.ChannelPoolOption
	PublisherOptions  []rabbitmq.PublisherOption
	RequesterOptions  []rabbitmq.RequesterOption
	Logger            *slog.Logger
}

// TemplateOption configures the template
type TemplateOption func(*TemplateConfig)

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) TemplateOption {
	return func(cfg *TemplateConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithPoolOptions sets channel pool options
func WithPoolOptions(opts ...rabbitmq.ChannelPoolOption) TemplateOption {
	return func(cfg *TemplateConfig) {
		cfg.PoolOptions = append(cfg.PoolOptions, opts...)
	}
}

// WithPublisherOptions sets publisher options
func WithPublisherOptions(opts ...rabbitmq.PublisherOption) TemplateOption {
	return func(cfg *TemplateConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, opts...)
	}
}

// WithRequesterOptions sets request/reply options
func WithRequesterOptions(opts ...rabbitmq.RequesterOption) TemplateOption {
	return func(cfg *TemplateConfig) {
		cfg.RequesterOptions = append(cfg.RequesterOptions, opts...)
	}
}

// WithReplyTimeout sets how long SendAndReceive waits before reporting no reply
func WithReplyTimeout(timeout time.Duration) TemplateOption {
	return WithRequesterOptions(rabbitmq.WithReplyTimeout(timeout))
}

// WithMandatory makes unroutable messages fail instead of being dropped by the broker
func WithMandatory(mandatory bool) TemplateOption {
	return func(cfg *TemplateConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, rabbitmq.WithMandatory(mandatory))
		cfg.RequesterOptions = append(cfg.RequesterOptions, rabbitmq.WithRequestMandatory(mandatory))
	}
}

// WithCircuitBreaker guards both sends and requests with one breaker
func WithCircuitBreaker(cb *rabbitmq.CircuitBreaker) TemplateOption {
	return func(cfg *TemplateConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, rabbitmq.WithCircuitBreaker(cb))
		cfg.RequesterOptions = append(cfg.RequesterOptions, rabbitmq.WithRequestCircuitBreaker(cb))
	}
}

// WithLogger sets the logger for the template and the connection layer beneath it
func WithLogger(logger *slog.Logger) TemplateOption {
	return func(cfg *TemplateConfig) {
		cfg.Logger = logger
	}
}

// NewTemplate connects to the broker at url and prepares publishing
func NewTemplate(url string, options ...TemplateOption) (*Template, error) {
	cfg := &TemplateConfig{Logger: slog.Default()}
	for _, opt := range options {
		opt(cfg)
	}

	logger := cfg.Logger
	manager := rabbitmq.NewConnectionManager(url,
		append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(logger)}, cfg.ConnectionOptions...)...)

	if err := manager.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	pool, err := rabbitmq.NewChannelPool(manager,
		append([]rabbitmq.ChannelPoolOption{rabbitmq.WithPoolLogger(logger)}, cfg.PoolOptions...)...)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to create channel pool: %w", err)
	}

	return &Template{
		manager: manager,
		pool:    pool,
		publisher: rabbitmq.NewPublisher(pool,
			append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(logger)}, cfg.PublisherOptions...)...),
		requester: rabbitmq.NewRequester(manager,
			append([]rabbitmq.RequesterOption{rabbitmq.WithRequesterLogger(logger)}, cfg.RequesterOptions...)...),
		logger: logger,
	}, nil
}

// Send publishes msg to addr and waits for the broker to confirm it
func (t *Template) Send(ctx context.Context, addr contracts.Address, msg *contracts.Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	t.logger.Debug("publishing message",
		"exchange", addr.Exchange,
		"routingKey", addr.RoutingKey,
		"messageId", msg.Properties.MessageID)

	if err := t.publisher.Publish(ctx, addr.Exchange, addr.RoutingKey, ToPublishing(msg)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendAndReceive publishes msg to addr and waits for the correlated reply.
// It returns nil, nil when no reply arrives within the reply timeout.
func (t *Template) SendAndReceive(ctx context.Context, addr contracts.Address, msg *contracts.Message) (*contracts.Message, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	t.logger.Debug("publishing request",
		"exchange", addr.Exchange,
		"routingKey", addr.RoutingKey,
		"messageId", msg.Properties.MessageID,
		"correlationId", msg.Properties.CorrelationID)

	d, err := t.requester.Request(ctx, addr.Exchange, addr.RoutingKey, ToPublishing(msg))
	if errors.Is(err, rabbitmq.ErrReplyTimeout) {
		t.logger.Warn("no reply received",
			"exchange", addr.Exchange,
			"routingKey", addr.RoutingKey,
			"messageId", msg.Properties.MessageID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reply := FromDelivery(d)
	t.logger.Debug("received reply",
		"correlationId", reply.Properties.CorrelationID,
		"contentType", reply.Properties.ContentType)
	return reply, nil
}

// Manager returns the connection manager
func (t *Template) Manager() *rabbitmq.ConnectionManager {
	return t.manager
}

// Pool returns the channel pool used for fire-and-forget sends
func (t *Template) Pool() *rabbitmq.ChannelPool {
	return t.pool
}

// Requester returns the request/reply client
func (t *Template) Requester() *rabbitmq.Requester {
	return t.requester
}

// IsConnected returns connection status
func (t *Template) IsConnected() bool {
	return t.manager.IsConnected()
}

// Close releases the reply channel, the channel pool and the connection
func (t *Template) Close() error {
	var errs []error
	t.closeOnce.Do(func() {
		if err := t.requester.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := t.pool.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := t.manager.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
