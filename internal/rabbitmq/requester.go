package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Requester sends requests and waits for replies over the direct reply-to pseudo queue.
// All requests share one channel; replies are matched to callers by correlation id.
type Requester struct {
	manager    *ConnectionManager
	timeout    time.Duration
	mandatory  bool
	maxPending int
	breaker    *CircuitBreaker
	logger     *slog.Logger

	mu      sync.Mutex
	ch      Channel
	pending map[string]chan reply
	closed  bool
}

type reply struct {
	delivery amqp.Delivery
	err      error
}

// RequesterOption configures the requester
type RequesterOption func(*Requester)

// WithReplyTimeout sets how long Request waits for a reply
func WithReplyTimeout(timeout time.Duration) RequesterOption {
	return func(r *Requester) {
		r.timeout = timeout
	}
}

// WithRequestMandatory publishes requests with the mandatory flag so unroutable requests fail fast
func WithRequestMandatory(mandatory bool) RequesterOption {
	return func(r *Requester) {
		r.mandatory = mandatory
	}
}

// WithMaxPending limits the number of requests waiting for replies
func WithMaxPending(max int) RequesterOption {
	return func(r *Requester) {
		r.maxPending = max
	}
}

// WithRequestCircuitBreaker rejects requests while cb is open
func WithRequestCircuitBreaker(cb *CircuitBreaker) RequesterOption {
	return func(r *Requester) {
		r.breaker = cb
	}
}

// WithRequesterLogger sets the logger
func WithRequesterLogger(logger *slog.Logger) RequesterOption {
	return func(r *Requester) {
		r.logger = logger
	}
}

// NewRequester creates a requester; its channel is opened on first use
func NewRequester(manager *ConnectionManager, options ...RequesterOption) *Requester {
	r := &Requester{
		manager:    manager,
		timeout:    5 * time.Second,
		maxPending: 1000,
		logger:     slog.Default(),
		pending:    make(map[string]chan reply),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Request publishes msg and blocks for the correlated reply.
// A blank correlation id is taken from the message id, or generated when the message id is blank
// or already in flight. ErrReplyTimeout is returned
// when no reply arrives within the reply timeout.
func (r *Requester) Request(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) (*amqp.Delivery, error) {
	if r.breaker == nil {
		return r.request(ctx, exchange, routingKey, msg)
	}

	var delivery *amqp.Delivery
	err := r.breaker.Execute(func() error {
		var err error
		delivery, err = r.request(ctx, exchange, routingKey, msg)
		return err
	})
	return delivery, err
}

func (r *Requester) request(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) (*amqp.Delivery, error) {
	explicit := msg.CorrelationId != ""
	if !explicit {
		msg.CorrelationId = msg.MessageId
	}

	ch, replies, correlationID, err := r.register(msg.CorrelationId, explicit)
	if err != nil {
		return nil, err
	}
	defer r.unregister(correlationID)
	msg.CorrelationId = correlationID
	msg.ReplyTo = DirectReplyTo

	if err := ch.PublishWithContext(ctx, exchange, routingKey, r.mandatory, false, msg); err != nil {
		return nil, &PublishError{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Mandatory:  r.mandatory,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case rep := <-replies:
		if rep.err != nil {
			return nil, rep.err
		}
		return &rep.delivery, nil
	case <-timer.C:
		return nil, ErrReplyTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PendingCount returns the number of requests waiting for replies
func (r *Requester) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close closes the reply channel and fails all waiting requests
func (r *Requester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.failPending(ErrRequesterClosed)

	if r.ch != nil {
		err := r.ch.Close()
		r.ch = nil
		return err
	}
	return nil
}

// register reserves a correlation id for a request. An id that was not set explicitly is
// replaced with a generated one when it is blank or already waiting for a reply.
func (r *Requester) register(correlationID string, explicit bool) (Channel, chan reply, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, "", ErrRequesterClosed
	}
	if r.maxPending > 0 && len(r.pending) >= r.maxPending {
		return nil, nil, "", fmt.Errorf("%w: %d", ErrTooManyPending, len(r.pending))
	}
	if _, exists := r.pending[correlationID]; exists || correlationID == "" {
		if explicit {
			return nil, nil, "", fmt.Errorf("%w: duplicate correlation id %s", ErrInvalidConfiguration, correlationID)
		}
		correlationID = uuid.New().String()
	}

	ch, err := r.channel()
	if err != nil {
		return nil, nil, "", err
	}

	replies := make(chan reply, 1)
	r.pending[correlationID] = replies
	return ch, replies, correlationID, nil
}

func (r *Requester) unregister(correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, correlationID)
}

// channel returns the reply channel, opening and consuming it if needed; callers hold r.mu
func (r *Requester) channel() (Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}

	ch, err := r.manager.OpenChannel()
	if err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(DirectReplyTo, "", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, &ChannelError{
			Op:        "consume " + DirectReplyTo,
			ChannelID: "reply",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	var returns chan amqp.Return
	if r.mandatory {
		returns = ch.NotifyReturn(make(chan amqp.Return, 16))
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	r.ch = ch
	go r.dispatch(ch, deliveries, returns, closed)

	r.logger.Debug("opened reply channel", "queue", DirectReplyTo)
	return ch, nil
}

func (r *Requester) dispatch(ch Channel, deliveries <-chan amqp.Delivery, returns chan amqp.Return, closed chan *amqp.Error) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				r.channelLost(ch, nil)
				return
			}
			r.deliver(d.CorrelationId, reply{delivery: d})

		case ret := <-returns:
			r.deliver(ret.CorrelationId, reply{
				err: fmt.Errorf("%w: %d %s", ErrMandatoryFailed, ret.ReplyCode, ret.ReplyText),
			})

		case amqpErr := <-closed:
			r.channelLost(ch, amqpErr)
			return
		}
	}
}

func (r *Requester) deliver(correlationID string, rep reply) {
	r.mu.Lock()
	replies, ok := r.pending[correlationID]
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("discarding reply without pending request", "correlationId", correlationID)
		return
	}

	select {
	case replies <- rep:
	default:
		r.logger.Warn("discarding duplicate reply", "correlationId", correlationID)
	}
}

func (r *Requester) channelLost(ch Channel, amqpErr *amqp.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != ch {
		return
	}
	r.ch = nil

	if amqpErr != nil {
		r.logger.Warn("reply channel closed", "error", amqpErr)
	}
	r.failPending(&ChannelError{
		Op:        "await reply",
		ChannelID: "reply",
		Err:       ErrChannelClosed,
		Timestamp: time.Now(),
	})
}

// failPending fails every waiting request with err; callers hold r.mu
func (r *Requester) failPending(err error) {
	for id, replies := range r.pending {
		select {
		case replies <- reply{err: err}:
		default:
		}
		delete(r.pending, id)
	}
}
