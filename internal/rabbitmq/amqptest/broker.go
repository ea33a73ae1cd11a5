// Package amqptest provides an in-memory broker implementing the rabbitmq Connection and Channel
// interfaces, for tests that exercise publishing and request/reply without a RabbitMQ server.
package amqptest

import (
	"context"
	"errors"
	"sync"

	"github.com/glimte/mmate-producers/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDialRefused is returned by Dial while the broker refuses connections
var ErrDialRefused = errors.New("amqptest: connection refused")

// Publication records one published message
type Publication struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Msg        amqp.Publishing
}

// Responder produces the reply to a request; returning nil sends no reply
type Responder func(p Publication) *amqp.Publishing

// Broker is an in-memory stand-in for a RabbitMQ server
type Broker struct {
	mu           sync.Mutex
	publications []Publication
	conns        []*Connection
	dials        int
	refuse       bool
	nack         bool
	withhold     bool
	unroutable   map[string]bool
	responder    Responder
	published    chan struct{}
}

// NewBroker creates a broker that accepts connections and acks every publish
func NewBroker() *Broker {
	return &Broker{
		unroutable: make(map[string]bool),
		published:  make(chan struct{}, 1024),
	}
}

// Dial implements rabbitmq.Dialer
func (b *Broker) Dial(url string) (rabbitmq.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.refuse {
		return nil, ErrDialRefused
	}

	conn := &Connection{broker: b}
	b.conns = append(b.conns, conn)
	return conn, nil
}

// Dials returns the number of dial attempts
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Refuse makes Dial fail while refuse is set
func (b *Broker) Refuse(refuse bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refuse = refuse
}

// Nack makes the broker negatively confirm publishes
func (b *Broker) Nack(nack bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nack = nack
}

// WithholdConfirms makes the broker never confirm publishes
func (b *Broker) WithholdConfirms(withhold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.withhold = withhold
}

// Unroutable makes mandatory publishes to routingKey come back as returns
func (b *Broker) Unroutable(routingKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unroutable[routingKey] = true
}

// Respond installs the responder answering requests sent with a reply-to address
func (b *Broker) Respond(responder Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responder = responder
}

// Publications returns a copy of everything published so far
func (b *Broker) Publications() []Publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Publication(nil), b.publications...)
}

// Published is signalled once per publish
func (b *Broker) Published() <-chan struct{} {
	return b.published
}

// DropConnections closes every open connection as if the server went away
func (b *Broker) DropConnections() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()

	for _, c := range conns {
		c.shutdown(&amqp.Error{Code: amqp.ConnectionForced, Reason: "amqptest: connection dropped", Server: true})
	}
}

// OpenConnections returns the number of connections not yet closed
func (b *Broker) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.conns {
		if !c.IsClosed() {
			n++
		}
	}
	return n
}

func (b *Broker) publish(ch *Channel, p Publication) error {
	b.mu.Lock()
	b.publications = append(b.publications, p)
	nack, withhold, responder := b.nack, b.withhold, b.responder
	returned := p.Mandatory && b.unroutable[p.RoutingKey]
	b.mu.Unlock()

	select {
	case b.published <- struct{}{}:
	default:
	}

	if returned {
		ch.sendReturn(amqp.Return{
			ReplyCode:     amqp.NoRoute,
			ReplyText:     "NO_ROUTE",
			Exchange:      p.Exchange,
			RoutingKey:    p.RoutingKey,
			CorrelationId: p.Msg.CorrelationId,
			MessageId:     p.Msg.MessageId,
		})
	}
	if !withhold {
		ch.sendConfirm(!nack)
	}

	if returned || responder == nil || p.Msg.ReplyTo != rabbitmq.DirectReplyTo {
		return nil
	}

	if out := responder(p); out != nil {
		ch.sendReply(amqp.Delivery{
			Headers:         out.Headers,
			ContentType:     out.ContentType,
			ContentEncoding: out.ContentEncoding,
			DeliveryMode:    out.DeliveryMode,
			Priority:        out.Priority,
			CorrelationId:   out.CorrelationId,
			ReplyTo:         out.ReplyTo,
			Expiration:      out.Expiration,
			MessageId:       out.MessageId,
			Timestamp:       out.Timestamp,
			Type:            out.Type,
			UserId:          out.UserId,
			AppId:           out.AppId,
			RoutingKey:      rabbitmq.DirectReplyTo,
			Body:            out.Body,
		})
	}
	return nil
}

// Connection is an in-memory rabbitmq.Connection
type Connection struct {
	broker   *Broker
	mu       sync.Mutex
	closed   bool
	channels []*Channel
	notify   []chan *amqp.Error
}

// Channel implements rabbitmq.Connection
func (c *Connection) Channel() (rabbitmq.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &Channel{conn: c}
	c.channels = append(c.channels, ch)
	return ch, nil
}

// NotifyClose implements rabbitmq.Connection
func (c *Connection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

// IsClosed implements rabbitmq.Connection
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close implements rabbitmq.Connection
func (c *Connection) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Connection) shutdown(err *amqp.Error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	channels := c.channels
	notify := c.notify
	c.channels, c.notify = nil, nil
	c.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown(err)
	}
	for _, n := range notify {
		if err != nil {
			n <- err
		}
		close(n)
	}
}

// Channel is an in-memory rabbitmq.Channel
type Channel struct {
	conn *Connection

	mu          sync.Mutex
	closed      bool
	confirmMode bool
	confirms    []chan amqp.Confirmation
	returns     []chan amqp.Return
	notify      []chan *amqp.Error
	deliveries  chan amqp.Delivery
	deliveryTag uint64
}

// PublishWithContext implements rabbitmq.Channel
func (ch *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ch.IsClosed() {
		return amqp.ErrClosed
	}
	return ch.conn.broker.publish(ch, Publication{
		Exchange:   exchange,
		RoutingKey: key,
		Mandatory:  mandatory,
		Msg:        msg,
	})
}

// Consume implements rabbitmq.Channel; only the direct reply-to pseudo queue can be consumed
func (ch *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil, amqp.ErrClosed
	}
	if queue != rabbitmq.DirectReplyTo || !autoAck {
		return nil, &amqp.Error{Code: amqp.PreconditionFailed, Reason: "amqptest: only auto-ack direct reply-to consumers are supported"}
	}
	ch.deliveries = make(chan amqp.Delivery, 64)
	return ch.deliveries, nil
}

// Confirm implements rabbitmq.Channel
func (ch *Channel) Confirm(noWait bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}
	ch.confirmMode = true
	return nil
}

// NotifyPublish implements rabbitmq.Channel
func (ch *Channel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.confirms = append(ch.confirms, confirm)
	return confirm
}

// NotifyReturn implements rabbitmq.Channel
func (ch *Channel) NotifyReturn(returns chan amqp.Return) chan amqp.Return {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.returns = append(ch.returns, returns)
	return returns
}

// NotifyClose implements rabbitmq.Channel
func (ch *Channel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		close(c)
		return c
	}
	ch.notify = append(ch.notify, c)
	return c
}

// IsClosed implements rabbitmq.Channel
func (ch *Channel) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// Close implements rabbitmq.Channel
func (ch *Channel) Close() error {
	ch.shutdown(nil)
	return nil
}

func (ch *Channel) shutdown(err *amqp.Error) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	notify := ch.notify
	confirms := ch.confirms
	returns := ch.returns
	deliveries := ch.deliveries
	ch.notify, ch.confirms, ch.returns, ch.deliveries = nil, nil, nil, nil
	ch.mu.Unlock()

	for _, n := range notify {
		if err != nil {
			n <- err
		}
		close(n)
	}
	for _, c := range confirms {
		close(c)
	}
	for _, r := range returns {
		close(r)
	}
	if deliveries != nil {
		close(deliveries)
	}
}

func (ch *Channel) sendConfirm(ack bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if !ch.confirmMode || ch.closed {
		return
	}
	ch.deliveryTag++
	for _, c := range ch.confirms {
		c <- amqp.Confirmation{DeliveryTag: ch.deliveryTag, Ack: ack}
	}
}

func (ch *Channel) sendReturn(ret amqp.Return) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return
	}
	for _, r := range ch.returns {
		r <- ret
	}
}

func (ch *Channel) sendReply(d amqp.Delivery) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed || ch.deliveries == nil {
		return
	}
	ch.deliveries <- d
}
