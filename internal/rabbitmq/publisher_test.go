package rabbitmq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glimte/mmate-producers/internal/rabbitmq"
	"github.com/glimte/mmate-producers/internal/rabbitmq/amqptest"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPublisher(t *testing.T, broker *amqptest.Broker, opts ...rabbitmq.PublisherOption) (*rabbitmq.Publisher, *rabbitmq.ChannelPool) {
	t.Helper()

	pool, err := rabbitmq.NewChannelPool(connect(t, broker), rabbitmq.WithPoolLogger(quietLogger))
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	opts = append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(quietLogger)}, opts...)
	return rabbitmq.NewPublisher(pool, opts...), pool
}

func TestPublisher(t *testing.T) {
	msg := amqp.Publishing{ContentType: "text/plain", Body: []byte("hello"), MessageId: "m-1"}

	t.Run("confirmed publish", func(t *testing.T) {
		broker := amqptest.NewBroker()
		publisher, _ := newPublisher(t, broker)

		require.NoError(t, publisher.Publish(context.Background(), "orders", "order.created", msg))

		pubs := broker.Publications()
		require.Len(t, pubs, 1)
		assert.Equal(t, "orders", pubs[0].Exchange)
		assert.Equal(t, "order.created", pubs[0].RoutingKey)
		assert.False(t, pubs[0].Mandatory)
		assert.Equal(t, []byte("hello"), pubs[0].Msg.Body)
		assert.Equal(t, "m-1", pubs[0].Msg.MessageId)
	})

	t.Run("channel is reused across publishes", func(t *testing.T) {
		broker := amqptest.NewBroker()
		publisher, pool := newPublisher(t, broker)

		for i := 0; i < 3; i++ {
			require.NoError(t, publisher.Publish(context.Background(), "", "q", msg))
		}
		assert.Len(t, broker.Publications(), 3)
		assert.Equal(t, 1, pool.Size())
	})

	t.Run("nack fails with ErrPublishNotConfirmed", func(t *testing.T) {
		broker := amqptest.NewBroker()
		broker.Nack(true)
		publisher, _ := newPublisher(t, broker)

		err := publisher.Publish(context.Background(), "orders", "order.created", msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, rabbitmq.ErrPublishNotConfirmed)

		var pubErr *rabbitmq.PublishError
		require.True(t, errors.As(err, &pubErr))
		assert.Equal(t, "orders", pubErr.Exchange)
		assert.Equal(t, "order.created", pubErr.RoutingKey)
	})

	t.Run("retries retryable failures", func(t *testing.T) {
		broker := amqptest.NewBroker()
		broker.Nack(true)
		publisher, _ := newPublisher(t, broker, rabbitmq.WithPublishRetries(2, time.Millisecond))

		err := publisher.Publish(context.Background(), "", "q", msg)
		assert.ErrorIs(t, err, rabbitmq.ErrPublishNotConfirmed)
		assert.Len(t, broker.Publications(), 3)
	})

	t.Run("unroutable mandatory publish fails", func(t *testing.T) {
		broker := amqptest.NewBroker()
		broker.Unroutable("nowhere")
		publisher, _ := newPublisher(t, broker,
			rabbitmq.WithMandatory(true),
			rabbitmq.WithPublishRetries(3, time.Millisecond))

		err := publisher.Publish(context.Background(), "", "nowhere", msg)
		assert.ErrorIs(t, err, rabbitmq.ErrMandatoryFailed)
		assert.Len(t, broker.Publications(), 1)

		var pubErr *rabbitmq.PublishError
		require.True(t, errors.As(err, &pubErr))
		assert.True(t, pubErr.Mandatory)
	})

	t.Run("missing confirm times out and discards the channel", func(t *testing.T) {
		broker := amqptest.NewBroker()
		broker.WithholdConfirms(true)
		publisher, pool := newPublisher(t, broker, rabbitmq.WithConfirmTimeout(20*time.Millisecond))

		err := publisher.Publish(context.Background(), "", "q", msg)
		assert.ErrorIs(t, err, rabbitmq.ErrPublishTimeout)
		assert.Equal(t, 0, pool.Size())
	})

	t.Run("publishes without confirms when disabled", func(t *testing.T) {
		broker := amqptest.NewBroker()
		broker.WithholdConfirms(true)
		publisher, _ := newPublisher(t, broker, rabbitmq.WithConfirmMode(false))

		require.NoError(t, publisher.Publish(context.Background(), "", "q", msg))
		assert.Len(t, broker.Publications(), 1)
	})

	t.Run("cancelled context", func(t *testing.T) {
		broker := amqptest.NewBroker()
		publisher, _ := newPublisher(t, broker, rabbitmq.WithPublishRetries(3, time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := publisher.Publish(ctx, "", "q", msg)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, broker.Publications())
	})
}
