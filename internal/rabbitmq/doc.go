// Package rabbitmq provides the AMQP plumbing behind the RabbitMQ messaging client.
//
// This package includes:
//   - ConnectionManager: owns the broker connection and reconnects with backoff
//   - ChannelPool: pools channels for publishing, with idle cleanup
//   - Publisher: publishes with publisher confirms and optional mandatory routing
//   - Requester: request/reply over the direct reply-to pseudo queue, correlating replies by id
//
// Connections and channels are used through the Connection and Channel interfaces so the
// broker can be replaced in tests; see the amqptest package.
package rabbitmq
