// Package contracts provides the wire-level types shared by producers, converters and transports.
//
// This package defines:
//   - Message: A transport message (body bytes plus AMQP properties and headers)
//   - MessageProperties: The AMQP basic properties and the application header table
//   - GenericMessage: A converted payload together with the headers it arrived with
//   - Address: An exchange and routing key pair parsed from a destination string
//
// The types are transport-neutral; the RabbitMQ transport maps them to and from amqp091 publishings
// and deliveries.
package contracts
