package producer

import (
	"context"
	"reflect"

	"github.com/glimte/mmate-producers/contracts"
)

// Resolver turns a raw configuration string (possibly holding placeholders or expressions) into
// its final value
type Resolver interface {
	Resolve(raw string) (string, error)
}

// ResolverFunc is a function adapter for Resolver
type ResolverFunc func(raw string) (string, error)

// Resolve implements Resolver
func (f ResolverFunc) Resolve(raw string) (string, error) {
	return f(raw)
}

// LiteralResolver returns every string unchanged
var LiteralResolver Resolver = ResolverFunc(func(raw string) (string, error) {
	return raw, nil
})

// MessageConverter converts bodies to and from transport messages.
// Implementations must accept a nil body.
type MessageConverter interface {
	// ToMessage converts a body into a message seeded with the given properties
	ToMessage(body interface{}, props contracts.MessageProperties) (*contracts.Message, error)

	// FromMessage converts a message body back into a value
	FromMessage(msg *contracts.Message) (interface{}, error)
}

// TypedConverter is implemented by converters that can decode into a caller-chosen type
type TypedConverter interface {
	// FromMessageAs decodes the message body into a value of the target type
	FromMessageAs(msg *contracts.Message, target reflect.Type) (interface{}, error)
}

// MessagingClient sends messages to the broker
type MessagingClient interface {
	// Send publishes a message without waiting for a reply
	Send(ctx context.Context, addr contracts.Address, msg *contracts.Message) error

	// SendAndReceive publishes a message and blocks for the correlated reply.
	// A nil message with a nil error means no reply arrived in time.
	SendAndReceive(ctx context.Context, addr contracts.Address, msg *contracts.Message) (*contracts.Message, error)
}

// InvocationObserver inspects every invocation after parameter binding and before sending.
// It may mutate the invocation; a returned error aborts the call.
type InvocationObserver interface {
	Process(ctx context.Context, target interface{}, method MethodID, inv *Invocation) error
}

// ObserverFunc is a function adapter for InvocationObserver
type ObserverFunc func(ctx context.Context, target interface{}, method MethodID, inv *Invocation) error

// Process implements InvocationObserver
func (f ObserverFunc) Process(ctx context.Context, target interface{}, method MethodID, inv *Invocation) error {
	return f(ctx, target, method, inv)
}

// IDGenerator produces unique message and correlation identifiers
type IDGenerator func() string
