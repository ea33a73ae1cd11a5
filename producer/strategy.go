package producer

import (
	"context"
	"fmt"

	"github.com/glimte/mmate-producers/contracts"
)

// sendStrategy sends a completed invocation and shapes the result
type sendStrategy func(ctx context.Context, inv *Invocation) (interface{}, error)

const (
	strategyFireAndForget  = "fire-and-forget"
	strategyRequestMessage = "request-reply-message"
	strategyRequestGeneric = "request-reply-generic"
	strategyRequestValue   = "request-reply-value"
)

// selectStrategy picks the send strategy from the reply flag and the return shape
func (e *Endpoint) selectStrategy() (string, sendStrategy) {
	if !e.returnExceptions && e.returns.Kind == ReturnVoid {
		return strategyFireAndForget, e.fireAndForget
	}

	switch e.returns.Kind {
	case ReturnRawMessage:
		return strategyRequestMessage, e.requestMessage
	case ReturnGeneric:
		return strategyRequestGeneric, e.requestGeneric
	default:
		return strategyRequestValue, e.requestValue
	}
}

func (e *Endpoint) fireAndForget(ctx context.Context, inv *Invocation) (interface{}, error) {
	msg, err := e.toMessage(inv, true)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("--> sending async message",
		"method", e.id.String(),
		"exchange", e.address.Exchange,
		"routingKey", e.address.RoutingKey,
		"messageId", msg.Properties.MessageID,
		"correlationId", msg.Properties.CorrelationID,
	)

	if err := e.client.Send(ctx, e.address, msg); err != nil {
		return nil, err
	}
	return nil, nil
}

// sendAndReceive sends the invocation and waits for the reply; nil means no reply
func (e *Endpoint) sendAndReceive(ctx context.Context, inv *Invocation) (*contracts.Message, error) {
	msg, err := e.toMessage(inv, false)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("--> sending sync message",
		"method", e.id.String(),
		"exchange", e.address.Exchange,
		"routingKey", e.address.RoutingKey,
		"messageId", msg.Properties.MessageID,
	)

	reply, err := e.client.SendAndReceive(ctx, e.address, msg)
	if err != nil {
		return nil, err
	}

	if reply == nil {
		e.metrics.RecordNoReply(e.id.String())
		e.logger.Warn("no reply received",
			"method", e.id.String(),
			"exchange", e.address.Exchange,
			"routingKey", e.address.RoutingKey,
			"messageId", msg.Properties.MessageID,
		)
		return nil, nil
	}

	e.logger.Debug("<-- received correlated reply",
		"method", e.id.String(),
		"messageId", reply.Properties.MessageID,
		"correlationId", reply.Properties.CorrelationID,
	)
	return reply, nil
}

func (e *Endpoint) requestMessage(ctx context.Context, inv *Invocation) (interface{}, error) {
	reply, err := e.sendAndReceive(ctx, inv)
	if err != nil || reply == nil {
		return nil, err
	}
	return reply, nil
}

func (e *Endpoint) requestGeneric(ctx context.Context, inv *Invocation) (interface{}, error) {
	reply, err := e.sendAndReceive(ctx, inv)
	if err != nil || reply == nil {
		return nil, err
	}

	payload, err := e.convertReply(reply)
	if err != nil {
		return nil, err
	}
	return contracts.NewGenericMessage(payload, reply.Properties.Headers), nil
}

func (e *Endpoint) requestValue(ctx context.Context, inv *Invocation) (interface{}, error) {
	reply, err := e.sendAndReceive(ctx, inv)
	if err != nil || reply == nil {
		return nil, err
	}
	return e.convertReply(reply)
}

// convertReply decodes a reply body, into the declared type when the converter supports it
func (e *Endpoint) convertReply(reply *contracts.Message) (interface{}, error) {
	var (
		value interface{}
		err   error
	)

	if typed, ok := e.converter.(TypedConverter); ok && e.returns.Type != nil {
		value, err = typed.FromMessageAs(reply, e.returns.Type)
	} else {
		value, err = e.converter.FromMessage(reply)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to convert reply for %s: %w", e.id, err)
	}
	return value, nil
}
