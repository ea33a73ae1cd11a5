package producer

import (
	"fmt"
	"strings"

	"github.com/glimte/mmate-producers/contracts"
)

// toMessage builds the outbound message of an invocation.
// A body that already is a message is cloned so the caller's message is never modified.
func (e *Endpoint) toMessage(inv *Invocation, fireAndForget bool) (*contracts.Message, error) {
	var msg *contracts.Message

	switch body := inv.Body.(type) {
	case *contracts.Message:
		if body != nil {
			msg = body.Clone()
		}
	case contracts.Message:
		msg = body.Clone()
	}

	if msg == nil {
		var body interface{}
		if inv.HasBody {
			body = inv.Body
		}
		converted, err := e.converter.ToMessage(body, contracts.MessageProperties{
			Headers: make(map[string]interface{}),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to convert body for %s: %w", e.id, err)
		}
		if converted == nil {
			return nil, fmt.Errorf("failed to convert body for %s: %w", e.id, ErrNilMessage)
		}
		msg = converted
	}

	for k, v := range inv.Headers {
		msg.Properties.SetHeader(k, v)
	}

	if strings.TrimSpace(msg.Properties.MessageID) == "" {
		msg.Properties.MessageID = e.newID()
	}
	if fireAndForget && strings.TrimSpace(msg.Properties.CorrelationID) == "" {
		msg.Properties.CorrelationID = e.newID()
	}

	return msg, nil
}
