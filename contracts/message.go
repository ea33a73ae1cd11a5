package contracts

import (
	"fmt"
	"time"
)

// Well-known property and header names
const (
	// HeaderTypeID carries the logical type of a JSON body
	HeaderTypeID = "__TypeId__"

	ContentTypeJSON        = "application/json"
	ContentTypeText        = "text/plain"
	ContentTypeBytes       = "application/octet-stream"
	ContentTypeProtobuf    = "application/x-protobuf"
	DefaultContentEncoding = "UTF-8"
)

// MessageProperties holds the AMQP basic properties of a message
type MessageProperties struct {
	MessageID       string
	CorrelationID   string
	ContentType     string
	ContentEncoding string
	ReplyTo         string
	Type            string
	AppID           string
	UserID          string
	Expiration      string
	Priority        uint8
	DeliveryMode    uint8
	Timestamp       time.Time
	Headers         map[string]interface{}
}

// SetHeader sets a header, allocating the table if needed
func (p *MessageProperties) SetHeader(key string, value interface{}) {
	if p.Headers == nil {
		p.Headers = make(map[string]interface{})
	}
	p.Headers[key] = value
}

// Header returns a header value
func (p MessageProperties) Header(key string) (interface{}, bool) {
	v, ok := p.Headers[key]
	return v, ok
}

// Message is a transport message: raw body bytes and their properties
type Message struct {
	Body       []byte
	Properties MessageProperties
}

// NewMessage creates a message with the given body and an empty header table
func NewMessage(body []byte) *Message {
	return &Message{
		Body: body,
		Properties: MessageProperties{
			Headers: make(map[string]interface{}),
		},
	}
}

// Clone returns a copy of the message that shares no mutable state with the original
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	clone := &Message{Properties: m.Properties}
	if m.Body != nil {
		clone.Body = make([]byte, len(m.Body))
		copy(clone.Body, m.Body)
	}

	clone.Properties.Headers = make(map[string]interface{}, len(m.Properties.Headers))
	for k, v := range m.Properties.Headers {
		clone.Properties.Headers[k] = v
	}

	return clone
}

// String renders a short description for logging
func (m *Message) String() string {
	if m == nil {
		return "Message(nil)"
	}
	return fmt.Sprintf("Message(id=%s, correlationId=%s, contentType=%s, bodyLen=%d)",
		m.Properties.MessageID, m.Properties.CorrelationID, m.Properties.ContentType, len(m.Body))
}
