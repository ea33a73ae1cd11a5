package converter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/glimte/mmate-producers/contracts"
)

// SimpleConverter converts strings to text/plain and byte slices to application/octet-stream
type SimpleConverter struct{}

// NewSimpleConverter creates a simple converter
func NewSimpleConverter() *SimpleConverter {
	return &SimpleConverter{}
}

// ToMessage implements producer.MessageConverter
func (c *SimpleConverter) ToMessage(body interface{}, props contracts.MessageProperties) (*contracts.Message, error) {
	msg := &contracts.Message{Properties: props}

	switch v := body.(type) {
	case nil:
		msg.Properties.ContentType = contracts.ContentTypeBytes
	case string:
		msg.Body = []byte(v)
		msg.Properties.ContentType = contracts.ContentTypeText
		msg.Properties.ContentEncoding = contracts.DefaultContentEncoding
	case []byte:
		msg.Body = append([]byte(nil), v...)
		msg.Properties.ContentType = contracts.ContentTypeBytes
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayload, body)
	}

	return msg, nil
}

// FromMessage returns text bodies as strings and anything else as bytes
func (c *SimpleConverter) FromMessage(msg *contracts.Message) (interface{}, error) {
	if strings.HasPrefix(msg.Properties.ContentType, "text") {
		return string(msg.Body), nil
	}
	return append([]byte(nil), msg.Body...), nil
}

// FromMessageAs implements producer.TypedConverter for string and []byte targets
func (c *SimpleConverter) FromMessageAs(msg *contracts.Message, target reflect.Type) (interface{}, error) {
	if target.Kind() == reflect.Interface {
		return c.FromMessage(msg)
	}
	return rawInto(msg, target)
}

// rawInto copies a body into a string or byte slice target
func rawInto(msg *contracts.Message, target reflect.Type) (interface{}, error) {
	switch {
	case target.Kind() == reflect.String:
		return reflect.ValueOf(string(msg.Body)).Convert(target).Interface(), nil
	case target.Kind() == reflect.Slice && target.Elem().Kind() == reflect.Uint8:
		return reflect.ValueOf(append([]byte(nil), msg.Body...)).Convert(target).Interface(), nil
	default:
		return nil, fmt.Errorf("%w: cannot decode %s into %v", ErrUnsupportedPayload, msg.Properties.ContentType, target)
	}
}
