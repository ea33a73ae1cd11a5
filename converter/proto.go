package converter

import (
	"fmt"
	"reflect"

	"github.com/glimte/mmate-producers/contracts"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

var protoMessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()

// ProtoConverter encodes protobuf messages and names them by their full message name
type ProtoConverter struct {
	types    *protoregistry.Types
	jsonWire bool
}

// ProtoOption configures the protobuf converter
type ProtoOption func(*ProtoConverter)

// WithProtoTypes sets the registry reply types are resolved from
func WithProtoTypes(types *protoregistry.Types) ProtoOption {
	return func(c *ProtoConverter) {
		c.types = types
	}
}

// WithProtoJSON encodes messages with the protobuf JSON mapping instead of the binary wire format
func WithProtoJSON() ProtoOption {
	return func(c *ProtoConverter) {
		c.jsonWire = true
	}
}

// NewProtoConverter creates a protobuf converter
func NewProtoConverter(opts ...ProtoOption) *ProtoConverter {
	c := &ProtoConverter{
		types: protoregistry.GlobalTypes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToMessage implements producer.MessageConverter
func (c *ProtoConverter) ToMessage(body interface{}, props contracts.MessageProperties) (*contracts.Message, error) {
	msg := &contracts.Message{Properties: props}
	msg.Properties.ContentType = c.contentType()

	if body == nil {
		return msg, nil
	}

	pm, ok := body.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a protobuf message", ErrUnsupportedPayload, body)
	}

	data, err := c.marshal(pm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal protobuf message: %w", err)
	}

	name := string(pm.ProtoReflect().Descriptor().FullName())
	msg.Body = data
	msg.Properties.Type = name
	msg.Properties.SetHeader(contracts.HeaderTypeID, name)

	return msg, nil
}

// FromMessage resolves the message type from __TypeId__ or the type property
func (c *ProtoConverter) FromMessage(msg *contracts.Message) (interface{}, error) {
	name := typeID(msg)
	if name == "" {
		name = msg.Properties.Type
	}
	if name == "" {
		return nil, fmt.Errorf("%w: reply carries no type name", ErrUnknownMessageType)
	}

	mt, err := c.types.FindMessageByName(protoreflect.FullName(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownMessageType, name, err)
	}

	pm := mt.New().Interface()
	if err := c.unmarshal(msg.Body, pm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return pm, nil
}

// FromMessageAs implements producer.TypedConverter for protobuf message targets
func (c *ProtoConverter) FromMessageAs(msg *contracts.Message, target reflect.Type) (interface{}, error) {
	if target.Kind() == reflect.Interface {
		return c.FromMessage(msg)
	}
	if target.Kind() != reflect.Ptr || !target.Implements(protoMessageType) {
		return nil, fmt.Errorf("%w: %v is not a protobuf message pointer", ErrUnsupportedPayload, target)
	}

	pm := reflect.New(target.Elem()).Interface().(proto.Message)
	if err := c.unmarshal(msg.Body, pm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %v: %w", target, err)
	}
	return pm, nil
}

func (c *ProtoConverter) contentType() string {
	if c.jsonWire {
		return contracts.ContentTypeJSON
	}
	return contracts.ContentTypeProtobuf
}

func (c *ProtoConverter) marshal(pm proto.Message) ([]byte, error) {
	if c.jsonWire {
		return protojson.Marshal(pm)
	}
	return proto.Marshal(pm)
}

func (c *ProtoConverter) unmarshal(data []byte, pm proto.Message) error {
	if c.jsonWire {
		return protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(data, pm)
	}
	return proto.Unmarshal(data, pm)
}
