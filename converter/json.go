package converter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/glimte/mmate-producers/contracts"
	"github.com/glimte/mmate-producers/serialization"
)

// JSONConverter encodes bodies as JSON and records their type name in the __TypeId__ header.
// Registered types are named by the serializer's TypeRegistry, other named types by their package
// qualified name.
type JSONConverter struct {
	serializer *serialization.JSONSerializer
}

// NewJSONConverter creates a JSON converter
func NewJSONConverter(opts ...serialization.JSONSerializerOption) *JSONConverter {
	return &JSONConverter{
		serializer: serialization.NewJSONSerializer(opts...),
	}
}

// ToMessage implements producer.MessageConverter
func (c *JSONConverter) ToMessage(body interface{}, props contracts.MessageProperties) (*contracts.Message, error) {
	data, typeName, err := c.serializer.Serialize(body)
	if err != nil {
		return nil, err
	}

	if typeName == "" && body != nil {
		typeName = serialization.QualifiedName(reflect.TypeOf(body))
	}

	msg := &contracts.Message{Body: data, Properties: props}
	msg.Properties.ContentType = contracts.ContentTypeJSON
	msg.Properties.ContentEncoding = contracts.DefaultContentEncoding
	if typeName != "" {
		msg.Properties.SetHeader(contracts.HeaderTypeID, typeName)
	}

	return msg, nil
}

// FromMessage decodes a JSON body into the registered type named by __TypeId__, or generically.
// Bodies of any other content type are returned as bytes.
func (c *JSONConverter) FromMessage(msg *contracts.Message) (interface{}, error) {
	if !isJSON(msg.Properties.ContentType) {
		return append([]byte(nil), msg.Body...), nil
	}
	return c.serializer.Deserialize(msg.Body, typeID(msg))
}

// FromMessageAs implements producer.TypedConverter.
// Non-JSON bodies decode only into string and []byte targets.
func (c *JSONConverter) FromMessageAs(msg *contracts.Message, target reflect.Type) (interface{}, error) {
	if target.Kind() == reflect.Interface {
		return c.FromMessage(msg)
	}
	if !isJSON(msg.Properties.ContentType) {
		return rawInto(msg, target)
	}
	return c.serializer.DeserializeInto(msg.Body, target)
}

func isJSON(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "json")
}

func typeID(msg *contracts.Message) string {
	if v, ok := msg.Properties.Header(contracts.HeaderTypeID); ok {
		return fmt.Sprint(v)
	}
	return ""
}
