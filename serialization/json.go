package serialization

import (
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
)

// JSONSerializer encodes payloads as JSON and resolves type names through a TypeRegistry
type JSONSerializer struct {
	registry    TypeRegistry
	api         sonic.API
	prettyPrint bool
}

// JSONSerializerOption configures the JSON serializer
type JSONSerializerOption func(*JSONSerializer)

// WithTypeRegistry sets the type registry
func WithTypeRegistry(registry TypeRegistry) JSONSerializerOption {
	return func(s *JSONSerializer) {
		s.registry = registry
	}
}

// WithPrettyPrint enables pretty printing
func WithPrettyPrint(pretty bool) JSONSerializerOption {
	return func(s *JSONSerializer) {
		s.prettyPrint = pretty
	}
}

// WithFastest trades encoding/json compatibility (sorted map keys, HTML escaping) for speed
func WithFastest() JSONSerializerOption {
	return func(s *JSONSerializer) {
		s.api = sonic.ConfigFastest
	}
}

// NewJSONSerializer creates a new JSON serializer
func NewJSONSerializer(opts ...JSONSerializerOption) *JSONSerializer {
	s := &JSONSerializer{
		registry: GetGlobalRegistry(),
		api:      sonic.ConfigStd,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Registry returns the serializer's type registry
func (s *JSONSerializer) Registry() TypeRegistry {
	return s.registry
}

// Serialize encodes v and returns its registered type name, or "" when the type is unregistered
func (s *JSONSerializer) Serialize(v interface{}) ([]byte, string, error) {
	var (
		data []byte
		err  error
	)
	if s.prettyPrint {
		data, err = s.api.MarshalIndent(v, "", "  ")
	} else {
		data, err = s.api.Marshal(v)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	typeName := ""
	if v != nil {
		if name, err := s.registry.GetTypeName(v); err == nil {
			typeName = name
		}
	}

	return data, typeName, nil
}

// Deserialize decodes data into a new instance of the named type.
// Unknown or blank type names decode into generic maps, slices and scalars; empty data yields nil.
func (s *JSONSerializer) Deserialize(data []byte, typeName string) (interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if typeName != "" && s.registry.IsRegistered(typeName) {
		instance, err := s.registry.CreateInstance(typeName)
		if err != nil {
			return nil, fmt.Errorf("failed to create instance: %w", err)
		}
		if err := s.api.Unmarshal(data, instance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal into type %s: %w", typeName, err)
		}
		return instance, nil
	}

	var value interface{}
	if err := s.api.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return value, nil
}

// DeserializeInto decodes data into a value of the target type; pointer targets yield pointers
func (s *JSONSerializer) DeserializeInto(data []byte, target reflect.Type) (interface{}, error) {
	if target == nil {
		return s.Deserialize(data, "")
	}

	if target.Kind() == reflect.Ptr {
		instance := reflect.New(target.Elem())
		if len(data) > 0 {
			if err := s.api.Unmarshal(data, instance.Interface()); err != nil {
				return nil, fmt.Errorf("failed to unmarshal into %v: %w", target, err)
			}
		}
		return instance.Interface(), nil
	}

	instance := reflect.New(target)
	if len(data) > 0 {
		if err := s.api.Unmarshal(data, instance.Interface()); err != nil {
			return nil, fmt.Errorf("failed to unmarshal into %v: %w", target, err)
		}
	}
	return instance.Elem().Interface(), nil
}
