package serialization

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// TypeRegistry maps payload type names, as carried in the type id header, to Go types
type TypeRegistry interface {
	// Register registers a payload type with a type name
	Register(typeName string, sample interface{}) error

	// RegisterType registers a payload type using its package qualified name
	RegisterType(sample interface{}) error

	// Get retrieves the type for a given type name
	Get(typeName string) (reflect.Type, error)

	// CreateInstance creates a pointer to a new zero value of the registered type
	CreateInstance(typeName string) (interface{}, error)

	// GetTypeName gets the registered type name for a value
	GetTypeName(v interface{}) (string, error)

	// IsRegistered checks if a type name is registered
	IsRegistered(typeName string) bool

	// ListTypes returns all registered type names, sorted
	ListTypes() []string
}

// DefaultTypeRegistry is the default implementation of TypeRegistry
type DefaultTypeRegistry struct {
	types map[string]reflect.Type
	names map[reflect.Type]string
	mu    sync.RWMutex
}

// NewTypeRegistry creates a new type registry
func NewTypeRegistry() *DefaultTypeRegistry {
	return &DefaultTypeRegistry{
		types: make(map[string]reflect.Type),
		names: make(map[reflect.Type]string),
	}
}

// Register registers a payload type with a type name
func (r *DefaultTypeRegistry) Register(typeName string, sample interface{}) error {
	if typeName == "" {
		return fmt.Errorf("type name cannot be empty")
	}

	if sample == nil {
		return fmt.Errorf("payload type cannot be nil")
	}

	t := indirect(reflect.TypeOf(sample))
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("payload type must be a struct, got %v", t.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.types[typeName]; exists {
		if existing == t {
			return nil
		}
		return fmt.Errorf("type name %s already registered to %v", typeName, existing)
	}

	r.types[typeName] = t
	r.names[t] = typeName

	return nil
}

// RegisterType registers a payload type using its package qualified name
func (r *DefaultTypeRegistry) RegisterType(sample interface{}) error {
	if sample == nil {
		return fmt.Errorf("payload type cannot be nil")
	}

	typeName := QualifiedName(reflect.TypeOf(sample))
	if typeName == "" {
		return fmt.Errorf("cannot determine type name for %T", sample)
	}

	return r.Register(typeName, sample)
}

// Get retrieves the type for a given type name
func (r *DefaultTypeRegistry) Get(typeName string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[typeName]
	if !exists {
		return nil, fmt.Errorf("type %s not registered", typeName)
	}

	return t, nil
}

// CreateInstance creates a pointer to a new zero value of the registered type
func (r *DefaultTypeRegistry) CreateInstance(typeName string) (interface{}, error) {
	t, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}

	return reflect.New(t).Interface(), nil
}

// GetTypeName gets the registered type name for a value
func (r *DefaultTypeRegistry) GetTypeName(v interface{}) (string, error) {
	if v == nil {
		return "", fmt.Errorf("value cannot be nil")
	}

	t := indirect(reflect.TypeOf(v))

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, exists := r.names[t]
	if !exists {
		return "", fmt.Errorf("type %v not registered", t)
	}

	return name, nil
}

// IsRegistered checks if a type name is registered
func (r *DefaultTypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[typeName]
	return exists
}

// ListTypes returns all registered type names, sorted
func (r *DefaultTypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for typeName := range r.types {
		types = append(types, typeName)
	}
	sort.Strings(types)

	return types
}

// QualifiedName returns "pkgpath.Name" for named types and "" otherwise
func QualifiedName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	t = indirect(t)
	if t.Name() == "" {
		return ""
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

var globalRegistry = NewTypeRegistry()

// GetGlobalRegistry returns the global type registry
func GetGlobalRegistry() TypeRegistry {
	return globalRegistry
}
