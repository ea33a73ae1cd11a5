package serialization

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test payload types
type OrderCreated struct {
	OrderID    string  `json:"orderId"`
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
}

type OrderShipped struct {
	OrderID string            `json:"orderId"`
	Labels  map[string]string `json:"labels"`
}

func TestDefaultTypeRegistry(t *testing.T) {
	t.Run("registers type with name", func(t *testing.T) {
		registry := NewTypeRegistry()

		err := registry.Register("orders.created", &OrderCreated{})
		require.NoError(t, err)

		assert.True(t, registry.IsRegistered("orders.created"))
	})

	t.Run("registers type with qualified name", func(t *testing.T) {
		registry := NewTypeRegistry()

		err := registry.RegisterType(OrderCreated{})
		require.NoError(t, err)

		types := registry.ListTypes()
		require.Len(t, types, 1)
		assert.Equal(t, "github.com/glimte/mmate-producers/serialization.OrderCreated", types[0])
	})

	t.Run("rejects empty type name", func(t *testing.T) {
		err := NewTypeRegistry().Register("", &OrderCreated{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "type name cannot be empty")
	})

	t.Run("rejects nil type", func(t *testing.T) {
		err := NewTypeRegistry().Register("Test", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "payload type cannot be nil")
	})

	t.Run("rejects non-struct types", func(t *testing.T) {
		err := NewTypeRegistry().Register("Test", "not a struct")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be a struct")
	})

	t.Run("handles duplicate registration of same type", func(t *testing.T) {
		registry := NewTypeRegistry()
		require.NoError(t, registry.Register("orders.created", &OrderCreated{}))
		assert.NoError(t, registry.Register("orders.created", OrderCreated{}))
	})

	t.Run("rejects duplicate registration of different type", func(t *testing.T) {
		registry := NewTypeRegistry()
		require.NoError(t, registry.Register("orders.created", &OrderCreated{}))

		err := registry.Register("orders.created", &OrderShipped{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("lists types sorted", func(t *testing.T) {
		registry := NewTypeRegistry()
		require.NoError(t, registry.Register("b", &OrderShipped{}))
		require.NoError(t, registry.Register("a", &OrderCreated{}))
		assert.Equal(t, []string{"a", "b"}, registry.ListTypes())
	})
}

func TestDefaultTypeRegistry_Lookup(t *testing.T) {
	registry := NewTypeRegistry()
	require.NoError(t, registry.Register("orders.created", &OrderCreated{}))

	t.Run("creates instance of registered type", func(t *testing.T) {
		instance, err := registry.CreateInstance("orders.created")
		require.NoError(t, err)

		_, ok := instance.(*OrderCreated)
		assert.True(t, ok)
	})

	t.Run("returns error for unregistered type", func(t *testing.T) {
		_, err := registry.CreateInstance("UnknownType")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})

	t.Run("gets type name for value and pointer", func(t *testing.T) {
		name, err := registry.GetTypeName(&OrderCreated{})
		require.NoError(t, err)
		assert.Equal(t, "orders.created", name)

		name, err = registry.GetTypeName(OrderCreated{})
		require.NoError(t, err)
		assert.Equal(t, "orders.created", name)
	})

	t.Run("returns error for unregistered value", func(t *testing.T) {
		_, err := registry.GetTypeName(&OrderShipped{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})

	t.Run("returns error for nil", func(t *testing.T) {
		_, err := registry.GetTypeName(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be nil")
	})
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "github.com/glimte/mmate-producers/serialization.OrderCreated", QualifiedName(reflect.TypeOf(&OrderCreated{})))
	assert.Equal(t, "string", QualifiedName(reflect.TypeOf("")))
	assert.Equal(t, "", QualifiedName(reflect.TypeOf(map[string]int{})))
	assert.Equal(t, "", QualifiedName(nil))
}
