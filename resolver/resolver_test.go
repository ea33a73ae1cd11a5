package resolver

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glimte/mmate-producers/producer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ producer.Resolver = (*Resolver)(nil)

func TestPlaceholders(t *testing.T) {
	r := New(WithProperties(map[string]string{
		"orders.exchange": "orders",
		"orders.queue":    "created",
		"orders.dest":     "${orders.exchange}/${orders.queue}",
		"suffix":          "queue",
		"name.queue":      "nested",
		"loop.a":          "${loop.b}",
		"loop.b":          "${loop.a}",
		"empty":           "",
	}))

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"literal", "sayHello", "sayHello"},
		{"single", "${orders.exchange}", "orders"},
		{"mixed text", "${orders.exchange}/notify", "orders/notify"},
		{"value holding placeholders", "${orders.dest}", "orders/created"},
		{"default used", "${missing:fallback}", "fallback"},
		{"default ignored", "${orders.queue:fallback}", "created"},
		{"empty default", "${missing:}", ""},
		{"default with colon", "${missing:a:b}", "a:b"},
		{"placeholder default", "${missing:${orders.queue}}", "created"},
		{"nested key", "${name.${suffix}}", "nested"},
		{"empty value", "x${empty}y", "xy"},
		{"several", "${orders.exchange}-${orders.queue}-${missing:z}", "orders-created-z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unresolvable placeholder names the key", func(t *testing.T) {
		_, err := r.Resolve("${no.such.key}")
		assert.ErrorIs(t, err, ErrUnresolvablePlaceholder)
		assert.Contains(t, err.Error(), "no.such.key")
	})

	t.Run("circular reference", func(t *testing.T) {
		_, err := r.Resolve("${loop.a}")
		assert.ErrorIs(t, err, ErrCircularPlaceholder)
	})

	t.Run("unterminated placeholder", func(t *testing.T) {
		_, err := r.Resolve("${orders.exchange")
		assert.ErrorIs(t, err, ErrUnterminated)
	})

	t.Run("ignore unresolvable keeps the placeholder", func(t *testing.T) {
		lenient := New(WithIgnoreUnresolvable())
		got, err := lenient.Resolve("a/${missing}")
		require.NoError(t, err)
		assert.Equal(t, "a/${missing}", got)
	})
}

func TestSourceOrder(t *testing.T) {
	r := New(
		WithProperties(map[string]string{"key": "first"}),
		WithProperties(map[string]string{"key": "second", "other": "only-second"}),
	)

	got, err := r.Resolve("${key}/${other}")
	require.NoError(t, err)
	assert.Equal(t, "first/only-second", got)
}

func TestExpressions(t *testing.T) {
	r := New(
		WithProperties(map[string]string{"reply.enabled": "true", "orders.exchange": "orders"}),
		WithVariables(map[string]interface{}{"region": "eu", "shards": 4}),
	)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"boolean literal", "#{true}", "true"},
		{"arithmetic", "#{shards * 2}", "8"},
		{"string function", "#{upper(region)}", "EU"},
		{"property function", "#{prop('orders.exchange') + '.events'}", "orders.events"},
		{"comparison", "#{prop('reply.enabled') == 'true'}", "true"},
		{"template", "events-#{region}/#{lower('Created')}", "events-eu/created"},
		{"braces inside strings", "#{'{' + region + '}'}", "{eu}"},
		{"nil result", "#{nil}", ""},
		{"placeholder feeds expression", "#{'${orders.exchange}' == 'orders'}", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("invalid expression names the source", func(t *testing.T) {
		_, err := r.Resolve("#{unknownVar + }")
		assert.ErrorIs(t, err, ErrExpression)
		assert.Contains(t, err.Error(), "unknownVar")
	})

	t.Run("unterminated expression", func(t *testing.T) {
		_, err := r.Resolve("#{1 + 1")
		assert.ErrorIs(t, err, ErrUnterminated)
	})

	t.Run("environment function", func(t *testing.T) {
		t.Setenv("MMATE_RESOLVER_TEST", "from-env")
		got, err := r.Resolve("#{env('MMATE_RESOLVER_TEST')}")
		require.NoError(t, err)
		assert.Equal(t, "from-env", got)
	})

	t.Run("concurrent evaluation", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := r.Resolve("#{shards + 1}")
				assert.NoError(t, err)
				assert.Equal(t, "5", got)
			}()
		}
		wg.Wait()
	})
}

func TestEnvSource(t *testing.T) {
	t.Setenv("ORDERS_REPLY_TIMEOUT", "10s")
	t.Setenv("APP_ORDERS_QUEUE", "prefixed")
	t.Setenv("literal.key", "literal")

	assertLookup := func(source Source, key, want string) {
		t.Helper()
		v, ok := source.Lookup(key)
		require.True(t, ok, key)
		assert.Equal(t, want, v)
	}

	assertLookup(EnvSource(""), "orders.reply-timeout", "10s")
	assertLookup(EnvSource("APP_"), "orders.queue", "prefixed")
	assertLookup(EnvSource(""), "literal.key", "literal")

	_, ok := EnvSource("").Lookup("definitely.not.set.anywhere")
	assert.False(t, ok)
}

func TestYAMLSource(t *testing.T) {
	data := []byte(`
orders:
  exchange: orders
  reply:
    enabled: true
    timeout: 5
  queues:
    - created
    - shipped
empty:
`)

	props, err := ParseYAMLSource(data)
	require.NoError(t, err)
	assert.Equal(t, MapSource{
		"orders.exchange":      "orders",
		"orders.reply.enabled": "true",
		"orders.reply.timeout": "5",
		"orders.queues[0]":     "created",
		"orders.queues[1]":     "shipped",
		"empty":                "",
	}, props)

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "props.yaml")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		loaded, err := LoadYAMLSource(path)
		require.NoError(t, err)

		r := New(WithSource(loaded))
		got, err := r.Resolve("${orders.exchange}/${orders.queues[1]}")
		require.NoError(t, err)
		assert.Equal(t, "orders/shipped", got)
	})

	t.Run("invalid document", func(t *testing.T) {
		_, err := ParseYAMLSource([]byte("a: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadYAMLSource(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}
