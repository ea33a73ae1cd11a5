package producer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/glimte/mmate-producers/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func singleMethod(p *Producer, params ...Param) Interface {
	return Interface{
		Name: "Client",
		Methods: []Method{{
			Name:     "Do",
			Producer: p,
			Params:   params,
			Returns:  Void(),
		}},
	}
}

func TestFactoryCompilation(t *testing.T) {
	t.Run("Resolves destination into exchange and routing key", func(t *testing.T) {
		stub, err := newTestFactory(&mockClient{}).Build(greeterDecl)
		require.NoError(t, err)

		hello, _ := stub.Endpoint("Hello")
		assert.Equal(t, contracts.Address{RoutingKey: "sayHello"}, hello.Address())

		notify, _ := stub.Endpoint("Notify")
		assert.Equal(t, contracts.Address{Exchange: "greetings", RoutingKey: "notify"}, notify.Address())
		assert.Equal(t, MethodID{Interface: "Greeter", Name: "Notify"}, notify.ID())
		assert.Equal(t, ReturnVoid, notify.Returns().Kind)
	})

	t.Run("Resolver is applied to destination, flag and headers", func(t *testing.T) {
		props := map[string]string{
			"${queue}":  "orders/created",
			"${reply}":  "true",
			"${hdrKey}": "tenant",
			"${hdrVal}": "acme",
		}
		resolver := ResolverFunc(func(raw string) (string, error) {
			if v, ok := props[raw]; ok {
				return v, nil
			}
			return raw, nil
		})

		f := newTestFactory(&mockClient{}, WithResolver(resolver))
		stub, err := f.Build(singleMethod(&Producer{
			Destination:      "${queue}",
			ReturnExceptions: "${reply}",
			Headers:          []string{"${hdrKey}=${hdrVal}"},
		}))
		require.NoError(t, err)

		ep, _ := stub.Endpoint("Do")
		assert.Equal(t, contracts.Address{Exchange: "orders", RoutingKey: "created"}, ep.Address())
		assert.True(t, ep.ReturnExceptions())
		assert.Equal(t, map[string]string{"tenant": "acme"}, ep.Headers())
		assert.Equal(t, strategyRequestValue, ep.Strategy())
	})

	t.Run("Header template splits at the first equals sign", func(t *testing.T) {
		stub, err := newTestFactory(&mockClient{}).Build(singleMethod(&Producer{
			Destination: "queue",
			Headers:     []string{"query=a=b", "empty="},
		}))
		require.NoError(t, err)

		ep, _ := stub.Endpoint("Do")
		assert.Equal(t, map[string]string{"query": "a=b", "empty": ""}, ep.Headers())
	})

	t.Run("Endpoint headers are a copy", func(t *testing.T) {
		stub, err := newTestFactory(&mockClient{}).Build(singleMethod(&Producer{
			Destination: "queue",
			Headers:     []string{"a=1"},
		}))
		require.NoError(t, err)

		ep, _ := stub.Endpoint("Do")
		ep.Headers()["a"] = "changed"
		assert.Equal(t, "1", ep.Headers()["a"])
	})

	t.Run("Named components override defaults", func(t *testing.T) {
		defaultClient := &mockClient{}
		auditClient := &mockClient{}
		auditClient.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		f := newTestFactory(defaultClient)
		f.Components().RegisterClient("audit", auditClient)

		stub, err := f.Build(singleMethod(&Producer{Destination: "audit", Template: "audit"}))
		require.NoError(t, err)

		require.NoError(t, Send(context.Background(), stub, "Do"))
		auditClient.AssertNumberOfCalls(t, "Send", 1)
		defaultClient.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	tests := []struct {
		name    string
		iface   Interface
		opts    []FactoryOption
		wantErr error
		wantRaw string
	}{
		{
			name:    "missing producer declaration",
			iface:   singleMethod(nil),
			wantErr: ErrMissingProducer,
		},
		{
			name:    "multiple body parameters",
			iface:   singleMethod(&Producer{Destination: "q"}, BodyParam("a"), BodyParam("b")),
			wantErr: ErrMultipleBodies,
		},
		{
			name:    "header template without equals sign",
			iface:   singleMethod(&Producer{Destination: "q", Headers: []string{"novalue"}}),
			wantErr: ErrInvalidHeaderTemplate,
			wantRaw: "novalue",
		},
		{
			name:    "invalid reply flag",
			iface:   singleMethod(&Producer{Destination: "q", ReturnExceptions: "maybe"}),
			wantErr: ErrInvalidFlag,
			wantRaw: "maybe",
		},
		{
			name:    "unknown messaging client",
			iface:   singleMethod(&Producer{Destination: "q", Template: "missing"}),
			wantErr: ErrUnknownComponent,
			wantRaw: "missing",
		},
		{
			name:    "unknown converter",
			iface:   singleMethod(&Producer{Destination: "q", Converter: "missing"}),
			wantErr: ErrUnknownComponent,
			wantRaw: "missing",
		},
		{
			name:    "reserved method name",
			iface:   Interface{Name: "Client", Methods: []Method{{Name: MethodHash, Producer: &Producer{Destination: "q"}}}},
			wantErr: ErrReservedMethod,
		},
		{
			name: "duplicate method",
			iface: Interface{Name: "Client", Methods: []Method{
				{Name: "Do", Producer: &Producer{Destination: "q"}},
				{Name: "Do", Producer: &Producer{Destination: "q"}},
			}},
			wantErr: ErrDuplicateMethod,
		},
		{
			name:    "blank interface name",
			iface:   Interface{},
			wantErr: ErrInvalidInterface,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub, err := newTestFactory(&mockClient{}, tt.opts...).Build(tt.iface)
			assert.Nil(t, stub)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsCompilationError(err))

			var compErr *CompilationError
			require.ErrorAs(t, err, &compErr)
			assert.Equal(t, tt.wantRaw, compErr.Raw)
		})
	}

	t.Run("Resolver failure names the raw string", func(t *testing.T) {
		resolveErr := errors.New("property not found")
		resolver := ResolverFunc(func(raw string) (string, error) {
			if strings.Contains(raw, "${") {
				return "", resolveErr
			}
			return raw, nil
		})

		_, err := newTestFactory(&mockClient{}, WithResolver(resolver)).Build(singleMethod(&Producer{Destination: "${missing.queue}"}))
		require.Error(t, err)
		assert.ErrorIs(t, err, resolveErr)
		assert.Contains(t, err.Error(), "${missing.queue}")
		assert.Contains(t, err.Error(), "Client.Do")
	})

	t.Run("One bad method fails the whole build", func(t *testing.T) {
		iface := greeterDecl
		iface.Methods = append(append([]Method{}, greeterDecl.Methods...), Method{Name: "Broken"})

		_, err := newTestFactory(&mockClient{}).Build(iface)
		assert.ErrorIs(t, err, ErrMissingProducer)
	})

	t.Run("MustBuild panics on compilation failure", func(t *testing.T) {
		f := newTestFactory(&mockClient{})
		assert.Panics(t, func() { f.MustBuild(singleMethod(nil)) })
		assert.NotPanics(t, func() { f.MustBuild(greeterDecl) })
	})
}

func TestComponents(t *testing.T) {
	t.Run("Single registered client is the default", func(t *testing.T) {
		only := &mockClient{}
		c := NewComponents().RegisterClient("only", only)

		client, err := c.Client("")
		require.NoError(t, err)
		assert.Same(t, only, client)
	})

	t.Run("Several clients without default", func(t *testing.T) {
		c := NewComponents().
			RegisterClient("a", &mockClient{}).
			RegisterClient("b", &mockClient{})

		_, err := c.Client("")
		assert.ErrorIs(t, err, ErrNoDefaultComponent)
	})

	t.Run("Explicit default wins over registered clients", func(t *testing.T) {
		def := &mockClient{}
		c := NewComponents().
			RegisterClient("a", &mockClient{}).
			SetDefaultClient(def)

		client, err := c.Client("")
		require.NoError(t, err)
		assert.Same(t, def, client)
	})

	t.Run("Unknown converter lists registered names", func(t *testing.T) {
		c := NewComponents().
			RegisterConverter("text", textConverter{}).
			RegisterConverter("alt", textConverter{})

		_, err := c.Converter("json")
		assert.ErrorIs(t, err, ErrUnknownComponent)
		assert.Contains(t, err.Error(), "alt, text")
	})

	t.Run("Empty set has no default converter", func(t *testing.T) {
		_, err := NewComponents().Converter("")
		assert.ErrorIs(t, err, ErrNoDefaultComponent)
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(newTestFactory(&mockClient{}))

	orders := singleMethod(&Producer{Destination: "orders"})
	orders.Name = "Orders"

	require.NoError(t, registry.Register(greeterDecl, orders))
	assert.Equal(t, []string{"Greeter", "Orders"}, registry.Names())

	stub, ok := registry.Get("Greeter")
	require.True(t, ok)
	assert.Equal(t, "Greeter", stub.Name())

	_, ok = registry.Get("Missing")
	assert.False(t, ok)

	err := registry.Register(greeterDecl)
	assert.ErrorIs(t, err, ErrInvalidInterface)
}

func TestInvocation(t *testing.T) {
	inv := newInvocation([]interface{}{"a"}, map[string]string{"static": "1"})
	assert.Equal(t, "1", inv.Headers["static"])
	assert.Equal(t, "a", inv.Arg(0))
	assert.Nil(t, inv.Arg(1))
	assert.Nil(t, inv.Arg(-1))
	assert.False(t, inv.HasBody)

	inv.SetBody(nil)
	assert.True(t, inv.HasBody)

	var empty Invocation
	empty.SetHeader("k", "v")
	assert.Equal(t, "v", empty.Headers["k"])
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "text", stringify("text"))
	assert.Equal(t, "bytes", stringify([]byte("bytes")))
	assert.Equal(t, "7", stringify(7))
	assert.Equal(t, "true", stringify(true))
	assert.Equal(t, "Greeter.Hello", stringify(MethodID{Interface: "Greeter", Name: "Hello"}))
}
