package interceptors

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/glimte/mmate-producers/producer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var greet = producer.MethodID{Interface: "Greeter", Name: "Greet"}

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) Process(ctx context.Context, target interface{}, method producer.MethodID, inv *producer.Invocation) error {
	args := m.Called(ctx, target, method, inv)
	return args.Error(0)
}

func newInvocation() *producer.Invocation {
	return &producer.Invocation{Headers: map[string]interface{}{}, Args: []interface{}{"Ann"}}
}

func TestChain(t *testing.T) {
	t.Run("runs observers in order", func(t *testing.T) {
		var order []string
		record := func(name string) *ObserverFunc {
			return NewObserverFunc(name, func(ctx context.Context, target interface{}, method producer.MethodID, inv *producer.Invocation) error {
				order = append(order, name)
				inv.SetHeader(name, true)
				return nil
			})
		}

		chain := NewChain(nil).Add(record("first")).Add(record("second")).Add(record("third"))
		inv := newInvocation()

		require.NoError(t, chain.Process(context.Background(), nil, greet, inv))
		assert.Equal(t, []string{"first", "second", "third"}, order)
		assert.Len(t, inv.Headers, 3)
		assert.Equal(t, 3, chain.Len())
	})

	t.Run("first error stops the chain and names the observer", func(t *testing.T) {
		boom := errors.New("boom")
		failing := NewObserverFunc("Failing", func(context.Context, interface{}, producer.MethodID, *producer.Invocation) error {
			return boom
		})
		never := &mockObserver{}

		err := NewChain(nil).Add(failing).Add(never).Process(context.Background(), nil, greet, newInvocation())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "Failing")
		never.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unnamed observers are named by type", func(t *testing.T) {
		m := &mockObserver{}
		m.On("Process", mock.Anything, "target", greet, mock.Anything).Return(errors.New("no"))

		err := NewChain(nil).Add(m).Process(context.Background(), "target", greet, newInvocation())
		assert.Contains(t, err.Error(), "*interceptors.mockObserver")
		m.AssertExpectations(t)
	})

	t.Run("empty chain accepts everything", func(t *testing.T) {
		assert.NoError(t, NewChain(nil).Process(context.Background(), nil, greet, newInvocation()))
	})

	t.Run("works as the factory observer", func(t *testing.T) {
		var _ producer.InvocationObserver = NewChain(nil)
	})
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	inv := newInvocation()
	inv.SetBody("hello")
	require.NoError(t, NewLoggingObserver(logger).Process(context.Background(), nil, greet, inv))

	out := buf.String()
	assert.Contains(t, out, "invoking producer method")
	assert.Contains(t, out, "method=Greeter.Greet")
	assert.Contains(t, out, "hasBody=true")
	assert.Contains(t, out, "level=DEBUG")

	buf.Reset()
	require.NoError(t, NewLoggingObserver(logger).WithLevel(slog.LevelInfo).Process(context.Background(), nil, greet, inv))
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestValidationObserver(t *testing.T) {
	observer := NewValidationObserver(RequireHeaders("tenant", "user"))

	inv := newInvocation()
	inv.SetHeader("tenant", "acme")

	err := observer.Process(context.Background(), nil, greet, inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingHeader)
	assert.Contains(t, err.Error(), "user")

	inv.SetHeader("user", "ann")
	assert.NoError(t, observer.Process(context.Background(), nil, greet, inv))
}
