package interceptors

import (
	"context"
	"errors"
	"testing"

	"github.com/glimte/mmate-producers/producer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMethodFilter(t *testing.T) {
	tests := []struct {
		name   string
		names  []string
		method producer.MethodID
		want   bool
	}{
		{"qualified", []string{"Greeter.Greet"}, greet, true},
		{"bare name", []string{"Greet"}, greet, true},
		{"interface wildcard", []string{"Greeter.*"}, greet, true},
		{"other method", []string{"Greeter.Wave"}, greet, false},
		{"other interface wildcard", []string{"Orders.*"}, greet, false},
		{"empty", nil, greet, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := NewMethodFilter(tt.names...).ShouldProcess(context.Background(), tt.method, newInvocation())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestHeaderFilter(t *testing.T) {
	inv := newInvocation()
	inv.SetHeader("tenant", "acme")
	inv.SetHeader("tags", map[string]interface{}{"a": 1})

	ok, _ := NewHeaderFilter("tenant", "acme").ShouldProcess(context.Background(), greet, inv)
	assert.True(t, ok)

	ok, _ = NewHeaderFilter("tenant", "other").ShouldProcess(context.Background(), greet, inv)
	assert.False(t, ok)

	ok, _ = NewHeaderFilter("tags", map[string]interface{}{"a": 1}).ShouldProcess(context.Background(), greet, inv)
	assert.True(t, ok)

	ok, _ = NewHeaderPresentFilter("tenant").ShouldProcess(context.Background(), greet, inv)
	assert.True(t, ok)

	ok, _ = NewHeaderPresentFilter("missing").ShouldProcess(context.Background(), greet, inv)
	assert.False(t, ok)
}

func TestCompositeFilters(t *testing.T) {
	yes := FilterFunc(func(context.Context, producer.MethodID, *producer.Invocation) (bool, error) { return true, nil })
	no := FilterFunc(func(context.Context, producer.MethodID, *producer.Invocation) (bool, error) { return false, nil })
	broken := FilterFunc(func(context.Context, producer.MethodID, *producer.Invocation) (bool, error) {
		return false, errors.New("broken")
	})
	ctx := context.Background()

	ok, err := NewCompositeFilter(yes, yes).ShouldProcess(ctx, greet, newInvocation())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = NewCompositeFilter(yes, no).ShouldProcess(ctx, greet, newInvocation())
	assert.False(t, ok)

	_, err = NewCompositeFilter(yes, broken).ShouldProcess(ctx, greet, newInvocation())
	assert.Error(t, err)

	ok, _ = NewOrFilter(no, yes).ShouldProcess(ctx, greet, newInvocation())
	assert.True(t, ok)

	ok, _ = NewOrFilter(no, no).ShouldProcess(ctx, greet, newInvocation())
	assert.False(t, ok)

	_, err = NewOrFilter(broken, yes).ShouldProcess(ctx, greet, newInvocation())
	assert.Error(t, err)
}

func TestConditionalObserver(t *testing.T) {
	t.Run("runs the observer for matching methods", func(t *testing.T) {
		m := &mockObserver{}
		m.On("Process", mock.Anything, mock.Anything, greet, mock.Anything).Return(nil).Once()

		o := NewConditionalObserver(NewMethodFilter("Greet"), m)
		require.NoError(t, o.Process(context.Background(), nil, greet, newInvocation()))
		require.NoError(t, o.Process(context.Background(), nil, producer.MethodID{Interface: "Greeter", Name: "Wave"}, newInvocation()))

		m.AssertExpectations(t)
		assert.Equal(t, "ConditionalObserver[*interceptors.mockObserver]", o.Name())
	})

	t.Run("filter errors abort", func(t *testing.T) {
		broken := FilterFunc(func(context.Context, producer.MethodID, *producer.Invocation) (bool, error) {
			return false, errors.New("broken")
		})
		err := NewConditionalObserver(broken, NewLoggingObserver(nil)).Process(context.Background(), nil, greet, newInvocation())
		assert.ErrorContains(t, err, "filter error")
	})
}
