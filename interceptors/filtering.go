package interceptors

import (
	"context"
	"fmt"
	"reflect"

	"github.com/glimte/mmate-producers/producer"
)

// InvocationFilter decides whether an observer applies to an invocation
type InvocationFilter interface {
	ShouldProcess(ctx context.Context, method producer.MethodID, inv *producer.Invocation) (bool, error)
}

// FilterFunc is a function adapter for InvocationFilter
type FilterFunc func(ctx context.Context, method producer.MethodID, inv *producer.Invocation) (bool, error)

// ShouldProcess implements InvocationFilter
func (f FilterFunc) ShouldProcess(ctx context.Context, method producer.MethodID, inv *producer.Invocation) (bool, error) {
	return f(ctx, method, inv)
}

// CompositeFilter combines multiple filters with AND logic
type CompositeFilter struct {
	filters []InvocationFilter
}

// NewCompositeFilter creates a new composite filter
func NewCompositeFilter(filters ...InvocationFilter) *CompositeFilter {
	return &CompositeFilter{filters: filters}
}

// ShouldProcess implements InvocationFilter - all filters must return true
func (f *CompositeFilter) ShouldProcess(ctx context.Context, method producer.MethodID, inv *producer.Invocation) (bool, error) {
	for _, filter := range f.filters {
		ok, err := filter.ShouldProcess(ctx, method, inv)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// OrFilter combines multiple filters with OR logic
type OrFilter struct {
	filters []InvocationFilter
}

// NewOrFilter creates a new OR filter
func NewOrFilter(filters ...InvocationFilter) *OrFilter {
	return &OrFilter{filters: filters}
}

// ShouldProcess implements InvocationFilter - at least one filter must return true
func (f *OrFilter) ShouldProcess(ctx context.Context, method producer.MethodID, inv *producer.Invocation) (bool, error) {
	for _, filter := range f.filters {
		ok, err := filter.ShouldProcess(ctx, method, inv)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// MethodFilter matches methods by "Interface.Method", by bare method name or by "Interface.*"
type MethodFilter struct {
	names map[string]bool
}

// NewMethodFilter creates a filter that only allows the named methods
func NewMethodFilter(names ...string) *MethodFilter {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return &MethodFilter{names: m}
}

// ShouldProcess implements InvocationFilter
func (f *MethodFilter) ShouldProcess(ctx context.Context, method producer.MethodID, inv *producer.Invocation) (bool, error) {
	return f.names[method.String()] || f.names[method.Name] || f.names[method.Interface+".*"], nil
}

// HeaderFilter matches invocations carrying a header, optionally with a given value
type HeaderFilter struct {
	key      string
	value    interface{}
	anyValue bool
}

// NewHeaderFilter matches invocations whose header key equals value
func NewHeaderFilter(key string, value interface{}) *HeaderFilter {
	return &HeaderFilter{key: key, value: value}
}

// NewHeaderPresentFilter matches invocations carrying header key with any value
func NewHeaderPresentFilter(key string) *HeaderFilter {
	return &HeaderFilter{key: key, anyValue: true}
}

// ShouldProcess implements InvocationFilter
func (f *HeaderFilter) ShouldProcess(ctx context.Context, method producer.MethodID, inv *producer.Invocation) (bool, error) {
	v, ok := inv.Headers[f.key]
	if !ok {
		return false, nil
	}
	return f.anyValue || reflect.DeepEqual(v, f.value), nil
}

// ConditionalObserver runs an observer only for invocations the filter accepts
type ConditionalObserver struct {
	condition InvocationFilter
	observer  producer.InvocationObserver
}

// NewConditionalObserver creates a new conditional observer
func NewConditionalObserver(condition InvocationFilter, observer producer.InvocationObserver) *ConditionalObserver {
	return &ConditionalObserver{condition: condition, observer: observer}
}

// Process implements producer.InvocationObserver
func (o *ConditionalObserver) Process(ctx context.Context, target interface{}, method producer.MethodID, inv *producer.Invocation) error {
	ok, err := o.condition.ShouldProcess(ctx, method, inv)
	if err != nil {
		return fmt.Errorf("filter error: %w", err)
	}
	if !ok {
		return nil
	}
	return o.observer.Process(ctx, target, method, inv)
}

// Name implements NamedObserver
func (o *ConditionalObserver) Name() string {
	return fmt.Sprintf("ConditionalObserver[%s]", nameOf(o.observer))
}
