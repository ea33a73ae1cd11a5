package producer

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"reflect"
	"time"

	"github.com/glimte/mmate-producers/contracts"
)

// Identity operations answered by the Stub itself
const (
	MethodString = "String"
	MethodEqual  = "Equal"
	MethodHash   = "Hash"
)

// Stub is a built client: it dispatches calls to the compiled endpoints of one interface.
// The endpoint table is read-only after Build, so a Stub is safe for concurrent use.
type Stub struct {
	id        string
	name      string
	endpoints map[string]*Endpoint
	observer  InvocationObserver
	metrics   MetricsCollector
	logger    *slog.Logger
}

// Name returns the client interface name
func (s *Stub) Name() string {
	return s.name
}

// String returns the client name and instance id
func (s *Stub) String() string {
	return fmt.Sprintf("producer.Stub(%s@%s)", s.name, s.id)
}

// Equal reports whether other is this very stub
func (s *Stub) Equal(other interface{}) bool {
	o, ok := other.(*Stub)
	return ok && o == s
}

// Hash returns a hash of the stub instance id
func (s *Stub) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.id))
	return h.Sum64()
}

// Endpoint returns the compiled endpoint of a method
func (s *Stub) Endpoint(method string) (*Endpoint, bool) {
	ep, ok := s.endpoints[method]
	return ep, ok
}

// Methods returns the compiled method names, sorted
func (s *Stub) Methods() []string {
	return sortedKeys(s.endpoints)
}

// Invoke dispatches a call to the endpoint of method.
// Calling a method that was never compiled returns a nil result and no error.
func (s *Stub) Invoke(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	switch method {
	case MethodString:
		return s.String(), nil
	case MethodHash:
		return s.Hash(), nil
	case MethodEqual:
		if len(args) == 0 {
			return false, nil
		}
		return s.Equal(args[0]), nil
	}

	ep, ok := s.endpoints[method]
	if !ok {
		s.logger.Warn("no endpoint compiled for method",
			"client", s.name,
			"method", method,
		)
		return nil, nil
	}

	if len(args) != len(ep.binders) {
		return nil, &BindingError{
			Method: ep.id,
			Err:    fmt.Errorf("%w: want %d, got %d", ErrArgumentCount, len(ep.binders), len(args)),
		}
	}

	inv := newInvocation(args, ep.staticHeaders)
	for _, bind := range ep.binders {
		if err := bind(inv); err != nil {
			return nil, err
		}
	}

	if s.observer != nil {
		if err := s.observer.Process(ctx, s, ep.id, inv); err != nil {
			return nil, fmt.Errorf("invocation observer failed for %s: %w", ep.id, err)
		}
	}

	start := time.Now()
	result, err := ep.strategy(ctx, inv)
	s.metrics.RecordCall(ep.id.String(), ep.strategyName, time.Since(start), err == nil)
	if err != nil {
		s.logger.Error("producer call failed",
			"method", ep.id.String(),
			"exchange", ep.address.Exchange,
			"routingKey", ep.address.RoutingKey,
			"error", err,
		)
		return nil, err
	}

	return result, nil
}

// Send invokes a fire-and-forget method
func Send(ctx context.Context, s *Stub, method string, args ...interface{}) error {
	_, err := s.Invoke(ctx, method, args...)
	return err
}

// Call invokes a method and returns its result as T.
// The zero value of T is returned when no reply arrived; use a pointer T to tell the cases apart.
func Call[T any](ctx context.Context, s *Stub, method string, args ...interface{}) (T, error) {
	var zero T

	result, err := s.Invoke(ctx, method, args...)
	if err != nil || result == nil {
		return zero, err
	}

	value, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s returned %T, want %v", ErrUnexpectedType, s.name, method, result, reflect.TypeFor[T]())
	}
	return value, nil
}

// CallMessage invokes a method declared with RawMessage
func CallMessage(ctx context.Context, s *Stub, method string, args ...interface{}) (*contracts.Message, error) {
	return Call[*contracts.Message](ctx, s, method, args...)
}

// CallGeneric invokes a method declared with Generic
func CallGeneric(ctx context.Context, s *Stub, method string, args ...interface{}) (*contracts.GenericMessage, error) {
	return Call[*contracts.GenericMessage](ctx, s, method, args...)
}
