package producer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/glimte/mmate-producers/ids"
)

// Factory compiles client interfaces into stubs
type Factory struct {
	resolver   Resolver
	components *Components
	observer   InvocationObserver
	metrics    MetricsCollector
	logger     *slog.Logger
	newID      IDGenerator
}

// FactoryOption configures the Factory
type FactoryOption func(*Factory)

// WithResolver sets the resolver for destinations, flags and header templates
func WithResolver(resolver Resolver) FactoryOption {
	return func(f *Factory) {
		f.resolver = resolver
	}
}

// WithComponents sets the component set endpoints select clients and converters from
func WithComponents(components *Components) FactoryOption {
	return func(f *Factory) {
		f.components = components
	}
}

// WithClient sets the default messaging client
func WithClient(client MessagingClient) FactoryOption {
	return func(f *Factory) {
		f.components.SetDefaultClient(client)
	}
}

// WithConverter sets the default message converter
func WithConverter(converter MessageConverter) FactoryOption {
	return func(f *Factory) {
		f.components.SetDefaultConverter(converter)
	}
}

// WithObserver sets the invocation observer
func WithObserver(observer InvocationObserver) FactoryOption {
	return func(f *Factory) {
		f.observer = observer
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics MetricsCollector) FactoryOption {
	return func(f *Factory) {
		f.metrics = metrics
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithIDGenerator sets the generator for message and correlation ids
func WithIDGenerator(gen IDGenerator) FactoryOption {
	return func(f *Factory) {
		f.newID = gen
	}
}

// NewFactory creates a new factory
func NewFactory(options ...FactoryOption) *Factory {
	f := &Factory{
		resolver:   LiteralResolver,
		components: NewComponents(),
		metrics:    &NoOpMetricsCollector{},
		logger:     slog.Default(),
		newID:      ids.UUID,
	}

	for _, opt := range options {
		opt(f)
	}

	return f
}

// Components returns the factory's component set
func (f *Factory) Components() *Components {
	return f.components
}

// Build compiles every method of iface and returns its stub.
// Any method that cannot be compiled fails the whole build.
func (f *Factory) Build(iface Interface) (*Stub, error) {
	if strings.TrimSpace(iface.Name) == "" {
		return nil, &CompilationError{Err: fmt.Errorf("%w: interface name is required", ErrInvalidInterface)}
	}

	endpoints := make(map[string]*Endpoint, len(iface.Methods))
	for _, m := range iface.Methods {
		if strings.TrimSpace(m.Name) == "" {
			return nil, &CompilationError{Interface: iface.Name, Err: fmt.Errorf("%w: method name is required", ErrInvalidInterface)}
		}
		switch m.Name {
		case MethodString, MethodEqual, MethodHash:
			return nil, &CompilationError{Interface: iface.Name, Method: m.Name, Err: ErrReservedMethod}
		}
		if _, exists := endpoints[m.Name]; exists {
			return nil, &CompilationError{Interface: iface.Name, Method: m.Name, Err: ErrDuplicateMethod}
		}

		ep, err := f.compileEndpoint(iface.Name, m)
		if err != nil {
			return nil, err
		}
		endpoints[m.Name] = ep
	}

	stub := &Stub{
		id:        ids.UUID(),
		name:      iface.Name,
		endpoints: endpoints,
		observer:  f.observer,
		metrics:   f.metrics,
		logger:    f.logger,
	}

	f.logger.Info("producer client built",
		"client", iface.Name,
		"methods", len(endpoints),
	)

	return stub, nil
}

// MustBuild is like Build but panics on error
func (f *Factory) MustBuild(iface Interface) *Stub {
	stub, err := f.Build(iface)
	if err != nil {
		panic(err)
	}
	return stub
}

// Registry keeps built clients by interface name
type Registry struct {
	factory *Factory
	mu      sync.RWMutex
	stubs   map[string]*Stub
}

// NewRegistry creates a registry building clients with factory
func NewRegistry(factory *Factory) *Registry {
	return &Registry{
		factory: factory,
		stubs:   make(map[string]*Stub),
	}
}

// Register builds and registers the given interfaces, stopping at the first failure
func (r *Registry) Register(ifaces ...Interface) error {
	for _, iface := range ifaces {
		stub, err := r.factory.Build(iface)
		if err != nil {
			return err
		}

		r.mu.Lock()
		if _, exists := r.stubs[iface.Name]; exists {
			r.mu.Unlock()
			return &CompilationError{Interface: iface.Name, Err: fmt.Errorf("%w: client already registered", ErrInvalidInterface)}
		}
		r.stubs[iface.Name] = stub
		r.mu.Unlock()
	}
	return nil
}

// Get returns a registered client
func (r *Registry) Get(name string) (*Stub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stub, ok := r.stubs[name]
	return stub, ok
}

// Names returns the registered client names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.stubs)
}
