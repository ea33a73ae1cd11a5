package producer

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glimte/mmate-producers/contracts"
)

// Endpoint is the compiled, immutable dispatch plan of one client method
type Endpoint struct {
	id               MethodID
	address          contracts.Address
	staticHeaders    map[string]string
	binders          []binder
	returns          Returns
	returnExceptions bool
	client           MessagingClient
	converter        MessageConverter
	newID            IDGenerator
	metrics          MetricsCollector
	logger           *slog.Logger
	strategyName     string
	strategy         sendStrategy
}

// ID returns the method identity
func (e *Endpoint) ID() MethodID {
	return e.id
}

// Address returns the resolved destination
func (e *Endpoint) Address() contracts.Address {
	return e.address
}

// Headers returns a copy of the resolved static headers
func (e *Endpoint) Headers() map[string]string {
	headers := make(map[string]string, len(e.staticHeaders))
	for k, v := range e.staticHeaders {
		headers[k] = v
	}
	return headers
}

// Returns returns the declared return shape
func (e *Endpoint) Returns() Returns {
	return e.returns
}

// ReturnExceptions returns the resolved reply flag
func (e *Endpoint) ReturnExceptions() bool {
	return e.returnExceptions
}

// Strategy returns the name of the selected send strategy
func (e *Endpoint) Strategy() string {
	return e.strategyName
}

// compileEndpoint builds the endpoint of one method
func (f *Factory) compileEndpoint(iface string, m Method) (*Endpoint, error) {
	fail := func(raw string, err error) error {
		return &CompilationError{Interface: iface, Method: m.Name, Raw: raw, Err: err}
	}

	if m.Producer == nil {
		return nil, fail("", ErrMissingProducer)
	}
	p := m.Producer
	id := MethodID{Interface: iface, Name: m.Name}

	destination, err := f.resolver.Resolve(p.Destination)
	if err != nil {
		return nil, fail(p.Destination, err)
	}

	staticHeaders := make(map[string]string, len(p.Headers))
	for _, tmpl := range p.Headers {
		rawKey, rawValue, ok := strings.Cut(tmpl, "=")
		if !ok {
			return nil, fail(tmpl, ErrInvalidHeaderTemplate)
		}
		key, err := f.resolver.Resolve(strings.TrimSpace(rawKey))
		if err != nil {
			return nil, fail(rawKey, err)
		}
		value, err := f.resolver.Resolve(rawValue)
		if err != nil {
			return nil, fail(rawValue, err)
		}
		staticHeaders[key] = value
	}

	returnExceptions, err := f.resolveFlag(p.ReturnExceptions)
	if err != nil {
		return nil, fail(p.ReturnExceptions, err)
	}

	client, err := f.components.Client(p.Template)
	if err != nil {
		return nil, fail(p.Template, err)
	}
	converter, err := f.components.Converter(p.Converter)
	if err != nil {
		return nil, fail(p.Converter, err)
	}

	binders, err := buildBinders(id, m.Params)
	if err != nil {
		return nil, fail("", err)
	}

	ep := &Endpoint{
		id:               id,
		address:          contracts.ParseAddress(destination),
		staticHeaders:    staticHeaders,
		binders:          binders,
		returns:          m.Returns,
		returnExceptions: returnExceptions,
		client:           client,
		converter:        converter,
		newID:            f.newID,
		metrics:          f.metrics,
		logger:           f.logger,
	}
	ep.strategyName, ep.strategy = ep.selectStrategy()

	f.logger.Debug("compiled producer endpoint",
		"method", id.String(),
		"exchange", ep.address.Exchange,
		"routingKey", ep.address.RoutingKey,
		"strategy", ep.strategyName,
		"headers", len(staticHeaders),
	)

	return ep, nil
}

// resolveFlag resolves and parses a boolean-as-string flag; blank means false
func (f *Factory) resolveFlag(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	resolved, err := f.resolver.Resolve(raw)
	if err != nil {
		return false, err
	}
	resolved = strings.TrimSpace(resolved)
	if resolved == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(resolved)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidFlag, resolved)
	}
	return value, nil
}
