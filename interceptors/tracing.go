package interceptors

import (
	"context"
	"fmt"

	"github.com/glimte/mmate-producers/producer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/glimte/mmate-producers/interceptors"

// TracingObserver records a producer span per invocation and writes its trace context into the
// message headers so consumers can continue the trace
type TracingObserver struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// TracingOption configures the tracing observer
type TracingOption func(*TracingObserver)

// WithTracerProvider sets the tracer provider; the global provider is used by default
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(o *TracingObserver) {
		o.tracer = tp.Tracer(tracerName)
	}
}

// WithPropagator sets the propagator; W3C trace context is used by default
func WithPropagator(p propagation.TextMapPropagator) TracingOption {
	return func(o *TracingObserver) {
		o.propagator = p
	}
}

// NewTracingObserver creates a new tracing observer
func NewTracingObserver(opts ...TracingOption) *TracingObserver {
	o := &TracingObserver{
		tracer:     otel.Tracer(tracerName),
		propagator: propagation.TraceContext{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process implements producer.InvocationObserver
func (o *TracingObserver) Process(ctx context.Context, target interface{}, method producer.MethodID, inv *producer.Invocation) error {
	ctx, span := o.tracer.Start(ctx, method.String()+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.operation", "publish"),
			attribute.String("producer.interface", method.Interface),
			attribute.String("producer.method", method.Name),
		))
	defer span.End()

	if inv.Headers == nil {
		inv.Headers = make(map[string]interface{})
	}
	o.propagator.Inject(ctx, headerCarrier(inv.Headers))
	return nil
}

// Name implements NamedObserver
func (o *TracingObserver) Name() string {
	return "TracingObserver"
}

// headerCarrier adapts invocation headers to propagation.TextMapCarrier
type headerCarrier map[string]interface{}

func (c headerCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (c headerCarrier) Set(key, value string) {
	c[key] = value
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
