package interceptors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glimte/mmate-producers/producer"
)

// NamedObserver is an observer that reports a name for logs and errors
type NamedObserver interface {
	producer.InvocationObserver
	Name() string
}

// ObserverFunc is a named function adapter for producer.InvocationObserver
type ObserverFunc struct {
	name string
	fn   producer.ObserverFunc
}

// NewObserverFunc creates a new function-based observer
func NewObserverFunc(name string, fn producer.ObserverFunc) *ObserverFunc {
	return &ObserverFunc{name: name, fn: fn}
}

// Process implements producer.InvocationObserver
func (o *ObserverFunc) Process(ctx context.Context, target interface{}, method producer.MethodID, inv *producer.Invocation) error {
	return o.fn(ctx, target, method, inv)
}

// Name implements NamedObserver
func (o *ObserverFunc) Name() string {
	return o.name
}

// Chain runs several observers in order as one
type Chain struct {
	observers []producer.InvocationObserver
	logger    *slog.Logger
}

// NewChain creates an empty chain
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}

	return &Chain{logger: logger}
}

// Add appends an observer to the chain
func (c *Chain) Add(observer producer.InvocationObserver) *Chain {
	c.observers = append(c.observers, observer)
	return c
}

// Len returns the number of observers in the chain
func (c *Chain) Len() int {
	return len(c.observers)
}

// Process implements producer.InvocationObserver; the first failing observer stops the chain
func (c *Chain) Process(ctx context.Context, target interface{}, method producer.MethodID, inv *producer.Invocation) error {
	for _, o := range c.observers {
		if err := o.Process(ctx, target, method, inv); err != nil {
			c.logger.Debug("observer rejected invocation",
				"observer", nameOf(o),
				"method", method.String(),
				"error", err)
			return fmt.Errorf("%s: %w", nameOf(o), err)
		}
	}
	return nil
}

// Name implements NamedObserver
func (c *Chain) Name() string {
	return "Chain"
}

func nameOf(o producer.InvocationObserver) string {
	if named, ok := o.(NamedObserver); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", o)
}

// LoggingObserver logs every invocation
type LoggingObserver struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLoggingObserver creates an observer logging at debug level
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingObserver{logger: logger, level: slog.LevelDebug}
}

// WithLevel sets the level invocations are logged at
func (o *LoggingObserver) WithLevel(level slog.Level) *LoggingObserver {
	o.level = level
	return o
}

// Process implements producer.InvocationObserver
func (o *LoggingObserver) Process(ctx context.Context, target interface{}, method producer.MethodID, inv *producer.Invocation) error {
	o.logger.Log(ctx, o.level, "invoking producer method",
		"method", method.String(),
		"args", len(inv.Args),
		"headers", len(inv.Headers),
		"hasBody", inv.HasBody,
	)
	return nil
}

// Name implements NamedObserver
func (o *LoggingObserver) Name() string {
	return "LoggingObserver"
}

// InvocationValidator checks an invocation before it is sent
type InvocationValidator interface {
	Validate(ctx context.Context, method producer.MethodID, inv *producer.Invocation) error
}

// ValidatorFunc is a function adapter for InvocationValidator
type ValidatorFunc func(ctx context.Context, method producer.MethodID, inv *producer.Invocation) error

// Validate implements InvocationValidator
func (f ValidatorFunc) Validate(ctx context.Context, method producer.MethodID, inv *producer.Invocation) error {
	return f(ctx, method, inv)
}

// ValidationObserver rejects invocations the validator refuses
type ValidationObserver struct {
	validator InvocationValidator
}

// NewValidationObserver creates a new validation observer
func NewValidationObserver(validator InvocationValidator) *ValidationObserver {
	return &ValidationObserver{validator: validator}
}

// Process implements producer.InvocationObserver
func (o *ValidationObserver) Process(ctx context.Context, target interface{}, method producer.MethodID, inv *producer.Invocation) error {
	if err := o.validator.Validate(ctx, method, inv); err != nil {
		return fmt.Errorf("invocation validation failed: %w", err)
	}
	return nil
}

// Name implements NamedObserver
func (o *ValidationObserver) Name() string {
	return "ValidationObserver"
}

// RequireHeaders returns a validator that fails when any of the named headers is missing
func RequireHeaders(names ...string) InvocationValidator {
	return ValidatorFunc(func(ctx context.Context, method producer.MethodID, inv *producer.Invocation) error {
		for _, name := range names {
			if _, ok := inv.Headers[name]; !ok {
				return fmt.Errorf("%w: %s", ErrMissingHeader, name)
			}
		}
		return nil
	})
}
