// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package producers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/mmate-producers/config"
	"github.com/glimte/mmate-producers/converter"
	"github.com/glimte/mmate-producers/health"
	"github.com/glimte/mmate-producers/interceptors"
	"github.com/glimte/mmate-producers/metrics"
	"github.com/glimte/mmate-producers/producer"
	"github.com/glimte/mmate-producers/resolver"
	transport "github.com/glimte/mmate-producers/transports/rabbitmq"
)

// Converter names registered by every client
const (
	ConverterJSON     = "json"
	ConverterSimple   = "simple"
	ConverterProtobuf = "protobuf"
)

// TemplateName is the name the RabbitMQ template is registered under
const TemplateName = "rabbitmq"

// Client provides the main entry point: a RabbitMQ connection plus a factory that builds
// producer clients sending through it
type Client struct {
	template *transport.Template
	factory  *producer.Factory
	registry *producer.Registry
	health   *health.Registry
	logger   *slog.Logger
}

// NewClient connects to RabbitMQ with the default options
func NewClient(connectionString string) (*Client, error) {
	return NewClientWithOptions(connectionString, WithDefaultLogger())
}

// NewClientWithOptions connects to RabbitMQ and prepares a producer factory
func NewClientWithOptions(connectionString string, options ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger:           slog.Default(),
		properties:       make(map[string]string),
		converters:       make(map[string]producer.MessageConverter),
		pendingThreshold: 500,
	}

	for _, opt := range options {
		opt(cfg)
	}

	breaker := cfg.breaker.Build(cfg.logger)
	transportOpts := append([]transport.TemplateOption{transport.WithLogger(cfg.logger)}, cfg.transportOpts...)
	if breaker != nil {
		transportOpts = append(transportOpts, transport.WithCircuitBreaker(breaker))
	}
	template, err := transport.NewTemplate(connectionString, transportOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	jsonConverter := converter.NewJSONConverter()
	components := producer.NewComponents().
		RegisterClient(TemplateName, template).
		SetDefaultClient(template).
		RegisterConverter(ConverterJSON, jsonConverter).
		RegisterConverter(ConverterSimple, converter.NewSimpleConverter()).
		RegisterConverter(ConverterProtobuf, converter.NewProtoConverter()).
		SetDefaultConverter(jsonConverter)
	for name, c := range cfg.converters {
		components.RegisterConverter(name, c)
	}
	if cfg.defaultConverter != nil {
		components.SetDefaultConverter(cfg.defaultConverter)
	}

	res := cfg.resolver
	if res == nil {
		res = resolver.New(
			resolver.WithProperties(cfg.properties),
			resolver.WithSource(resolver.EnvSource("")),
		)
	}

	factoryOpts := []producer.FactoryOption{
		producer.WithComponents(components),
		producer.WithResolver(res),
		producer.WithLogger(cfg.logger),
	}
	if len(cfg.observers) > 0 {
		chain := interceptors.NewChain(cfg.logger)
		for _, o := range cfg.observers {
			chain.Add(o)
		}
		factoryOpts = append(factoryOpts, producer.WithObserver(chain))
	}
	if cfg.metrics != nil {
		template.Manager().AddStateListener(cfg.metrics)
		cfg.metrics.OnConnected()
		if breaker != nil {
			breaker.AddListener(cfg.metrics)
		}
		factoryOpts = append(factoryOpts, producer.WithMetrics(cfg.metrics))
	}
	if cfg.idGenerator != nil {
		factoryOpts = append(factoryOpts, producer.WithIDGenerator(cfg.idGenerator))
	}

	factory := producer.NewFactory(factoryOpts...)

	checks := health.NewRegistry(
		health.NewRabbitMQChecker(template.Manager()),
		health.NewChannelPoolChecker(template.Pool()),
		health.NewPendingRequestsChecker(template.Requester(), cfg.pendingThreshold),
	)
	if breaker != nil {
		checks.Register(health.NewCircuitBreakerChecker(breaker))
	}

	return &Client{
		template: template,
		factory:  factory,
		registry: producer.NewRegistry(factory),
		health:   checks,
		logger:   cfg.logger,
	}, nil
}

// NewClientFromConfig connects with the broker settings of cfg, resolves placeholders against its
// properties and registers every client it declares. Unset settings of cfg are filled with defaults.
func NewClientFromConfig(cfg *config.Config, options ...ClientOption) (*Client, error) {
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ifaces, err := cfg.Interfaces()
	if err != nil {
		return nil, err
	}

	validator, err := cfg.Validator()
	if err != nil {
		return nil, err
	}
	idGen, err := cfg.MessageIDs.Generator()
	if err != nil {
		return nil, err
	}

	opts := []ClientOption{
		WithTransportOptions(cfg.RabbitMQ.TemplateOptions(nil)...),
		WithResolver(cfg.Resolver()),
		WithCircuitBreaker(cfg.RabbitMQ.CircuitBreaker),
		WithIDGenerator(idGen),
	}
	if validator != nil {
		opts = append(opts, WithObserver(interceptors.NewValidationObserver(validator)))
	}

	client, err := NewClientWithOptions(cfg.RabbitMQ.URL, append(opts, options...)...)
	if err != nil {
		return nil, err
	}

	if err := client.Register(ifaces...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to register clients: %w", err)
	}
	return client, nil
}

// Build compiles a producer client without registering it
func (c *Client) Build(iface producer.Interface) (*producer.Stub, error) {
	return c.factory.Build(iface)
}

// Register compiles and registers producer clients by name
func (c *Client) Register(ifaces ...producer.Interface) error {
	return c.registry.Register(ifaces...)
}

// Producer returns a registered producer client
func (c *Client) Producer(name string) (*producer.Stub, bool) {
	return c.registry.Get(name)
}

// Producers returns the names of the registered producer clients
func (c *Client) Producers() []string {
	return c.registry.Names()
}

// Factory returns the producer factory
func (c *Client) Factory() *producer.Factory {
	return c.factory
}

// Template returns the RabbitMQ messaging client
func (c *Client) Template() *transport.Template {
	return c.template
}

// Health runs the connection, channel pool and reply backlog checks
func (c *Client) Health(ctx context.Context) health.OverallHealth {
	return c.health.Check(ctx)
}

// HealthHandler serves Health as a JSON endpoint
func (c *Client) HealthHandler(timeout time.Duration) *health.Handler {
	return health.NewHandler(c.health, timeout)
}

// Close closes the connection; built producers fail afterwards
func (c *Client) Close() error {
	c.logger.Info("closing producer client")
	return c.template.Close()
}

type clientConfig struct {
	logger           *slog.Logger
	resolver         producer.Resolver
	properties       map[string]string
	converters       map[string]producer.MessageConverter
	defaultConverter producer.MessageConverter
	observers        []producer.InvocationObserver
	metrics          *metrics.Collector
	breaker          config.BreakerConfig
	idGenerator      producer.IDGenerator
	transportOpts    []transport.TemplateOption
	pendingThreshold int
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithDefaultLogger uses the default logger
func WithDefaultLogger() ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = slog.Default()
	}
}

// WithResolver replaces the placeholder resolver; WithProperties is ignored when set
func WithResolver(r producer.Resolver) ClientOption {
	return func(cfg *clientConfig) {
		cfg.resolver = r
	}
}

// WithProperties adds properties available to ${...} placeholders
func WithProperties(props map[string]string) ClientOption {
	return func(cfg *clientConfig) {
		for k, v := range props {
			cfg.properties[k] = v
		}
	}
}

// WithConverter registers a named message converter
func WithConverter(name string, c producer.MessageConverter) ClientOption {
	return func(cfg *clientConfig) {
		cfg.converters[name] = c
	}
}

// WithDefaultConverter replaces the JSON converter as the default
func WithDefaultConverter(c producer.MessageConverter) ClientOption {
	return func(cfg *clientConfig) {
		cfg.defaultConverter = c
	}
}

// WithObserver appends an invocation observer; observers run in the order added
func WithObserver(o producer.InvocationObserver) ClientOption {
	return func(cfg *clientConfig) {
		cfg.observers = append(cfg.observers, o)
	}
}

// WithMetrics records dispatch and connection metrics
func WithMetrics(collector *metrics.Collector) ClientOption {
	return func(cfg *clientConfig) {
		cfg.metrics = collector
	}
}

// WithCircuitBreaker stops sending while the broker keeps failing and adds a health check for it.
// A zero failure threshold disables the breaker.
func WithCircuitBreaker(settings config.BreakerConfig) ClientOption {
	return func(cfg *clientConfig) {
		cfg.breaker = settings
	}
}

// WithIDGenerator sets the message id generator
func WithIDGenerator(gen producer.IDGenerator) ClientOption {
	return func(cfg *clientConfig) {
		cfg.idGenerator = gen
	}
}

// WithTransportOptions passes options to the RabbitMQ template
func WithTransportOptions(opts ...transport.TemplateOption) ClientOption {
	return func(cfg *clientConfig) {
		cfg.transportOpts = append(cfg.transportOpts, opts...)
	}
}

// WithReplyTimeout sets how long request-reply methods wait before returning no reply
func WithReplyTimeout(timeout time.Duration) ClientOption {
	return WithTransportOptions(transport.WithReplyTimeout(timeout))
}

// WithPendingThreshold sets the reply backlog above which Health reports degraded
func WithPendingThreshold(n int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.pendingThreshold = n
	}
}
