// Package config loads producer client definitions and broker settings from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/mmate-producers/ids"
	"github.com/glimte/mmate-producers/internal/rabbitmq"
	"github.com/glimte/mmate-producers/producer"
	"github.com/glimte/mmate-producers/resolver"
	"github.com/glimte/mmate-producers/schema"
	transport "github.com/glimte/mmate-producers/transports/rabbitmq"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the file-level configuration
type Config struct {
	RabbitMQ   RabbitMQConfig         `yaml:"rabbitmq"`
	MessageIDs IDConfig               `yaml:"message_ids"`
	Properties map[string]interface{} `yaml:"properties"` // nested maps are flattened into dotted keys
	Clients    []ClientConfig         `yaml:"clients"`
}

// IDConfig selects how message ids are generated
type IDConfig struct {
	Kind   string `yaml:"kind"` // uuid or ulid
	Prefix string `yaml:"prefix"`
}

// RabbitMQConfig holds broker connection settings
type RabbitMQConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxReconnects  int           `yaml:"max_reconnects"` // 0 retries forever
	ReplyTimeout   time.Duration `yaml:"reply_timeout"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	PublishRetries int           `yaml:"publish_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	Mandatory      bool          `yaml:"mandatory"`
	ChannelPool    PoolConfig    `yaml:"channel_pool"`
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
}

// BreakerConfig holds circuit breaker settings; a zero failure threshold disables the breaker
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// PoolConfig holds channel pool settings
type PoolConfig struct {
	MaxSize     int           `yaml:"max_size"`
	MinSize     int           `yaml:"min_size"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// ClientConfig declares one producer client
type ClientConfig struct {
	Name    string         `yaml:"name"`
	Methods []MethodConfig `yaml:"methods"`
}

// MethodConfig declares one client method and its producer settings
type MethodConfig struct {
	Name             string         `yaml:"name"`
	Destination      string         `yaml:"destination"`
	ReturnExceptions string         `yaml:"return_exceptions"`
	Template         string         `yaml:"template"`
	Converter        string         `yaml:"converter"`
	Headers          []string       `yaml:"headers"`
	Params           []ParamConfig  `yaml:"params"`
	Returns          string         `yaml:"returns"` // void, message, generic or value
	Schema           *schema.Schema `yaml:"schema"`  // optional body schema
}

// ParamConfig declares one method parameter
type ParamConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"` // body, header or headers
	Header string `yaml:"header"`
}

// Validate checks the configuration for structural errors
func (c *Config) Validate() error {
	if c.RabbitMQ.ChannelPool.MinSize > c.RabbitMQ.ChannelPool.MaxSize {
		return fmt.Errorf("%w: channel_pool.min_size %d exceeds max_size %d",
			ErrInvalidConfig, c.RabbitMQ.ChannelPool.MinSize, c.RabbitMQ.ChannelPool.MaxSize)
	}
	if _, err := c.MessageIDs.Generator(); err != nil {
		return err
	}
	if c.RabbitMQ.CircuitBreaker.FailureThreshold < 0 {
		return fmt.Errorf("%w: circuit_breaker.failure_threshold must not be negative", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Clients))
	for i, client := range c.Clients {
		if client.Name == "" {
			return fmt.Errorf("%w: clients[%d] has no name", ErrInvalidConfig, i)
		}
		if seen[client.Name] {
			return fmt.Errorf("%w: duplicate client %q", ErrInvalidConfig, client.Name)
		}
		seen[client.Name] = true

		methods := make(map[string]bool, len(client.Methods))
		for j, m := range client.Methods {
			if m.Name == "" {
				return fmt.Errorf("%w: %s.methods[%d] has no name", ErrInvalidConfig, client.Name, j)
			}
			if methods[m.Name] {
				return fmt.Errorf("%w: duplicate method %s.%s", ErrInvalidConfig, client.Name, m.Name)
			}
			methods[m.Name] = true

			if _, err := returnsOf(m.Returns); err != nil {
				return fmt.Errorf("%w: %s.%s: %v", ErrInvalidConfig, client.Name, m.Name, err)
			}
			for _, p := range m.Params {
				if _, err := paramKindOf(p.Kind); err != nil {
					return fmt.Errorf("%w: %s.%s param %q: %v", ErrInvalidConfig, client.Name, m.Name, p.Name, err)
				}
			}
		}
	}
	if _, err := c.Validator(); err != nil {
		return err
	}
	return nil
}

// Interfaces converts the client definitions into producer declarations
func (c *Config) Interfaces() ([]producer.Interface, error) {
	ifaces := make([]producer.Interface, 0, len(c.Clients))

	for _, client := range c.Clients {
		iface := producer.Interface{Name: client.Name}

		for _, m := range client.Methods {
			returns, err := returnsOf(m.Returns)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidConfig, client.Name, m.Name, err)
			}

			method := producer.Method{
				Name:    m.Name,
				Returns: returns,
				Producer: &producer.Producer{
					Destination:      m.Destination,
					ReturnExceptions: m.ReturnExceptions,
					Template:         m.Template,
					Converter:        m.Converter,
					Headers:          append([]string(nil), m.Headers...),
				},
			}
			for _, p := range m.Params {
				kind, err := paramKindOf(p.Kind)
				if err != nil {
					return nil, fmt.Errorf("%w: %s.%s param %q: %v", ErrInvalidConfig, client.Name, m.Name, p.Name, err)
				}
				method.Params = append(method.Params, producer.Param{Name: p.Name, Kind: kind, Header: p.Header})
			}

			iface.Methods = append(iface.Methods, method)
		}

		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

// Validator collects the method body schemas; it returns nil when no method declares one
func (c *Config) Validator() (*schema.Validator, error) {
	var v *schema.Validator
	for _, client := range c.Clients {
		for _, m := range client.Methods {
			if m.Schema == nil {
				continue
			}
			if v == nil {
				v = schema.NewValidator()
			}
			id := producer.MethodID{Interface: client.Name, Name: m.Name}
			if err := v.Register(id.String(), m.Schema); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		}
	}
	return v, nil
}

// PropertySource returns the properties as a flat placeholder source
func (c *Config) PropertySource() resolver.MapSource {
	props := make(map[string]string)
	for k, v := range c.Properties {
		resolver.Flatten(k, v, props)
	}
	return resolver.MapSource(props)
}

// Resolver returns a resolver over the properties, falling back to environment variables
func (c *Config) Resolver() *resolver.Resolver {
	return resolver.New(
		resolver.WithSource(c.PropertySource()),
		resolver.WithSource(resolver.EnvSource("")),
	)
}

// TemplateOptions maps the broker settings onto transport options
func (r RabbitMQConfig) TemplateOptions(logger *slog.Logger) []transport.TemplateOption {
	maxRetries := r.MaxReconnects
	if maxRetries <= 0 {
		maxRetries = -1
	}

	opts := []transport.TemplateOption{
		transport.WithConnectionOptions(
			rabbitmq.WithConnectTimeout(r.ConnectTimeout),
			rabbitmq.WithReconnectDelay(r.ReconnectDelay),
			rabbitmq.WithMaxRetries(maxRetries),
		),
		transport.WithPoolOptions(
			rabbitmq.WithMaxSize(r.ChannelPool.MaxSize),
			rabbitmq.WithMinSize(r.ChannelPool.MinSize),
			rabbitmq.WithIdleTimeout(r.ChannelPool.IdleTimeout),
		),
		transport.WithPublisherOptions(
			rabbitmq.WithConfirmTimeout(r.ConfirmTimeout),
			rabbitmq.WithPublishRetries(r.PublishRetries, r.RetryDelay),
		),
		transport.WithReplyTimeout(r.ReplyTimeout),
		transport.WithMandatory(r.Mandatory),
	}
	if logger != nil {
		opts = append(opts, transport.WithLogger(logger))
	}
	return opts
}

// Generator returns the configured id generator
func (c IDConfig) Generator() (producer.IDGenerator, error) {
	var gen func() string
	switch c.Kind {
	case "", "uuid":
		gen = ids.UUID
	case "ulid":
		gen = ids.ULID
	default:
		return nil, fmt.Errorf("%w: unknown message id kind %q", ErrInvalidConfig, c.Kind)
	}

	if c.Prefix != "" {
		gen = ids.Prefixed(c.Prefix, gen)
	}
	return producer.IDGenerator(gen), nil
}

// Build creates the breaker, or returns nil when it is disabled
func (b BreakerConfig) Build(logger *slog.Logger) *rabbitmq.CircuitBreaker {
	if b.FailureThreshold <= 0 {
		return nil
	}

	opts := []rabbitmq.BreakerOption{rabbitmq.WithFailureThreshold(b.FailureThreshold)}
	if b.SuccessThreshold > 0 {
		opts = append(opts, rabbitmq.WithSuccessThreshold(b.SuccessThreshold))
	}
	if b.OpenTimeout > 0 {
		opts = append(opts, rabbitmq.WithOpenTimeout(b.OpenTimeout))
	}
	if logger != nil {
		opts = append(opts, rabbitmq.WithBreakerLogger(logger))
	}
	return rabbitmq.NewCircuitBreaker("rabbitmq", opts...)
}

func returnsOf(kind string) (producer.Returns, error) {
	switch kind {
	case "", "void":
		return producer.Void(), nil
	case "message":
		return producer.RawMessage(), nil
	case "generic":
		return producer.Returns{Kind: producer.ReturnGeneric}, nil
	case "value":
		return producer.Returns{Kind: producer.ReturnValue}, nil
	default:
		return producer.Returns{}, fmt.Errorf("unknown return kind %q", kind)
	}
}

func paramKindOf(kind string) (producer.ParamKind, error) {
	switch kind {
	case "", "body":
		return producer.ParamBody, nil
	case "header":
		return producer.ParamHeader, nil
	case "headers":
		return producer.ParamHeaders, nil
	default:
		return 0, fmt.Errorf("unknown parameter kind %q", kind)
	}
}
