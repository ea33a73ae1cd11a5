package producer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Components holds the messaging clients and converters endpoints can select by name
type Components struct {
	mu               sync.RWMutex
	clients          map[string]MessagingClient
	converters       map[string]MessageConverter
	defaultClient    MessagingClient
	defaultConverter MessageConverter
}

// NewComponents creates an empty component set
func NewComponents() *Components {
	return &Components{
		clients:    make(map[string]MessagingClient),
		converters: make(map[string]MessageConverter),
	}
}

// RegisterClient registers a named messaging client
func (c *Components) RegisterClient(name string, client MessagingClient) *Components {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[name] = client
	return c
}

// RegisterConverter registers a named message converter
func (c *Components) RegisterConverter(name string, converter MessageConverter) *Components {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.converters[name] = converter
	return c
}

// SetDefaultClient sets the client used when an endpoint names none
func (c *Components) SetDefaultClient(client MessagingClient) *Components {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultClient = client
	return c
}

// SetDefaultConverter sets the converter used when an endpoint names none
func (c *Components) SetDefaultConverter(converter MessageConverter) *Components {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultConverter = converter
	return c
}

// Client returns the named client, or the default one for a blank name.
// Without an explicit default, a single registered client is the default.
func (c *Components) Client(name string) (MessagingClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if strings.TrimSpace(name) != "" {
		client, ok := c.clients[name]
		if !ok {
			return nil, fmt.Errorf("%w: messaging client %q (registered: %s)", ErrUnknownComponent, name, strings.Join(sortedKeys(c.clients), ", "))
		}
		return client, nil
	}

	if c.defaultClient != nil {
		return c.defaultClient, nil
	}
	if len(c.clients) == 1 {
		for _, client := range c.clients {
			return client, nil
		}
	}
	return nil, fmt.Errorf("%w: messaging client (%d registered)", ErrNoDefaultComponent, len(c.clients))
}

// Converter returns the named converter, or the default one for a blank name.
// Without an explicit default, a single registered converter is the default.
func (c *Components) Converter(name string) (MessageConverter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if strings.TrimSpace(name) != "" {
		converter, ok := c.converters[name]
		if !ok {
			return nil, fmt.Errorf("%w: message converter %q (registered: %s)", ErrUnknownComponent, name, strings.Join(sortedKeys(c.converters), ", "))
		}
		return converter, nil
	}

	if c.defaultConverter != nil {
		return c.defaultConverter, nil
	}
	if len(c.converters) == 1 {
		for _, converter := range c.converters {
			return converter, nil
		}
	}
	return nil, fmt.Errorf("%w: message converter (%d registered)", ErrNoDefaultComponent, len(c.converters))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
