package resolver

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source looks up property values by key
type Source interface {
	Lookup(key string) (string, bool)
}

// MapSource is a Source backed by a map
type MapSource map[string]string

// Lookup implements Source
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// EnvSource looks properties up in the environment.
// A key is tried as is, then upper-cased with dots and dashes turned into underscores, so
// "orders.exchange" also matches ORDERS_EXCHANGE. A non-empty prefix is prepended to the
// upper-cased form.
type EnvSource string

// Lookup implements Source
func (prefix EnvSource) Lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	return os.LookupEnv(string(prefix) + envName(key))
}

func envName(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// LoadYAMLSource reads a YAML file into a Source of dotted keys
func LoadYAMLSource(path string) (MapSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties file: %w", err)
	}
	return ParseYAMLSource(data)
}

// ParseYAMLSource flattens a YAML document into dotted keys: nested mappings join with '.',
// sequence items are addressed as key[i]
func ParseYAMLSource(data []byte) (MapSource, error) {
	var root interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse properties: %w", err)
	}

	props := make(MapSource)
	Flatten("", root, props)
	return props, nil
}

// Flatten writes value into props under dotted keys rooted at prefix
func Flatten(prefix string, value interface{}, props map[string]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		for k, child := range v {
			Flatten(join(prefix, k), child, props)
		}
	case map[interface{}]interface{}:
		for k, child := range v {
			Flatten(join(prefix, fmt.Sprint(k)), child, props)
		}
	case []interface{}:
		for i, child := range v {
			Flatten(prefix+"["+strconv.Itoa(i)+"]", child, props)
		}
	case nil:
		if prefix != "" {
			props[prefix] = ""
		}
	default:
		if prefix != "" {
			props[prefix] = fmt.Sprint(v)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
