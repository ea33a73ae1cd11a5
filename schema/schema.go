package schema

import (
	"fmt"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// Schema describes the expected JSON shape of a value
type Schema struct {
	Type       string             `json:"type,omitempty" yaml:"type"` // string, number, integer, boolean, array or object
	Format     string             `json:"format,omitempty" yaml:"format"`
	Pattern    string             `json:"pattern,omitempty" yaml:"pattern"`
	MinLength  *int               `json:"minLength,omitempty" yaml:"min_length"`
	MaxLength  *int               `json:"maxLength,omitempty" yaml:"max_length"`
	Minimum    *float64           `json:"minimum,omitempty" yaml:"minimum"`
	Maximum    *float64           `json:"maximum,omitempty" yaml:"maximum"`
	Enum       []interface{}      `json:"enum,omitempty" yaml:"enum"`
	Items      *Schema            `json:"items,omitempty" yaml:"items"`
	Properties map[string]*Schema `json:"properties,omitempty" yaml:"properties"`
	Required   []string           `json:"required,omitempty" yaml:"required"`
}

// Int returns a pointer to n
func Int(n int) *int { return &n }

// Float returns a pointer to f
func Float(f float64) *float64 { return &f }

// ParseJSON decodes a schema from JSON
func ParseJSON(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := sonic.ConfigStd.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return s, nil
}

// ParseYAML decodes a schema from YAML
func ParseYAML(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return s, nil
}

// walk visits s and every nested schema
func (s *Schema) walk(fn func(*Schema) error) error {
	if s == nil {
		return nil
	}
	if err := fn(s); err != nil {
		return err
	}
	if err := s.Items.walk(fn); err != nil {
		return err
	}
	for _, p := range s.Properties {
		if err := p.walk(fn); err != nil {
			return err
		}
	}
	return nil
}
