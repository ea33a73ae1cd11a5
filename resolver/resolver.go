package resolver

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Resolver resolves ${...} property placeholders and #{...} expressions. It is safe for concurrent use.
type Resolver struct {
	sources            []Source
	variables          map[string]interface{}
	ignoreUnresolvable bool

	env      map[string]interface{}
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// Option configures the Resolver
type Option func(*Resolver)

// WithSource appends a property source; earlier sources win
func WithSource(source Source) Option {
	return func(r *Resolver) {
		r.sources = append(r.sources, source)
	}
}

// WithProperties appends a map of properties as a source
func WithProperties(props map[string]string) Option {
	return WithSource(MapSource(props))
}

// WithVariables makes values available to expressions by name
func WithVariables(vars map[string]interface{}) Option {
	return func(r *Resolver) {
		for k, v := range vars {
			r.variables[k] = v
		}
	}
}

// WithIgnoreUnresolvable leaves unresolvable placeholders in place instead of failing
func WithIgnoreUnresolvable() Option {
	return func(r *Resolver) {
		r.ignoreUnresolvable = true
	}
}

// New creates a resolver
func New(opts ...Option) *Resolver {
	r := &Resolver{
		variables: make(map[string]interface{}),
		programs:  make(map[string]*vm.Program),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.env = map[string]interface{}{
		"prop": func(key string) string {
			v, _ := r.Lookup(key)
			return v
		},
		"env": os.Getenv,
	}
	for k, v := range r.variables {
		r.env[k] = v
	}

	return r
}

// Lookup returns the raw value of a property from the first source that has it
func (r *Resolver) Lookup(key string) (string, bool) {
	for _, source := range r.sources {
		if v, ok := source.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Resolve replaces placeholders, then evaluates expressions
func (r *Resolver) Resolve(raw string) (string, error) {
	resolved, err := r.resolvePlaceholders(raw, make(map[string]bool))
	if err != nil {
		return "", err
	}
	return r.evaluate(resolved)
}

func (r *Resolver) resolvePlaceholders(s string, visiting map[string]bool) (string, error) {
	var b strings.Builder

	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}

		end := closingBrace(s, start+2, false)
		if end < 0 {
			return "", fmt.Errorf("%w: %q", ErrUnterminated, s[start:])
		}

		b.WriteString(s[:start])
		value, err := r.resolvePlaceholder(s[start+2:end], visiting)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		s = s[end+1:]
	}
}

func (r *Resolver) resolvePlaceholder(inner string, visiting map[string]bool) (string, error) {
	rawKey, rawDefault, hasDefault := splitDefault(inner)

	key, err := r.resolvePlaceholders(rawKey, visiting)
	if err != nil {
		return "", err
	}

	if value, ok := r.Lookup(key); ok {
		if visiting[key] {
			return "", fmt.Errorf("%w: %q", ErrCircularPlaceholder, key)
		}
		visiting[key] = true
		defer delete(visiting, key)
		return r.resolvePlaceholders(value, visiting)
	}

	if hasDefault {
		return r.resolvePlaceholders(rawDefault, visiting)
	}
	if r.ignoreUnresolvable {
		return "${" + inner + "}", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvablePlaceholder, key)
}

// splitDefault splits "key:default" at the first colon outside nested placeholders
func splitDefault(inner string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ':':
			if depth == 0 {
				return inner[:i], inner[i+1:], true
			}
		}
	}
	return inner, "", false
}

func (r *Resolver) evaluate(s string) (string, error) {
	var b strings.Builder

	for {
		start := strings.Index(s, "#{")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}

		end := closingBrace(s, start+2, true)
		if end < 0 {
			return "", fmt.Errorf("%w: %q", ErrUnterminated, s[start:])
		}

		b.WriteString(s[:start])
		value, err := r.eval(strings.TrimSpace(s[start+2 : end]))
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		s = s[end+1:]
	}
}

func (r *Resolver) eval(code string) (string, error) {
	program, err := r.program(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrExpression, code, err)
	}

	result, err := expr.Run(program, r.env)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrExpression, code, err)
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

func (r *Resolver) program(code string) (*vm.Program, error) {
	r.mu.RLock()
	program, ok := r.programs[code]
	r.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(code, expr.Env(r.env))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.programs[code] = program
	r.mu.Unlock()
	return program, nil
}

// closingBrace returns the index of the brace closing the one opened just before from, or -1.
// With quoted set, braces inside string literals are skipped.
func closingBrace(s string, from int, quoted bool) int {
	depth := 1
	var quote byte

	for i := from; i < len(s); i++ {
		c := s[i]

		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'', '`':
			if quoted {
				quote = c
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
