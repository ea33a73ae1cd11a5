package schema

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/glimte/mmate-producers/producer"
	"github.com/google/uuid"
)

// ErrValidation is wrapped by every *ValidationError
var ErrValidation = errors.New("schema: body does not match schema")

// Violation codes
const (
	CodeRequired   = "REQUIRED"
	CodeType       = "TYPE_MISMATCH"
	CodeMinLength  = "MIN_LENGTH"
	CodeMaxLength  = "MAX_LENGTH"
	CodeMinimum    = "MINIMUM"
	CodeMaximum    = "MAXIMUM"
	CodeEnum       = "ENUM"
	CodePattern    = "PATTERN"
	CodeFormat     = "FORMAT"
	CodeConversion = "CONVERSION"
)

// FieldError is one violation; Field is a JSON path rooted at "$"
type FieldError struct {
	Field   string      `json:"field"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError lists every violation found in one body
type ValidationError struct {
	Method string
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("schema: %s body is invalid: %s", e.Method, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validator checks invocation bodies against the schema registered for their method
type Validator struct {
	mu       sync.RWMutex
	schemas  map[string]*Schema
	patterns map[string]*regexp.Regexp
}

// NewValidator creates an empty validator
func NewValidator() *Validator {
	return &Validator{
		schemas:  make(map[string]*Schema),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Register sets the schema of a method named "Interface.Method", replacing any previous one
func (v *Validator) Register(method string, s *Schema) error {
	if s == nil {
		return fmt.Errorf("schema for %s is nil", method)
	}

	compiled := make(map[string]*regexp.Regexp)
	err := s.walk(func(n *Schema) error {
		if n.Pattern == "" {
			return nil
		}
		re, err := regexp.Compile(n.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q for %s: %w", n.Pattern, method, err)
		}
		compiled[n.Pattern] = re
		return nil
	})
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[method] = s
	for p, re := range compiled {
		v.patterns[p] = re
	}
	return nil
}

// Methods returns the methods that have a schema
func (v *Validator) Methods() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate implements interceptors.InvocationValidator
func (v *Validator) Validate(ctx context.Context, method producer.MethodID, inv *producer.Invocation) error {
	v.mu.RLock()
	s, ok := v.schemas[method.String()]
	v.mu.RUnlock()
	if !ok {
		return nil
	}

	var errs []FieldError
	if inv.Body == nil {
		errs = append(errs, FieldError{Field: "$", Code: CodeRequired, Message: "body is required"})
	} else if value, err := normalize(inv.Body); err != nil {
		errs = append(errs, FieldError{Field: "$", Code: CodeConversion, Message: err.Error()})
	} else {
		errs = v.Check(s, value)
	}

	if len(errs) > 0 {
		return &ValidationError{Method: method.String(), Errors: errs}
	}
	return nil
}

// Check validates a decoded JSON value against s
func (v *Validator) Check(s *Schema, value interface{}) []FieldError {
	var errs []FieldError
	v.check("$", s, value, &errs)
	return errs
}

func (v *Validator) check(path string, s *Schema, value interface{}, errs *[]FieldError) {
	if value == nil {
		return
	}

	if s.Type != "" && !matchesType(value, s.Type) {
		*errs = append(*errs, FieldError{
			Field:   path,
			Code:    CodeType,
			Message: fmt.Sprintf("expected %s, got %s", s.Type, jsonType(value)),
			Value:   value,
		})
		return
	}

	switch val := value.(type) {
	case string:
		v.checkString(path, s, val, errs)
	case float64:
		checkNumber(path, s, val, errs)
	case []interface{}:
		if s.Items != nil {
			for i, item := range val {
				v.check(fmt.Sprintf("%s[%d]", path, i), s.Items, item, errs)
			}
		}
	case map[string]interface{}:
		for _, name := range s.Required {
			if _, ok := val[name]; !ok {
				*errs = append(*errs, FieldError{Field: path + "." + name, Code: CodeRequired, Message: "required field is missing"})
			}
		}
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if prop, ok := s.Properties[name]; ok {
				v.check(path+"."+name, prop, val[name], errs)
			}
		}
	}

	if len(s.Enum) > 0 && !inEnum(value, s.Enum) {
		*errs = append(*errs, FieldError{
			Field:   path,
			Code:    CodeEnum,
			Message: fmt.Sprintf("value is not one of %v", s.Enum),
			Value:   value,
		})
	}
}

func (v *Validator) checkString(path string, s *Schema, val string, errs *[]FieldError) {
	n := utf8.RuneCountInString(val)
	if s.MinLength != nil && n < *s.MinLength {
		*errs = append(*errs, FieldError{Field: path, Code: CodeMinLength,
			Message: fmt.Sprintf("length %d is less than %d", n, *s.MinLength), Value: val})
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		*errs = append(*errs, FieldError{Field: path, Code: CodeMaxLength,
			Message: fmt.Sprintf("length %d exceeds %d", n, *s.MaxLength), Value: val})
	}

	if s.Pattern != "" {
		v.mu.RLock()
		re := v.patterns[s.Pattern]
		v.mu.RUnlock()
		if re != nil && !re.MatchString(val) {
			*errs = append(*errs, FieldError{Field: path, Code: CodePattern,
				Message: fmt.Sprintf("does not match %q", s.Pattern), Value: val})
		}
	}

	if s.Format != "" {
		if err := checkFormat(s.Format, val); err != nil {
			*errs = append(*errs, FieldError{Field: path, Code: CodeFormat, Message: err.Error(), Value: val})
		}
	}
}

func checkNumber(path string, s *Schema, val float64, errs *[]FieldError) {
	if s.Minimum != nil && val < *s.Minimum {
		*errs = append(*errs, FieldError{Field: path, Code: CodeMinimum,
			Message: fmt.Sprintf("%v is less than %v", val, *s.Minimum), Value: val})
	}
	if s.Maximum != nil && val > *s.Maximum {
		*errs = append(*errs, FieldError{Field: path, Code: CodeMaximum,
			Message: fmt.Sprintf("%v exceeds %v", val, *s.Maximum), Value: val})
	}
}

func checkFormat(format, val string) error {
	var err error
	switch format {
	case "email":
		_, err = mail.ParseAddress(val)
	case "uri":
		var u *url.URL
		if u, err = url.Parse(val); err == nil && u.Scheme == "" {
			err = errors.New("missing scheme")
		}
	case "uuid":
		_, err = uuid.Parse(val)
	case "date":
		_, err = time.Parse(time.DateOnly, val)
	case "date-time":
		_, err = time.Parse(time.RFC3339, val)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid %s: %v", format, err)
	}
	return nil
}

// normalize converts a body into its decoded JSON form
func normalize(body interface{}) (interface{}, error) {
	var data []byte
	switch b := body.(type) {
	case []byte:
		data = b
	case string:
		return b, nil
	default:
		var err error
		if data, err = sonic.ConfigStd.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
	}

	var value interface{}
	if err := sonic.ConfigStd.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("body is not JSON: %w", err)
	}
	return value, nil
}

func matchesType(value interface{}, want string) bool {
	switch want {
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "string", "number", "boolean", "array", "object":
		return jsonType(value) == want
	default:
		return true
	}
}

func jsonType(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func inEnum(value interface{}, enum []interface{}) bool {
	for _, e := range enum {
		if reflect.DeepEqual(value, e) {
			return true
		}
		// YAML decodes whole numbers as int
		if f, ok := value.(float64); ok {
			switch n := e.(type) {
			case int:
				if f == float64(n) {
					return true
				}
			case int64:
				if f == float64(n) {
					return true
				}
			}
		}
	}
	return false
}
