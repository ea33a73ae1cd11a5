package producer

import (
	"errors"
	"fmt"
)

var (
	// Compilation errors
	ErrMissingProducer       = errors.New("producer: method has no producer declaration")
	ErrInvalidInterface      = errors.New("producer: invalid interface declaration")
	ErrDuplicateMethod       = errors.New("producer: duplicate method")
	ErrReservedMethod        = errors.New("producer: method name is reserved for identity operations")
	ErrUnknownComponent      = errors.New("producer: unknown component")
	ErrNoDefaultComponent    = errors.New("producer: no default component registered")
	ErrInvalidHeaderTemplate = errors.New("producer: header template must be key=value")
	ErrInvalidFlag           = errors.New("producer: invalid boolean flag")
	ErrMultipleBodies        = errors.New("producer: more than one body parameter")

	// Call errors
	ErrArgumentCount  = errors.New("producer: argument count does not match declared parameters")
	ErrNotAMap        = errors.New("producer: headers argument is not a string-keyed map")
	ErrNilMessage     = errors.New("producer: converter returned no message")
	ErrUnexpectedType = errors.New("producer: unexpected result type")
)

// CompilationError reports a method that could not be compiled into an endpoint
type CompilationError struct {
	Interface string // Client interface name
	Method    string // Method name
	Raw       string // Offending raw value, if any
	Err       error  // Underlying error
}

func (e *CompilationError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("producer compilation error: %s.%s: %q: %v", e.Interface, e.Method, e.Raw, e.Err)
	}
	if e.Method != "" {
		return fmt.Sprintf("producer compilation error: %s.%s: %v", e.Interface, e.Method, e.Err)
	}
	return fmt.Sprintf("producer compilation error: %s: %v", e.Interface, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// BindingError reports an argument that could not be bound into an invocation
type BindingError struct {
	Method MethodID // Invoked method
	Param  string   // Parameter name
	Index  int      // Parameter position
	Err    error    // Underlying error
}

func (e *BindingError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("producer binding error: %s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("producer binding error: %s parameter %d (%s): %v", e.Method, e.Index, e.Param, e.Err)
}

func (e *BindingError) Unwrap() error {
	return e.Err
}

// IsCompilationError reports whether err is or wraps a CompilationError
func IsCompilationError(err error) bool {
	var compErr *CompilationError
	return errors.As(err, &compErr)
}
