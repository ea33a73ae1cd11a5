package resolver

import "errors"

var (
	// ErrUnresolvablePlaceholder is returned for a placeholder with no value and no default
	ErrUnresolvablePlaceholder = errors.New("resolver: could not resolve placeholder")
	// ErrCircularPlaceholder is returned when a placeholder refers back to itself
	ErrCircularPlaceholder = errors.New("resolver: circular placeholder reference")
	// ErrUnterminated is returned for a placeholder or expression missing its closing brace
	ErrUnterminated = errors.New("resolver: unterminated placeholder or expression")
	// ErrExpression is returned when an expression fails to compile or evaluate
	ErrExpression = errors.New("resolver: expression evaluation failed")
)
