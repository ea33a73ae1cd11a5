package converter

import "errors"

var (
	// ErrUnsupportedPayload is returned when a converter cannot encode a body of the given type
	ErrUnsupportedPayload = errors.New("converter: unsupported payload type")
	// ErrUnknownMessageType is returned when a reply names a type the converter cannot resolve
	ErrUnknownMessageType = errors.New("converter: unknown message type")
)
