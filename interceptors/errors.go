package interceptors

import "errors"

// ErrMissingHeader is returned by RequireHeaders when a required header is absent
var ErrMissingHeader = errors.New("interceptors: missing required header")
