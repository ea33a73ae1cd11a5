package producer

// Invocation is the mutable state of a single call: headers, body and the live arguments.
// It is created per call and never shared.
type Invocation struct {
	Headers map[string]interface{}
	Body    interface{}
	HasBody bool
	// Args are the call arguments in parameter order; binders and observers must not modify them
	Args []interface{}
}

func newInvocation(args []interface{}, static map[string]string) *Invocation {
	inv := &Invocation{
		Headers: make(map[string]interface{}, len(static)),
		Args:    args,
	}
	for k, v := range static {
		inv.Headers[k] = v
	}
	return inv
}

// SetHeader sets a header, overwriting any earlier value
func (inv *Invocation) SetHeader(key string, value interface{}) {
	if inv.Headers == nil {
		inv.Headers = make(map[string]interface{})
	}
	inv.Headers[key] = value
}

// SetBody sets the message body
func (inv *Invocation) SetBody(body interface{}) {
	inv.Body = body
	inv.HasBody = true
}

// Arg returns the argument at index i, or nil when out of range
func (inv *Invocation) Arg(i int) interface{} {
	if i < 0 || i >= len(inv.Args) {
		return nil
	}
	return inv.Args[i]
}
