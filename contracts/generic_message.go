package contracts

// GenericMessage is a converted payload together with the headers of the message it came from
type GenericMessage struct {
	Payload interface{}
	Headers map[string]interface{}
}

// NewGenericMessage creates a generic message, copying the headers
func NewGenericMessage(payload interface{}, headers map[string]interface{}) *GenericMessage {
	copied := make(map[string]interface{}, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return &GenericMessage{Payload: payload, Headers: copied}
}

// Header returns a header value
func (g *GenericMessage) Header(key string) (interface{}, bool) {
	v, ok := g.Headers[key]
	return v, ok
}
