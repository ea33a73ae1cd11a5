package producer

import (
	"reflect"
)

// ParamKind tells how a method parameter is bound into an invocation
type ParamKind int

const (
	// ParamBody binds the argument as the message body
	ParamBody ParamKind = iota
	// ParamHeader binds the stringified argument under a single header name
	ParamHeader
	// ParamHeaders merges a string-keyed map argument into the headers
	ParamHeaders
)

func (k ParamKind) String() string {
	switch k {
	case ParamBody:
		return "body"
	case ParamHeader:
		return "header"
	case ParamHeaders:
		return "headers"
	default:
		return "unknown"
	}
}

// Param declares how one method parameter is bound
type Param struct {
	// Name is the declared parameter name
	Name string
	Kind ParamKind
	// Header is the header name for ParamHeader; blank means Name
	Header string
}

// BodyParam declares the body parameter
func BodyParam(name string) Param {
	return Param{Name: name, Kind: ParamBody}
}

// HeaderParam declares a parameter sent as a named header
func HeaderParam(name, header string) Param {
	return Param{Name: name, Kind: ParamHeader, Header: header}
}

// HeadersParam declares a map parameter merged into the headers
func HeadersParam(name string) Param {
	return Param{Name: name, Kind: ParamHeaders}
}

// ReturnKind is the declared return shape of a method
type ReturnKind int

const (
	// ReturnVoid declares no return value
	ReturnVoid ReturnKind = iota
	// ReturnRawMessage returns the reply *contracts.Message
	ReturnRawMessage
	// ReturnGeneric returns the reply as *contracts.GenericMessage
	ReturnGeneric
	// ReturnValue returns the converted reply body
	ReturnValue
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnVoid:
		return "void"
	case ReturnRawMessage:
		return "message"
	case ReturnGeneric:
		return "generic"
	case ReturnValue:
		return "value"
	default:
		return "unknown"
	}
}

// Returns declares the return shape and, for Generic and Value, the payload type
type Returns struct {
	Kind ReturnKind
	// Type is the payload type used by TypedConverter implementations; nil lets the converter choose
	Type reflect.Type
}

// Void declares a method without a return value
func Void() Returns {
	return Returns{Kind: ReturnVoid}
}

// RawMessage declares a method returning the raw reply message
func RawMessage() Returns {
	return Returns{Kind: ReturnRawMessage}
}

// Generic declares a method returning the reply payload of type T with its headers
func Generic[T any]() Returns {
	return Returns{Kind: ReturnGeneric, Type: reflect.TypeFor[T]()}
}

// Value declares a method returning the reply payload of type T
func Value[T any]() Returns {
	return Returns{Kind: ReturnValue, Type: reflect.TypeFor[T]()}
}

// Producer is the per-method producer declaration
type Producer struct {
	// Destination is "exchange/routingKey" or a bare routing key; may hold placeholders
	Destination string
	// ReturnExceptions forces request-reply for void methods when it resolves to "true"
	ReturnExceptions string
	// Template names the MessagingClient to use; blank selects the default
	Template string
	// Converter names the MessageConverter to use; blank selects the default
	Converter string
	// Headers are static "key=value" templates; both sides may hold placeholders
	Headers []string
}

// Method declares one client operation
type Method struct {
	Name     string
	Producer *Producer
	Params   []Param
	Returns  Returns
}

// Interface declares a client: a name and its methods
type Interface struct {
	Name    string
	Methods []Method
}

// MethodID identifies a method of a client interface
type MethodID struct {
	Interface string
	Name      string
}

// String returns "Interface.Method"
func (m MethodID) String() string {
	return m.Interface + "." + m.Name
}
