// Package producer turns declared client interfaces into callable message producers.
//
// A client is declared as an Interface: a name plus one Method per operation. Every Method carries
// a Producer (the destination, header templates, reply flag and optional component overrides), its
// parameter bindings and the shape of its return value. Factory.Build compiles each Method once into
// an immutable Endpoint and returns a Stub that dispatches calls to those endpoints.
//
// Per call, the Stub:
//   - builds a fresh Invocation from the endpoint's static headers and the live arguments
//   - hands the Invocation to the configured InvocationObserver, if any
//   - converts the body with the endpoint's MessageConverter into a contracts.Message
//   - sends it with the endpoint's MessagingClient, either fire-and-forget or blocking for a reply
//
// Return shapes map to send strategies:
//   - Void (with ReturnExceptions false): fire-and-forget, a correlation id is always assigned
//   - RawMessage: request-reply, the reply *contracts.Message is returned as is
//   - Generic: request-reply, the reply is returned as *contracts.GenericMessage
//   - Value: request-reply, only the converted reply body is returned
//
// A request that gets no reply yields a nil result, never an error.
//
// Example usage:
//
//	var greeterDecl = producer.Interface{
//		Name: "Greeter",
//		Methods: []producer.Method{{
//			Name:     "Hello",
//			Producer: &producer.Producer{Destination: "sayHello"},
//			Params:   []producer.Param{producer.BodyParam("name"), producer.HeaderParam("lang", "lang")},
//			Returns:  producer.Value[string](),
//		}},
//	}
//
//	type greeterClient struct{ stub *producer.Stub }
//
//	func (c *greeterClient) Hello(ctx context.Context, name, lang string) (string, error) {
//		return producer.Call[string](ctx, c.stub, "Hello", name, lang)
//	}
//
//	stub, err := factory.Build(greeterDecl)
package producer
