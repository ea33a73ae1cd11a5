// Package interceptors provides invocation observers for generated producers.
//
// An observer sees every invocation after its parameters are bound and before the message is
// built and sent. Observers may add headers, replace the body or reject the call by returning an
// error. The factory takes a single observer; a Chain combines several:
//
//	chain := interceptors.NewChain(logger).
//		Add(interceptors.NewTracingObserver()).
//		Add(interceptors.NewLoggingObserver(logger)).
//		Add(interceptors.NewConditionalObserver(
//			interceptors.NewMethodFilter("Orders.Place"),
//			interceptors.NewValidationObserver(validator)))
//
//	factory := producer.NewFactory(components, producer.WithObserver(chain))
//
// Observers run in the order they were added. The first error stops the chain.
package interceptors
