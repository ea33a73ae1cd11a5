// Package resolver resolves producer destinations, flags and header templates.
//
// Resolution runs in two passes. Property placeholders of the form ${key} or ${key:default} are
// replaced first, looking the key up in an ordered list of Sources; placeholders may nest and
// resolved values are themselves resolved. Expressions of the form #{...} are then evaluated with
// github.com/expr-lang/expr. Expressions can read properties through prop("key"), environment
// variables through env("NAME") and any variables registered with WithVariables.
//
//	r := resolver.New(
//		resolver.WithSource(resolver.MapSource{"orders.exchange": "orders"}),
//		resolver.WithSource(resolver.EnvSource("")),
//	)
//	dest, err := r.Resolve("${orders.exchange}/#{lower('Created')}")
package resolver
