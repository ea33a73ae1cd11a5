// Package schema validates producer message bodies before they are sent.
//
// A Schema describes the JSON shape of a body: its type, required fields and per-field
// constraints such as length, range, enum, pattern and format. Schemas are registered per
// producer method and checked by Validator, which plugs into interceptors.NewValidationObserver:
//
//	v := schema.NewValidator()
//	v.Register("Orders.Place", &schema.Schema{
//		Type:     "object",
//		Required: []string{"id", "amount"},
//		Properties: map[string]*schema.Schema{
//			"id":     {Type: "string", Format: "uuid"},
//			"amount": {Type: "number", Minimum: schema.Float(0)},
//		},
//	})
//	observer := interceptors.NewValidationObserver(v)
//
// Bodies are compared in their JSON form, so structs, maps and raw JSON bytes validate alike.
// Methods without a schema are not checked.
package schema
