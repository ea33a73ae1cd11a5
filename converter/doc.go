// Package converter provides the message converters producer endpoints use to turn call bodies
// into transport messages and replies back into values.
//
// SimpleConverter handles text and raw bytes, JSONConverter encodes any value as JSON and records its
// logical type in the __TypeId__ header, and ProtoConverter handles protobuf messages.
// JSONConverter and ProtoConverter also implement producer.TypedConverter, so replies decode into the
// type a method declares.
package converter
