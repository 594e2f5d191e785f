// Package widget defines the wire-level widget variant model shared by
// every component of the SDK.
//
// A widget is a machine-interpretable description of one interactive UI
// element (button, card, slider, ...) that a language model embeds in its
// free-form output and that a host application renders. Each variant is
// identified on the wire by a string discriminator carried in the "type"
// field of its JSON encoding.
//
// The package provides:
//
//   - the built-in variant structs and their field-level invariants,
//   - Registry, mapping discriminators to decodable variant shapes,
//   - TemplateRegistry, mapping discriminators to representative populated
//     instances used for schema/tool-descriptor generation,
//   - Codec, the polymorphic encoder/decoder that injects and resolves the
//     discriminator around the plain structural JSON layer.
//
// All registries are safe for concurrent use. Decoded widget instances are
// immutable by convention: no component of this module mutates a widget
// after Codec.Decode returns it.
package widget
