package widget

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Precedence selects which registry the codec consults first when resolving
// a discriminator.
type Precedence int

const (
	// CustomFirst resolves against the custom registry before falling back
	// to the built-ins. This is the default: an application that registers
	// its own shape under a built-in name gets its own shape back.
	CustomFirst Precedence = iota
	// BuiltinFirst resolves built-ins before the custom registry.
	BuiltinFirst
)

// Codec is the polymorphic encoder/decoder. Decoding reads the "type"
// discriminator, resolves it against the registries, and delegates the
// remaining fields to the variant's structural decoder; encoding runs the
// variant's structural encoder and injects the discriminator afterwards.
// The polymorphic step never re-enters itself.
//
// A Codec is immutable after construction apart from registry mutation and
// is safe for concurrent use.
type Codec struct {
	builtins   *Registry
	custom     *Registry
	precedence Precedence
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithBuiltinRegistry replaces the built-in shape registry.
func WithBuiltinRegistry(r *Registry) CodecOption {
	return func(c *Codec) { c.builtins = r }
}

// WithCustomRegistry replaces the custom shape registry.
func WithCustomRegistry(r *Registry) CodecOption {
	return func(c *Codec) { c.custom = r }
}

// WithPrecedence sets the registry resolution order.
func WithPrecedence(p Precedence) CodecOption {
	return func(c *Codec) { c.precedence = p }
}

// NewCodec constructs a codec over a freshly populated built-in registry and
// an empty custom registry, resolving custom-first.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{precedence: CustomFirst}
	for _, opt := range opts {
		opt(c)
	}
	if c.builtins == nil {
		c.builtins = NewBuiltinRegistry()
	}
	if c.custom == nil {
		c.custom = NewRegistry()
	}
	return c
}

// Builtins returns the built-in shape registry.
func (c *Codec) Builtins() *Registry { return c.builtins }

// Custom returns the custom shape registry.
func (c *Codec) Custom() *Registry { return c.custom }

func (c *Codec) resolve(disc string) (Registration, bool) {
	first, second := c.custom, c.builtins
	if c.precedence == BuiltinFirst {
		first, second = c.builtins, c.custom
	}
	if reg, ok := first.Resolve(disc); ok {
		return reg, true
	}
	return second.Resolve(disc)
}

// Decode turns a raw structured fragment into a widget. It fails with a
// StructuralError when the fragment is not valid JSON or carries no usable
// discriminator, an UnknownVariantError when the discriminator resolves in
// neither registry, and a FieldValidationError when the variant's
// invariants are violated.
func (c *Codec) Decode(data []byte) (Widget, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &StructuralError{Err: err}
	}
	disc := strings.TrimSpace(probe.Type)
	if disc == "" {
		return nil, &StructuralError{Err: ErrMissingDiscriminator}
	}
	reg, ok := c.resolve(disc)
	if !ok {
		return nil, &UnknownVariantError{Discriminator: disc}
	}
	w, err := reg.Decode(data)
	if err != nil {
		return nil, err
	}
	if v, ok := w.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	// Record the resolved discriminator so the instance round-trips under
	// the name it was registered as, including aliases.
	if s, ok := w.(interface{ setDiscriminator(string) }); ok {
		s.setDiscriminator(disc)
	}
	return w, nil
}

// Encode serializes a widget, injecting its discriminator as the leading
// "type" field. The input widget is never mutated.
func (c *Codec) Encode(w Widget) ([]byte, error) {
	if w == nil {
		return nil, fmt.Errorf("widget: encode nil widget")
	}
	disc := Discriminator(w)
	if disc == "" {
		return nil, fmt.Errorf("widget: cannot derive discriminator for %T", w)
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("widget: encode %s: %w", disc, err)
	}
	if len(raw) < 2 || raw[0] != '{' {
		return nil, fmt.Errorf("widget: %s does not encode to a JSON object", disc)
	}
	head := append([]byte(`{"type":`), strconv.Quote(disc)...)
	if len(raw) == 2 { // "{}"
		return append(head, '}'), nil
	}
	head = append(head, ',')
	return append(head, raw[1:]...), nil
}
