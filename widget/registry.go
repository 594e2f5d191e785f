package widget

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// DecodeFunc structurally decodes a raw fragment into a concrete variant.
// It must not consult the "type" field; discriminator handling belongs to
// the codec.
type DecodeFunc func(data []byte) (Widget, error)

// Registration binds a discriminator to a decodable variant shape.
type Registration struct {
	Discriminator string
	// GoType identifies the concrete variant struct. It is the identity
	// used for conflict detection on re-registration.
	GoType reflect.Type
	Decode DecodeFunc
	// BuiltIn marks shapes registered by this package at construction.
	BuiltIn bool
}

// Registry maps discriminators to variant shapes. The zero value is not
// usable; construct with NewRegistry or NewBuiltinRegistry.
//
// Registration is expected at startup and resolution at request time; the
// two may interleave, with a resolution racing a registration simply
// reporting not-found.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register binds reg.Discriminator to reg. An empty discriminator is an
// error. Re-registering the same shape under the same discriminator is
// idempotent; binding the discriminator to a different shape fails with a
// RegistrationConflictError.
func (r *Registry) Register(reg Registration) error {
	if reg.Discriminator == "" {
		return fmt.Errorf("widget: empty discriminator")
	}
	if reg.Decode == nil {
		return fmt.Errorf("widget: registration for %q has no decode func", reg.Discriminator)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[reg.Discriminator]; ok {
		if existing.GoType != nil && existing.GoType == reg.GoType {
			return nil
		}
		return &RegistrationConflictError{Discriminator: reg.Discriminator}
	}
	r.entries[reg.Discriminator] = reg
	r.order = append(r.order, reg.Discriminator)
	return nil
}

// Resolve looks up the registration for a discriminator.
func (r *Registry) Resolve(disc string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[disc]
	return reg, ok
}

// All returns every registration in registration order.
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.order))
	for _, disc := range r.order {
		out = append(out, r.entries[disc])
	}
	return out
}

// widgetPtr constrains P to a pointer to W that implements Widget.
type widgetPtr[W any] interface {
	*W
	Widget
}

// RegisterShape registers the variant struct W under disc, deriving the
// discriminator from the type name when disc is empty.
func RegisterShape[W any, P widgetPtr[W]](r *Registry, disc string) error {
	t := reflect.TypeFor[W]()
	if disc == "" {
		disc = DeriveDiscriminator(t)
	}
	return r.Register(Registration{
		Discriminator: disc,
		GoType:        t,
		Decode:        decodeAs[W, P],
	})
}

// decodeAs is the cached per-shape structural decoder: a plain JSON decode
// into a fresh W with no discriminator handling, so the codec can delegate
// to it without recursing into itself.
func decodeAs[W any, P widgetPtr[W]](data []byte) (Widget, error) {
	var w W
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &StructuralError{Err: err}
	}
	return P(&w), nil
}
