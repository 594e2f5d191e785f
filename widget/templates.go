package widget

import (
	"fmt"
	"reflect"
	"sync"
)

// TemplateEntry pairs a discriminator with its representative instance.
type TemplateEntry struct {
	Discriminator string
	Instance      Widget
}

// TemplateRegistry maps discriminators to representative populated widget
// instances. Templates feed schema/tool-descriptor generation only; they
// play no part in decoding.
type TemplateRegistry struct {
	mu      sync.RWMutex
	entries map[string]Widget
	order   []string
}

// NewTemplateRegistry returns an empty template registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{entries: make(map[string]Widget)}
}

// Register binds a representative instance to a discriminator. Replacing
// the instance for an already-bound discriminator is allowed as long as the
// concrete Go type is unchanged; binding a different type fails with a
// RegistrationConflictError.
func (r *TemplateRegistry) Register(disc string, w Widget) error {
	if disc == "" {
		return fmt.Errorf("widget: empty discriminator")
	}
	if w == nil {
		return fmt.Errorf("widget: nil template for %q", disc)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[disc]; ok {
		if reflect.TypeOf(existing) != reflect.TypeOf(w) {
			return &RegistrationConflictError{Discriminator: disc}
		}
		r.entries[disc] = w
		return nil
	}
	r.entries[disc] = w
	r.order = append(r.order, disc)
	return nil
}

// Resolve looks up the template instance for a discriminator.
func (r *TemplateRegistry) Resolve(disc string) (Widget, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.entries[disc]
	return w, ok
}

// All returns every template in registration order.
func (r *TemplateRegistry) All() []TemplateEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TemplateEntry, 0, len(r.order))
	for _, disc := range r.order {
		out = append(out, TemplateEntry{Discriminator: disc, Instance: r.entries[disc]})
	}
	return out
}
