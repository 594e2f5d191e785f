package widgetservice

import (
	"fmt"
	"sync"

	"github.com/chatware/chatwidgets-go/widget"
)

// ToolDescriptor advertises one widget variant as an invocable capability:
// the discriminator it answers to, a prose description for the model, and
// the JSON schema of its wire shape.
type ToolDescriptor struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Schema      widget.Schema `json:"schema"`
}

// DescriptorProvider derives tool descriptors from the representative
// instances in a template registry. Reflection runs once per provider; the
// result is memoized for the provider's lifetime. Templates registered after
// the first read are not picked up; construct a fresh provider to see them.
type DescriptorProvider struct {
	templates *widget.TemplateRegistry

	once   sync.Once
	cached []ToolDescriptor
}

// NewDescriptorProvider constructs a provider over the given templates. A
// nil registry gets the populated built-in template set.
func NewDescriptorProvider(templates *widget.TemplateRegistry) *DescriptorProvider {
	if templates == nil {
		templates = widget.NewBuiltinTemplates()
	}
	return &DescriptorProvider{templates: templates}
}

// Descriptors returns one descriptor per registered template, in
// registration order.
func (p *DescriptorProvider) Descriptors() []ToolDescriptor {
	p.once.Do(func() {
		entries := p.templates.All()
		p.cached = make([]ToolDescriptor, 0, len(entries))
		for _, entry := range entries {
			p.cached = append(p.cached, describeTemplate(entry))
		}
	})
	return p.cached
}

// Descriptor returns the descriptor for a single discriminator.
func (p *DescriptorProvider) Descriptor(name string) (ToolDescriptor, bool) {
	for _, d := range p.Descriptors() {
		if d.Name == name {
			return d, true
		}
	}
	return ToolDescriptor{}, false
}

func describeTemplate(entry widget.TemplateEntry) ToolDescriptor {
	s := reflectSchema(entry.Instance, false)

	// The discriminator is stripped from variant structs (it lives on the
	// codec side), so it has to be injected into the advertised shape here.
	if s.Properties == nil {
		s.Properties = make(map[string]widget.SchemaProperty)
	}
	s.Properties["type"] = widget.SchemaProperty{
		Type:        "string",
		Description: "Variant discriminator.",
		Enum:        []any{entry.Discriminator},
	}
	s.Required = append([]string{"type"}, s.Required...)

	desc := entry.Instance.Purpose()
	if label := entry.Instance.WidgetLabel(); label != "" {
		desc = fmt.Sprintf("%s Example: label %q, action %q.", desc, label, entry.Instance.WidgetAction())
	}

	return ToolDescriptor{
		Name:        entry.Discriminator,
		Description: desc,
		Schema:      s,
	}
}
