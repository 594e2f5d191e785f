package widgetservice

import (
	"github.com/invopop/jsonschema"

	"github.com/chatware/chatwidgets-go/widget"
)

// reflectSchema reflects a Go value into the simplified widget.Schema. The
// reflector inlines definitions and hoists the struct to the schema root so
// the output has no $ref indirection for a language model to chase.
func reflectSchema(v any, allowAdditional bool) widget.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(v)

	// Only object schemas map onto widget.Schema; anything else becomes an
	// empty object with the configured additional-properties policy.
	if s == nil || s.Type != "object" {
		return widget.Schema{
			Type:                 "object",
			Properties:           map[string]widget.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]widget.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return widget.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

// toProperty recursively maps a jsonschema node onto widget.SchemaProperty.
func toProperty(s *jsonschema.Schema) widget.SchemaProperty {
	if s == nil {
		return widget.SchemaProperty{}
	}
	p := widget.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]widget.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}
