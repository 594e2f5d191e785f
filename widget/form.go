package widget

import "encoding/json"

// FormAction is a terminal control rendered at the bottom of a form.
type FormAction struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// FormField declares one field of a form. A field is a lazily-materialized
// widget: its Type names the variant to decode, and any properties beyond
// the declared ones are kept in Extra and reattached when the field is
// resolved into a concrete widget.
type FormField struct {
	Name           string `json:"name"`
	Label          string `json:"label"`
	Type           string `json:"type"`
	Required       bool   `json:"required"`
	ValidationHint string `json:"validationHint,omitempty"`

	// Extra holds properties not covered by the named fields, preserved
	// verbatim for materialization.
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the declared fields and captures every remaining
// property into Extra.
func (f *FormField) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	take := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(v, dst)
	}
	if err := take("name", &f.Name); err != nil {
		return err
	}
	if err := take("label", &f.Label); err != nil {
		return err
	}
	if err := take("type", &f.Type); err != nil {
		return err
	}
	if err := take("required", &f.Required); err != nil {
		return err
	}
	if err := take("validationHint", &f.ValidationHint); err != nil {
		return err
	}
	if len(raw) > 0 {
		f.Extra = raw
	}
	return nil
}

// MarshalJSON re-emits the declared fields alongside any preserved extras.
func (f FormField) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f.Extra)+5)
	for k, v := range f.Extra {
		out[k] = v
	}
	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}
	if err := put("name", f.Name); err != nil {
		return nil, err
	}
	if err := put("label", f.Label); err != nil {
		return nil, err
	}
	if err := put("type", f.Type); err != nil {
		return nil, err
	}
	if err := put("required", f.Required); err != nil {
		return nil, err
	}
	if f.ValidationHint != "" {
		if err := put("validationHint", f.ValidationHint); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// Materialize resolves the field into a concrete widget via the codec. The
// widget's action defaults to the field name unless the preserved extras
// carry an explicit action.
func (f FormField) Materialize(c *Codec) (Widget, error) {
	frag := make(map[string]json.RawMessage, len(f.Extra)+3)
	for k, v := range f.Extra {
		frag[k] = v
	}
	put := func(key string, v any) {
		b, _ := json.Marshal(v)
		frag[key] = b
	}
	put("type", f.Type)
	put("label", f.Label)
	if _, ok := frag["action"]; !ok {
		put("action", f.Name)
	}
	data, err := json.Marshal(frag)
	if err != nil {
		return nil, &StructuralError{Err: err}
	}
	return c.Decode(data)
}

// FormWidget is a composite that nests field-widgets and terminal actions.
type FormWidget struct {
	Base
	Title   string       `json:"title"`
	Fields  []FormField  `json:"fields"`
	Actions []FormAction `json:"actions"`
}

func (FormWidget) Purpose() string {
	return "A form composed of named fields, each itself a widget, with submit and cancel actions. Use to collect several related values at once."
}

func (w FormWidget) Validate() error {
	if w.Title == "" {
		return fieldErr("form", "title", "title is required")
	}
	if len(w.Fields) == 0 {
		return fieldErr("form", "fields", "at least one field is required")
	}
	for _, f := range w.Fields {
		if f.Name == "" {
			return fieldErr("form", "fields", "every field needs a name")
		}
		if f.Type == "" {
			return fieldErr("form", "fields", "field "+f.Name+" needs a type")
		}
	}
	var submit, cancel bool
	for _, a := range w.Actions {
		switch a.Type {
		case "submit":
			submit = true
		case "cancel":
			cancel = true
		}
	}
	if !submit || !cancel {
		return fieldErr("form", "actions", "actions must include a submit and a cancel entry")
	}
	return nil
}

// MaterializeFields resolves every field into its concrete widget, in order.
func (w FormWidget) MaterializeFields(c *Codec) ([]Widget, error) {
	out := make([]Widget, 0, len(w.Fields))
	for _, f := range w.Fields {
		fw, err := f.Materialize(c)
		if err != nil {
			return nil, err
		}
		out = append(out, fw)
	}
	return out, nil
}
