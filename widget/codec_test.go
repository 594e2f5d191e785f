package widget

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestDecodeButton(t *testing.T) {
	c := NewCodec()
	w, err := c.Decode([]byte(`{"type":"button","label":"Go","action":"go"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	btn, ok := w.(*ButtonWidget)
	if !ok {
		t.Fatalf("expected *ButtonWidget, got %T", w)
	}
	if btn.Label != "Go" || btn.Action != "go" {
		t.Fatalf("unexpected fields: %+v", btn)
	}
	if got := Discriminator(btn); got != "button" {
		t.Fatalf("discriminator = %q, want button", got)
	}
}

func TestRoundTripBuiltins(t *testing.T) {
	c := NewCodec()
	for _, entry := range NewBuiltinTemplates().All() {
		t.Run(entry.Discriminator, func(t *testing.T) {
			encoded, err := c.Encode(entry.Instance)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := c.Decode(encoded)
			if err != nil {
				t.Fatalf("decode: %v\nfragment: %s", err, encoded)
			}
			if got, want := Discriminator(decoded), entry.Discriminator; got != want {
				t.Fatalf("discriminator = %q, want %q", got, want)
			}
			reencoded, err := c.Encode(decoded)
			if err != nil {
				t.Fatalf("re-encode: %v", err)
			}
			var a, b map[string]any
			if err := json.Unmarshal(encoded, &a); err != nil {
				t.Fatal(err)
			}
			if err := json.Unmarshal(reencoded, &b); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("round trip drifted:\n first: %s\nsecond: %s", encoded, reencoded)
			}
		})
	}
}

func TestDecodeTypeFirstOnEncode(t *testing.T) {
	c := NewCodec()
	out, err := c.Encode(&ToggleWidget{Base: Base{Label: "On", Action: "on"}})
	if err != nil {
		t.Fatal(err)
	}
	const prefix = `{"type":"toggle",`
	if string(out[:len(prefix)]) != prefix {
		t.Fatalf("expected %q prefix, got %s", prefix, out)
	}
}

func TestDecodeMissingDiscriminator(t *testing.T) {
	c := NewCodec()
	for _, fragment := range []string{
		`{"label":"x","action":"y"}`,
		`{"type":"  ","label":"x","action":"y"}`,
	} {
		_, err := c.Decode([]byte(fragment))
		var se *StructuralError
		if !errors.As(err, &se) {
			t.Fatalf("fragment %s: expected StructuralError, got %v", fragment, err)
		}
		if !errors.Is(err, ErrMissingDiscriminator) {
			t.Fatalf("fragment %s: expected ErrMissingDiscriminator, got %v", fragment, err)
		}
	}
}

func TestDecodeUnknownVariant(t *testing.T) {
	c := NewCodec()
	_, err := c.Decode([]byte(`{"type":"nope","label":"x","action":"y"}`))
	var uv *UnknownVariantError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UnknownVariantError, got %v", err)
	}
	if uv.Discriminator != "nope" {
		t.Fatalf("discriminator = %q", uv.Discriminator)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	c := NewCodec()
	_, err := c.Decode([]byte(`{"type":"button"`))
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
}

func TestSliderInvariants(t *testing.T) {
	c := NewCodec()
	cases := []struct {
		name     string
		fragment string
		field    string
	}{
		{"min above max", `{"type":"slider","label":"v","action":"v","min":10,"max":5,"step":1}`, "min"},
		{"min equals max", `{"type":"slider","label":"v","action":"v","min":5,"max":5,"step":1}`, "min"},
		{"default out of range", `{"type":"slider","label":"v","action":"v","min":0,"max":10,"step":1,"default":11}`, "default"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tc.fragment))
			var fv *FieldValidationError
			if !errors.As(err, &fv) {
				t.Fatalf("expected FieldValidationError, got %v", err)
			}
			if fv.Field != tc.field {
				t.Fatalf("field = %q, want %q", fv.Field, tc.field)
			}
		})
	}
}

func TestValidationFailures(t *testing.T) {
	c := NewCodec()
	fragments := []string{
		`{"type":"card","label":"x","action":"y"}`,
		`{"type":"dropdown","label":"x","action":"y","options":[]}`,
		`{"type":"multi-select","label":"x","action":"y","options":[]}`,
		`{"type":"progress-bar","label":"x","action":"y","value":-1,"max":10}`,
		`{"type":"progress-bar","label":"x","action":"y","value":1,"max":0}`,
		`{"type":"theme-switcher","label":"x","action":"y","themes":[]}`,
		`{"type":"image","label":"x","action":"y"}`,
		`{"type":"image-collection","label":"x","action":"y","images":[]}`,
		`{"type":"date-picker","label":"x","action":"y","minDate":"2024-06-01","maxDate":"2024-01-01"}`,
		`{"type":"date-picker","label":"x","action":"y","minDate":"junk"}`,
		`{"type":"input","label":"x","action":"y","maxLength":-5}`,
		`{"type":"file-upload","label":"x","action":"y","maxBytes":-1}`,
		`{"type":"form","label":"x","action":"y","title":"t","fields":[],"actions":[{"type":"submit","label":"s"},{"type":"cancel","label":"c"}]}`,
		`{"type":"form","label":"x","action":"y","title":"t","fields":[{"name":"a","label":"A","type":"input","required":true}],"actions":[{"type":"submit","label":"s"}]}`,
	}
	for _, fragment := range fragments {
		_, err := c.Decode([]byte(fragment))
		var fv *FieldValidationError
		if !errors.As(err, &fv) {
			t.Fatalf("fragment %s: expected FieldValidationError, got %v", fragment, err)
		}
	}
}

func TestFormFieldMaterialization(t *testing.T) {
	c := NewCodec()
	w, err := c.Decode([]byte(`{
		"type": "form", "label": "Contact", "action": "contact", "title": "Contact",
		"fields": [{"name":"email","label":"Email","type":"input","required":true,"placeholder":"you@example.com"}],
		"actions": [{"type":"submit","label":"Send"},{"type":"cancel","label":"Cancel"}]
	}`))
	if err != nil {
		t.Fatalf("decode form: %v", err)
	}
	form := w.(*FormWidget)
	fields, err := form.MaterializeFields(c)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("expected 1 field widget, got %d", len(fields))
	}
	input, ok := fields[0].(*InputWidget)
	if !ok {
		t.Fatalf("expected *InputWidget, got %T", fields[0])
	}
	if input.Action != "email" {
		t.Fatalf("action = %q, want email (defaulted from field name)", input.Action)
	}
	if input.Placeholder != "you@example.com" {
		t.Fatalf("extra property not reattached: %+v", input)
	}
}

func TestFormFieldExtrasSurviveRoundTrip(t *testing.T) {
	var f FormField
	src := `{"name":"age","label":"Age","type":"slider","required":false,"min":0,"max":120,"step":1}`
	if err := json.Unmarshal([]byte(src), &f); err != nil {
		t.Fatal(err)
	}
	if len(f.Extra) != 3 {
		t.Fatalf("expected 3 extras, got %v", f.Extra)
	}
	out, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	var a, b map[string]any
	if err := json.Unmarshal([]byte(src), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(out, &b); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("extras lost:\n in: %s\nout: %s", src, out)
	}
}

// aliasWidget is registered under a second name to exercise per-instance
// discriminator overrides.
type chipWidget struct {
	Base
	Hue string `json:"hue,omitempty"`
}

func (chipWidget) Purpose() string { return "test chip" }

func TestDiscriminatorAlias(t *testing.T) {
	c := NewCodec()
	if err := RegisterShape[chipWidget](c.Custom(), "chip"); err != nil {
		t.Fatal(err)
	}
	if err := RegisterShape[chipWidget](c.Custom(), "tag"); err != nil {
		t.Fatal(err)
	}
	w, err := c.Decode([]byte(`{"type":"tag","label":"x","action":"y","hue":"red"}`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Encode(w)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != "tag" {
		t.Fatalf("alias did not round-trip: %s", out)
	}

	// Explicit override at construction.
	manual := &chipWidget{Base: Base{Label: "x", Action: "y", TypeName: "chip"}}
	out, err = c.Encode(manual)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != "chip" {
		t.Fatalf("override not honored: %s", out)
	}
}

func TestCustomPrecedenceOverBuiltin(t *testing.T) {
	c := NewCodec()
	if err := RegisterShape[chipWidget](c.Custom(), "button"); err != nil {
		t.Fatal(err)
	}
	w, err := c.Decode([]byte(`{"type":"button","label":"x","action":"y"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.(*chipWidget); !ok {
		t.Fatalf("custom-first precedence: expected *chipWidget, got %T", w)
	}

	// Flipping the precedence resolves the built-in again.
	c2 := NewCodec(WithCustomRegistry(c.Custom()), WithPrecedence(BuiltinFirst))
	w, err = c2.Decode([]byte(`{"type":"button","label":"x","action":"y"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.(*ButtonWidget); !ok {
		t.Fatalf("builtin-first precedence: expected *ButtonWidget, got %T", w)
	}
}

func TestDeriveDiscriminator(t *testing.T) {
	cases := map[string]Widget{
		"button":           &ButtonWidget{},
		"file-upload":      &FileUploadWidget{},
		"date-picker":      &DatePickerWidget{},
		"multi-select":     &MultiSelectWidget{},
		"progress-bar":     &ProgressBarWidget{},
		"theme-switcher":   &ThemeSwitcherWidget{},
		"image-collection": &ImageCollectionWidget{},
		"form":             &FormWidget{},
	}
	for want, w := range cases {
		if got := DeriveDiscriminator(reflect.TypeOf(w)); got != want {
			t.Errorf("DeriveDiscriminator(%T) = %q, want %q", w, got, want)
		}
	}
}
