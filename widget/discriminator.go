package widget

import (
	"reflect"
	"strings"
	"unicode"
)

// DeriveDiscriminator computes the default discriminator for a variant's Go
// type: the type name with a trailing "Widget" stripped, kebab-cased. For
// example FileUploadWidget derives "file-upload".
func DeriveDiscriminator(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	name := strings.TrimSuffix(t.Name(), "Widget")
	if name == "" {
		name = t.Name()
	}
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Discriminator reports the discriminator an instance encodes under: the
// per-instance override when one was recorded, otherwise the name derived
// from the concrete Go type.
func Discriminator(w Widget) string {
	if o, ok := w.(interface{ discriminatorOverride() string }); ok {
		if d := o.discriminatorOverride(); d != "" {
			return d
		}
	}
	return DeriveDiscriminator(reflect.TypeOf(w))
}
