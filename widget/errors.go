package widget

import (
	"errors"
	"fmt"
)

// ErrMissingDiscriminator indicates a fragment with no usable "type" field.
var ErrMissingDiscriminator = errors.New("missing type discriminator")

// StructuralError wraps a failure to parse a fragment as structured data.
// Fragments that fail structurally are skipped by the extraction parser.
type StructuralError struct {
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("widget: structural decode: %v", e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// UnknownVariantError indicates a discriminator that resolved in neither the
// custom nor the built-in registry.
type UnknownVariantError struct {
	Discriminator string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("widget: unknown variant %q", e.Discriminator)
}

// FieldValidationError indicates a resolved variant whose fields violate an
// invariant (missing required field, out-of-range value, empty option list).
type FieldValidationError struct {
	Discriminator string
	Field         string
	Message       string
}

func (e *FieldValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("widget %s: %s", e.Discriminator, e.Message)
	}
	return fmt.Sprintf("widget %s: field %s: %s", e.Discriminator, e.Field, e.Message)
}

// RegistrationConflictError indicates an attempt to bind an already-registered
// discriminator to a different variant shape. It signals a programming error
// in application configuration, not a runtime condition.
type RegistrationConflictError struct {
	Discriminator string
}

func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("widget: discriminator %q already registered with a different shape", e.Discriminator)
}

func fieldErr(disc, field, msg string) error {
	return &FieldValidationError{Discriminator: disc, Field: field, Message: msg}
}
