package widget

import (
	"strconv"
	"time"
)

// Widget is the interface implemented by every widget variant, built-in or
// externally registered.
type Widget interface {
	// WidgetLabel returns the user-facing label text.
	WidgetLabel() string
	// WidgetAction returns the action identifier fired when the user
	// interacts with the rendered widget.
	WidgetAction() string
	// Purpose returns static, instance-independent usage guidance. It is
	// consumed only by instruction generation, never by decoding.
	Purpose() string
}

// Validator is implemented by variants that enforce field-level invariants.
// The codec calls Validate after structural decoding; a non-nil error causes
// the decode to fail with a FieldValidationError.
type Validator interface {
	Validate() error
}

// Recyclable is implemented by variants that hold single-use resources.
// Recycle is invoked exactly once when the instance is attached to a
// thread's history; the instance must not be reused afterwards.
type Recyclable interface {
	Recycle()
}

// Base carries the fields common to every variant. Embed it by value.
type Base struct {
	Label  string `json:"label" jsonschema:"description=User-facing label text"`
	Action string `json:"action" jsonschema:"description=Action identifier fired on user interaction"`

	// TypeName, when non-empty, overrides the discriminator derived from
	// the Go type name for this instance. It is recorded at construction
	// (or by the codec during decode) and never serialized directly; the
	// codec injects it as the "type" field instead.
	TypeName string `json:"-"`
}

func (b Base) WidgetLabel() string  { return b.Label }
func (b Base) WidgetAction() string { return b.Action }

func (b Base) discriminatorOverride() string  { return b.TypeName }
func (b *Base) setDiscriminator(disc string) { b.TypeName = disc }

// Buttons and cards

// ButtonWidget is a simple clickable button.
type ButtonWidget struct {
	Base
}

func (ButtonWidget) Purpose() string {
	return "A clickable button. Use for a single direct action such as confirming or starting something."
}

// CardWidget is a titled content card with optional description and image.
type CardWidget struct {
	Base
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

func (CardWidget) Purpose() string {
	return "A content card with a title and optional description and image. Use to present a distinct item the user can select."
}

func (w CardWidget) Validate() error {
	if w.Title == "" {
		return fieldErr("card", "title", "title is required")
	}
	return nil
}

// Text entry

// InputWidget is a single-line text input.
type InputWidget struct {
	Base
	Placeholder string `json:"placeholder,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

func (InputWidget) Purpose() string {
	return "A single-line text input. Use to collect one short free-form value from the user."
}

func (w InputWidget) Validate() error {
	if w.MaxLength < 0 {
		return fieldErr("input", "maxLength", "maxLength must be positive when present")
	}
	return nil
}

// TextareaWidget is a multi-line text input.
type TextareaWidget struct {
	Base
	Placeholder string `json:"placeholder,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
	Rows        int    `json:"rows,omitempty"`
}

func (TextareaWidget) Purpose() string {
	return "A multi-line text area. Use to collect longer free-form text from the user."
}

func (w TextareaWidget) Validate() error {
	if w.MaxLength < 0 {
		return fieldErr("textarea", "maxLength", "maxLength must be positive when present")
	}
	if w.Rows < 0 {
		return fieldErr("textarea", "rows", "rows must be positive when present")
	}
	return nil
}

// Choice widgets

// DropdownWidget is a single-choice select.
type DropdownWidget struct {
	Base
	Options []string `json:"options"`
}

func (DropdownWidget) Purpose() string {
	return "A dropdown select. Use when the user must pick exactly one option from a known list."
}

func (w DropdownWidget) Validate() error {
	if len(w.Options) == 0 {
		return fieldErr("dropdown", "options", "at least one option is required")
	}
	return nil
}

// MultiSelectWidget is a multiple-choice select.
type MultiSelectWidget struct {
	Base
	Options []string `json:"options"`
}

func (MultiSelectWidget) Purpose() string {
	return "A multi-select list. Use when the user may pick several options from a known list."
}

func (w MultiSelectWidget) Validate() error {
	if len(w.Options) == 0 {
		return fieldErr("multi-select", "options", "at least one option is required")
	}
	return nil
}

// SliderWidget is a numeric range control.
type SliderWidget struct {
	Base
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Step    float64  `json:"step"`
	Default *float64 `json:"default,omitempty"`
}

func (SliderWidget) Purpose() string {
	return "A numeric slider between a minimum and maximum. Use for picking a number in a bounded range."
}

func (w SliderWidget) Validate() error {
	if w.Min >= w.Max {
		return fieldErr("slider", "min", "min must be strictly less than max")
	}
	if w.Default != nil && (*w.Default < w.Min || *w.Default > w.Max) {
		return fieldErr("slider", "default", "default must be within [min, max]")
	}
	return nil
}

// ToggleWidget is an on/off switch.
type ToggleWidget struct {
	Base
	DefaultValue bool `json:"defaultValue"`
}

func (ToggleWidget) Purpose() string {
	return "An on/off toggle switch. Use for a boolean choice."
}

// Uploads and dates

// FileUploadWidget accepts a file from the user.
type FileUploadWidget struct {
	Base
	Accept   string `json:"accept,omitempty"`
	MaxBytes int64  `json:"maxBytes,omitempty"`
}

func (FileUploadWidget) Purpose() string {
	return "A file upload control. Use when the user should provide a file, optionally constrained by type and size."
}

func (w FileUploadWidget) Validate() error {
	if w.MaxBytes < 0 {
		return fieldErr("file-upload", "maxBytes", "maxBytes must be positive when present")
	}
	return nil
}

// DatePickerWidget selects a calendar date, optionally bounded.
type DatePickerWidget struct {
	Base
	MinDate string `json:"minDate,omitempty"`
	MaxDate string `json:"maxDate,omitempty"`
}

func (DatePickerWidget) Purpose() string {
	return "A calendar date picker, optionally bounded by a minimum and maximum date. Use to collect a date."
}

const dateLayout = "2006-01-02"

func (w DatePickerWidget) Validate() error {
	var min, max time.Time
	var err error
	if w.MinDate != "" {
		if min, err = time.Parse(dateLayout, w.MinDate); err != nil {
			return fieldErr("date-picker", "minDate", "minDate must be an ISO date (YYYY-MM-DD)")
		}
	}
	if w.MaxDate != "" {
		if max, err = time.Parse(dateLayout, w.MaxDate); err != nil {
			return fieldErr("date-picker", "maxDate", "maxDate must be an ISO date (YYYY-MM-DD)")
		}
	}
	if w.MinDate != "" && w.MaxDate != "" && min.After(max) {
		return fieldErr("date-picker", "minDate", "minDate must not be after maxDate")
	}
	return nil
}

// Display widgets

// ProgressBarWidget shows determinate progress.
type ProgressBarWidget struct {
	Base
	Value float64 `json:"value"`
	Max   float64 `json:"max"`
}

func (ProgressBarWidget) Purpose() string {
	return "A determinate progress bar. Use to show how far along a long-running task is."
}

func (w ProgressBarWidget) Validate() error {
	if w.Value < 0 {
		return fieldErr("progress-bar", "value", "value must not be negative")
	}
	if w.Max <= 0 {
		return fieldErr("progress-bar", "max", "max must be positive")
	}
	return nil
}

// ThemeSwitcherWidget lets the user pick a visual theme.
type ThemeSwitcherWidget struct {
	Base
	Themes []string `json:"themes"`
}

func (ThemeSwitcherWidget) Purpose() string {
	return "A theme switcher listing available visual themes. Use to let the user restyle the interface."
}

func (w ThemeSwitcherWidget) Validate() error {
	if len(w.Themes) == 0 {
		return fieldErr("theme-switcher", "themes", "at least one theme is required")
	}
	return nil
}

// ImageWidget displays a single image.
type ImageWidget struct {
	Base
	ImageURL string `json:"imageUrl"`
	Alt      string `json:"alt,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

func (ImageWidget) Purpose() string {
	return "A single image with optional alt text and dimensions. Use to show a picture inline."
}

func (w ImageWidget) Validate() error {
	if w.ImageURL == "" {
		return fieldErr("image", "imageUrl", "imageUrl is required")
	}
	return nil
}

// ImageItem is one entry of an ImageCollectionWidget.
type ImageItem struct {
	ImageURL string `json:"imageUrl"`
	Alt      string `json:"alt,omitempty"`
	Action   string `json:"action,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// ImageCollectionWidget displays a gallery of images.
type ImageCollectionWidget struct {
	Base
	Images []ImageItem `json:"images"`
}

func (ImageCollectionWidget) Purpose() string {
	return "A gallery of images, each optionally clickable with its own action. Use to present several pictures at once."
}

func (w ImageCollectionWidget) Validate() error {
	if len(w.Images) == 0 {
		return fieldErr("image-collection", "images", "at least one image is required")
	}
	for i, img := range w.Images {
		if img.ImageURL == "" {
			return fieldErr("image-collection", "images", "image "+strconv.Itoa(i)+" is missing imageUrl")
		}
	}
	return nil
}
