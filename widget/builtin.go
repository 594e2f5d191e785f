package widget

import "reflect"

func registerBuiltin[W any, P widgetPtr[W]](r *Registry) {
	t := reflect.TypeFor[W]()
	err := r.Register(Registration{
		Discriminator: DeriveDiscriminator(t),
		GoType:        t,
		Decode:        decodeAs[W, P],
		BuiltIn:       true,
	})
	if err != nil {
		// Only reachable if the built-in set itself is misconfigured.
		panic(err)
	}
}

// NewBuiltinRegistry returns a registry populated with every built-in
// variant shape under its derived discriminator.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	registerBuiltin[ButtonWidget](r)
	registerBuiltin[CardWidget](r)
	registerBuiltin[InputWidget](r)
	registerBuiltin[TextareaWidget](r)
	registerBuiltin[DropdownWidget](r)
	registerBuiltin[SliderWidget](r)
	registerBuiltin[ToggleWidget](r)
	registerBuiltin[FileUploadWidget](r)
	registerBuiltin[DatePickerWidget](r)
	registerBuiltin[MultiSelectWidget](r)
	registerBuiltin[ProgressBarWidget](r)
	registerBuiltin[ThemeSwitcherWidget](r)
	registerBuiltin[ImageWidget](r)
	registerBuiltin[ImageCollectionWidget](r)
	registerBuiltin[FormWidget](r)
	return r
}

// NewBuiltinTemplates returns a template registry populated with one
// representative instance per built-in variant.
func NewBuiltinTemplates() *TemplateRegistry {
	r := NewTemplateRegistry()
	half := 50.0
	templates := []Widget{
		&ButtonWidget{Base: Base{Label: "Confirm", Action: "confirm"}},
		&CardWidget{Base: Base{Label: "Plan", Action: "select-plan"}, Title: "Pro plan", Description: "Unlimited projects"},
		&InputWidget{Base: Base{Label: "Email", Action: "email"}, Placeholder: "you@example.com", MaxLength: 120},
		&TextareaWidget{Base: Base{Label: "Feedback", Action: "feedback"}, Rows: 4},
		&DropdownWidget{Base: Base{Label: "Country", Action: "country"}, Options: []string{"Canada", "Germany", "Japan"}},
		&SliderWidget{Base: Base{Label: "Volume", Action: "volume"}, Min: 0, Max: 100, Step: 1, Default: &half},
		&ToggleWidget{Base: Base{Label: "Notifications", Action: "notifications"}, DefaultValue: true},
		&FileUploadWidget{Base: Base{Label: "Attachment", Action: "attachment"}, Accept: "application/pdf", MaxBytes: 5 << 20},
		&DatePickerWidget{Base: Base{Label: "Start date", Action: "start-date"}, MinDate: "2024-01-01"},
		&MultiSelectWidget{Base: Base{Label: "Toppings", Action: "toppings"}, Options: []string{"Cheese", "Olives", "Basil"}},
		&ProgressBarWidget{Base: Base{Label: "Importing", Action: "import-progress"}, Value: 3, Max: 10},
		&ThemeSwitcherWidget{Base: Base{Label: "Theme", Action: "theme"}, Themes: []string{"light", "dark"}},
		&ImageWidget{Base: Base{Label: "Preview", Action: "preview"}, ImageURL: "https://example.com/preview.png", Alt: "Preview"},
		&ImageCollectionWidget{Base: Base{Label: "Gallery", Action: "gallery"}, Images: []ImageItem{{ImageURL: "https://example.com/a.png", Alt: "First"}}},
		&FormWidget{
			Base:  Base{Label: "Contact", Action: "contact"},
			Title: "Contact details",
			Fields: []FormField{
				{Name: "email", Label: "Email", Type: "input", Required: true},
			},
			Actions: []FormAction{
				{Type: "submit", Label: "Send"},
				{Type: "cancel", Label: "Discard"},
			},
		},
	}
	for _, w := range templates {
		if err := r.Register(Discriminator(w), w); err != nil {
			panic(err)
		}
	}
	return r
}
