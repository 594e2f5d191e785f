package widgetservice

import (
	"encoding/json"
	"strings"

	"github.com/chatware/chatwidgets-go/extract"
)

// BuildInstructions renders the system-prompt section that teaches a
// language model how to emit widgets: the delimiter protocol, one block per
// available widget shape, and the declared actions with their payload
// shapes. Descriptor and action sets are read at call time; call again
// after either changes.
func BuildInstructions(provider *DescriptorProvider, actions *ActionsContainer) string {
	var sb strings.Builder

	sb.WriteString("## Interactive widgets\n\n")
	sb.WriteString("You may embed interactive widgets in your replies. Each widget is a single JSON object wrapped in ")
	sb.WriteString(extract.OpenDelimiter)
	sb.WriteString(" and ")
	sb.WriteString(extract.CloseDelimiter)
	sb.WriteString(" delimiters, placed inline in your prose. The \"type\" field selects the widget shape. ")
	sb.WriteString("Emit only shapes listed below, and only fields their schemas declare.\n")

	if provider != nil {
		descriptors := provider.Descriptors()
		if len(descriptors) > 0 {
			sb.WriteString("\n### Available widgets\n")
			for _, d := range descriptors {
				writeCapability(&sb, d.Name, d.Description, d.Schema)
			}
		}
	}

	if actions != nil {
		metas := actions.All()
		if len(metas) > 0 {
			sb.WriteString("\n### Actions\n")
			sb.WriteString("\nWhen the user interacts with a widget, its action name is dispatched back with the payload shape declared here. Use these names in widget action fields.\n")
			for _, m := range metas {
				writeCapability(&sb, m.Name, m.Description, m.PayloadSchema)
			}
		}
	}

	return sb.String()
}

func writeCapability(sb *strings.Builder, name, description string, schema any) {
	sb.WriteString("\n#### ")
	sb.WriteString(name)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	if raw, err := json.Marshal(schema); err == nil {
		sb.WriteString("```json\n")
		sb.Write(raw)
		sb.WriteString("\n```\n")
	}
}
