// Package widgetservice provides the capability layer on top of the widget
// model: schema/tool-descriptor generation for advertising widget shapes to
// a language model, and the action registry that maps user-triggered action
// names to declared payload shapes and typed handlers.
//
// Descriptor generation reflects JSON schemas from the representative
// template instances in a widget.TemplateRegistry and memoizes the result.
// Actions are registered either directly with a handler or bound to a
// handler descriptor resolved through a HandlerContainer, in the manner of
// a dependency-injection container; a failed resolution degrades to "no
// handler available" rather than an error.
package widgetservice
