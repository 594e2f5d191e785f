// Package chatclient defines the seam to the language model that produces
// assistant turns. The host composes the system instructions (including the
// widget protocol from widgetservice.BuildInstructions) and the thread
// history into Messages; the client returns raw model text, which the host
// then runs through extract.Parser.
package chatclient

import "context"

// Role identifies a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client generates the next assistant reply for a conversation. The
// returned text may contain delimited widget fragments.
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, messages []Message) (string, error)

func (f ClientFunc) Generate(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}
