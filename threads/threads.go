// Package threads models conversation history: ordered turns per thread,
// each carrying its prose and the encoded widget fragments that accompanied
// it. Storage is behind the Store interface with in-memory and Redis hosts.
package threads

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chatware/chatwidgets-go/widget"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry in a thread's history. Widgets are stored in their
// encoded wire form so history survives restarts and registry changes; they
// are re-decoded on demand with DecodeWidgets.
type Turn struct {
	ID        string            `json:"id"`
	ThreadID  string            `json:"threadId"`
	Role      Role              `json:"role"`
	Text      string            `json:"text"`
	Widgets   []json.RawMessage `json:"widgets,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Store persists thread history. Implementations must keep turns in append
// order per thread and be safe for concurrent use.
type Store interface {
	// AppendTurn adds a turn to its thread, creating the thread as needed.
	// A turn with an empty ID gets one assigned; the stored ID is written
	// back through the pointer.
	AppendTurn(ctx context.Context, turn *Turn) error

	// ListTurns returns a thread's turns in append order. An unknown
	// thread yields an empty history, not an error.
	ListTurns(ctx context.Context, threadID string) ([]Turn, error)

	// DeleteThread removes a thread and its history. Deleting an unknown
	// thread is a no-op.
	DeleteThread(ctx context.Context, threadID string) error
}

// EncodeWidgets serializes widgets into the wire form stored on a Turn.
func EncodeWidgets(c *widget.Codec, widgets []widget.Widget) ([]json.RawMessage, error) {
	if len(widgets) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(widgets))
	for _, w := range widgets {
		raw, err := c.Encode(w)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// DecodeWidgets rebuilds typed widgets from a turn's stored fragments.
func DecodeWidgets(c *widget.Codec, fragments []json.RawMessage) ([]widget.Widget, error) {
	if len(fragments) == 0 {
		return nil, nil
	}
	out := make([]widget.Widget, 0, len(fragments))
	for _, raw := range fragments {
		w, err := c.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// ReleaseWidgets hands widgets back after use, invoking the Recycle hook on
// any that implement widget.Recyclable so pooled variants can reset state.
func ReleaseWidgets(widgets []widget.Widget) {
	for _, w := range widgets {
		if r, ok := w.(widget.Recyclable); ok {
			r.Recycle()
		}
	}
}
