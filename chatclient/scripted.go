package chatclient

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is a Client that replays canned replies in order. It exists for
// tests and examples; once the script is exhausted, Generate fails.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	calls   [][]Message
}

// NewScripted builds a scripted client over the given replies.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Generate implements Client.
func (s *Scripted) Generate(_ context.Context, messages []Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messages)
	if len(s.replies) == 0 {
		return "", fmt.Errorf("chatclient: script exhausted after %d calls", len(s.calls))
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

// Calls returns the message sets passed to Generate, in order.
func (s *Scripted) Calls() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Message, len(s.calls))
	copy(out, s.calls)
	return out
}

var _ Client = (*Scripted)(nil)
