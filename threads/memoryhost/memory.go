// Package memoryhost provides an in-memory threads.Store. History is
// process-local and lost on restart; it suits single-node hosts and tests.
package memoryhost

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatware/chatwidgets-go/threads"
)

// Store implements threads.Store with a per-thread slice under a RWMutex.
type Store struct {
	mu       sync.RWMutex
	byThread map[string][]threads.Turn
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{byThread: make(map[string][]threads.Turn)}
}

// AppendTurn implements threads.Store.
func (s *Store) AppendTurn(ctx context.Context, turn *threads.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.byThread[turn.ThreadID] = append(s.byThread[turn.ThreadID], *turn)
	s.mu.Unlock()
	return nil
}

// ListTurns implements threads.Store.
func (s *Store) ListTurns(ctx context.Context, threadID string) ([]threads.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.byThread[threadID]
	out := make([]threads.Turn, len(history))
	copy(out, history)
	return out, nil
}

// DeleteThread implements threads.Store.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.byThread, threadID)
	s.mu.Unlock()
	return nil
}

var _ threads.Store = (*Store)(nil)
