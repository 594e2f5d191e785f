// Package memorybroker provides an in-memory broker.Broker built on Go
// channels. State is process-local, which suits single-node hosts and
// tests; multi-node deployments should use redisbroker.
package memorybroker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/chatware/chatwidgets-go/broker"
)

// Broker implements broker.Broker with per-thread in-memory queues.
type Broker struct {
	mu           sync.RWMutex
	threads      map[string]*thread
	eventCounter atomic.Int64
}

// thread is one isolated event log with its live subscribers.
type thread struct {
	mu          sync.RWMutex
	events      []broker.Envelope
	subscribers map[*subscription]struct{}
	closed      bool
}

// subscription is one consumer's view of a thread: a backlog snapshot taken
// at subscribe time, then live delivery over ch. The channel is closed
// exactly once, by shutdown, whether teardown comes from Close or from the
// broker's Cleanup.
type subscription struct {
	thread  *thread
	pending []broker.Envelope
	ch      chan broker.Envelope
	ctx     context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
}

// New creates an empty in-memory broker.
func New() *Broker {
	return &Broker{threads: make(map[string]*thread)}
}

func (b *Broker) threadFor(threadID string) *thread {
	b.mu.Lock()
	defer b.mu.Unlock()
	th, ok := b.threads[threadID]
	if !ok {
		th = &thread{subscribers: make(map[*subscription]struct{})}
		b.threads[threadID] = th
	}
	return th
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, threadID string, ev broker.Event) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("memorybroker: encode event: %w", err)
	}
	envelope := broker.Envelope{
		ID:   strconv.FormatInt(b.eventCounter.Add(1), 10),
		Data: data,
	}

	th := b.threadFor(threadID)
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.closed {
		return "", fmt.Errorf("memorybroker: thread %q has been cleaned up", threadID)
	}
	th.events = append(th.events, envelope)

	for sub := range th.subscribers {
		select {
		case sub.ch <- envelope:
		case <-sub.ctx.Done():
			delete(th.subscribers, sub)
		default:
			// Subscriber is backed up; it will miss this event and can
			// resume by ID.
		}
	}
	return envelope.ID, nil
}

// Subscribe implements broker.Broker. Event IDs are positional: a non-empty
// lastEventID replays every retained event with a greater ID, so a stale ID
// older than the retained history replays everything, matching the Redis
// stream semantics. The backlog is snapshotted here and drained by Next, so
// Subscribe never blocks on a slow consumer.
func (b *Broker) Subscribe(ctx context.Context, threadID string, lastEventID string) (broker.EventStream, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	after := int64(-1)
	if lastEventID != "" {
		n, err := strconv.ParseInt(lastEventID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("memorybroker: malformed event ID %q", lastEventID)
		}
		after = n
	}

	th := b.threadFor(threadID)
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.closed {
		return nil, fmt.Errorf("memorybroker: thread %q has been cleaned up", threadID)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		thread: th,
		ch:     make(chan broker.Envelope, 100),
		ctx:    subCtx,
		cancel: cancel,
	}
	if after >= 0 {
		for _, ev := range th.events {
			if id, err := strconv.ParseInt(ev.ID, 10, 64); err == nil && id > after {
				sub.pending = append(sub.pending, ev)
			}
		}
	}
	th.subscribers[sub] = struct{}{}
	return sub, nil
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, threadID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	b.mu.Lock()
	th, ok := b.threads[threadID]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.threads, threadID)
	b.mu.Unlock()

	th.mu.Lock()
	defer th.mu.Unlock()
	th.closed = true
	for sub := range th.subscribers {
		sub.shutdown()
	}
	th.subscribers = make(map[*subscription]struct{})
	th.events = nil
	return nil
}

// shutdown tears the subscription down exactly once. Both Close and the
// broker's Cleanup funnel through the CAS here, so the channel has a single
// closer.
func (s *subscription) shutdown() {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
		close(s.ch)
	}
}

// Next implements broker.EventStream.
func (s *subscription) Next(ctx context.Context) (broker.Envelope, error) {
	if s.closed.Load() {
		return broker.Envelope{}, io.EOF
	}
	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		return ev, nil
	}
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return broker.Envelope{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return broker.Envelope{}, ctx.Err()
	case <-s.ctx.Done():
		if s.closed.Load() {
			return broker.Envelope{}, io.EOF
		}
		return broker.Envelope{}, s.ctx.Err()
	}
}

// Close implements broker.EventStream.
func (s *subscription) Close() error {
	s.shutdown()
	s.thread.mu.Lock()
	delete(s.thread.subscribers, s)
	s.thread.mu.Unlock()
	return nil
}

var (
	_ broker.Broker      = (*Broker)(nil)
	_ broker.EventStream = (*subscription)(nil)
)
