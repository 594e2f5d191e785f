// Package broker defines the pub/sub seam that fans thread events out to
// connected clients. A single-process host uses the in-memory implementation;
// horizontally scaled deployments use the Redis Streams implementation so
// every node sees every thread's events.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventKind discriminates the payload carried by an Event.
type EventKind string

const (
	// EventTurnCreated fires when a turn is appended to a thread.
	EventTurnCreated EventKind = "turn.created"
	// EventActionResult fires when an action handler produces a result.
	EventActionResult EventKind = "action.result"
)

// Event is one thread-scoped occurrence. Data holds the kind-specific
// payload, already JSON-encoded.
type Event struct {
	Kind     EventKind       `json:"kind"`
	ThreadID string          `json:"threadId"`
	TurnID   string          `json:"turnId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Broker publishes and delivers events with per-thread isolation and
// ordered delivery within each thread.
type Broker interface {
	// Publish encodes the event and appends it to the thread's stream,
	// returning the generated event ID.
	Publish(ctx context.Context, threadID string, ev Event) (eventID string, err error)

	// Subscribe opens a stream over the thread's events. An empty
	// lastEventID starts from the next published event; a non-empty one
	// is a start position and resumes from the first retained event after
	// it, so an ID older than the retained history replays everything.
	Subscribe(ctx context.Context, threadID string, lastEventID string) (EventStream, error)

	// Cleanup removes all stored events and active subscriptions for a
	// thread.
	Cleanup(ctx context.Context, threadID string) error
}

// EventStream is ordered consumption of one thread's events. A stream is
// safe for use by a single consumer.
type EventStream interface {
	// Next blocks until an event is available or ctx is done. It returns
	// io.EOF once the stream is closed and drained.
	Next(ctx context.Context) (Envelope, error)

	// Close releases the stream. Next returns io.EOF afterwards.
	Close() error
}

// Envelope pairs an event's broker-assigned ID with its encoded form. IDs
// are unique and ordered within a thread and double as SSE event IDs for
// resumption.
type Envelope struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}

// Event decodes the envelope payload.
func (e Envelope) Event() (Event, error) {
	var ev Event
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return Event{}, fmt.Errorf("broker: decode envelope %s: %w", e.ID, err)
	}
	return ev, nil
}
