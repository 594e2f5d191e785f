// Package brokertest is a conformance suite for broker.Broker
// implementations. Each implementation package runs the suite against its
// own factory so the in-memory and Redis brokers stay behaviourally
// aligned.
package brokertest

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/chatware/chatwidgets-go/broker"
)

// Factory creates a fresh broker for one test.
type Factory func(t *testing.T) broker.Broker

// Run executes the full conformance suite against the factory.
func Run(t *testing.T, factory Factory) {
	t.Run("PublishThenReceive", func(t *testing.T) { testPublishThenReceive(t, factory) })
	t.Run("ResumeFromEventID", func(t *testing.T) { testResumeFromEventID(t, factory) })
	t.Run("MultipleSubscribers", func(t *testing.T) { testMultipleSubscribers(t, factory) })
	t.Run("ThreadIsolation", func(t *testing.T) { testThreadIsolation(t, factory) })
	t.Run("OrderedDelivery", func(t *testing.T) { testOrderedDelivery(t, factory) })
	t.Run("ContextCancellation", func(t *testing.T) { testContextCancellation(t, factory) })
	t.Run("Cleanup", func(t *testing.T) { testCleanup(t, factory) })
	t.Run("CleanupWithActiveSubscriber", func(t *testing.T) { testCleanupWithActiveSubscriber(t, factory) })
	t.Run("ResumeOverLargeBacklog", func(t *testing.T) { testResumeOverLargeBacklog(t, factory) })
	t.Run("ResumeFromStaleEventID", func(t *testing.T) { testResumeFromStaleEventID(t, factory) })
}

func testEvent(threadID, turnID string) broker.Event {
	data, _ := json.Marshal(map[string]string{"text": "hello"})
	return broker.Event{
		Kind:     broker.EventTurnCreated,
		ThreadID: threadID,
		TurnID:   turnID,
		Data:     data,
	}
}

func mustSubscribe(t *testing.T, ctx context.Context, b broker.Broker, threadID, lastEventID string) broker.EventStream {
	t.Helper()
	stream, err := b.Subscribe(ctx, threadID, lastEventID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = stream.Close() })
	return stream
}

func testPublishThenReceive(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const threadID = "thread-basic"
	stream := mustSubscribe(t, ctx, b, threadID, "")

	eventID, err := b.Publish(ctx, threadID, testEvent(threadID, "turn-1"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if eventID == "" {
		t.Fatal("publish returned empty event ID")
	}

	envelope, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if envelope.ID != eventID {
		t.Fatalf("envelope ID = %q, want %q", envelope.ID, eventID)
	}
	ev, err := envelope.Event()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != broker.EventTurnCreated || ev.TurnID != "turn-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func testResumeFromEventID(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const threadID = "thread-resume"
	// An initial subscriber forces the thread to retain history in
	// implementations that lazily create state.
	first := mustSubscribe(t, ctx, b, threadID, "")

	id1, err := b.Publish(ctx, threadID, testEvent(threadID, "turn-1"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := b.Publish(ctx, threadID, testEvent(threadID, "turn-2"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Next(ctx); err != nil {
		t.Fatal(err)
	}

	resumed := mustSubscribe(t, ctx, b, threadID, id1)
	envelope, err := resumed.Next(ctx)
	if err != nil {
		t.Fatalf("resumed next: %v", err)
	}
	if envelope.ID != id2 {
		t.Fatalf("resumed from %q got %q, want %q", id1, envelope.ID, id2)
	}
}

func testMultipleSubscribers(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const threadID = "thread-fanout"
	s1 := mustSubscribe(t, ctx, b, threadID, "")
	s2 := mustSubscribe(t, ctx, b, threadID, "")

	eventID, err := b.Publish(ctx, threadID, testEvent(threadID, "turn-1"))
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range []broker.EventStream{s1, s2} {
		envelope, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("subscriber %d: %v", i, err)
		}
		if envelope.ID != eventID {
			t.Fatalf("subscriber %d got %q, want %q", i, envelope.ID, eventID)
		}
	}
}

func testThreadIsolation(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	other := mustSubscribe(t, ctx, b, "thread-b", "")
	mine := mustSubscribe(t, ctx, b, "thread-a", "")

	if _, err := b.Publish(ctx, "thread-a", testEvent("thread-a", "turn-1")); err != nil {
		t.Fatal(err)
	}
	if _, err := mine.Next(ctx); err != nil {
		t.Fatalf("own thread: %v", err)
	}

	shortCtx, shortCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer shortCancel()
	if envelope, err := other.Next(shortCtx); err == nil {
		t.Fatalf("event leaked across threads: %+v", envelope)
	}
}

func testOrderedDelivery(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const threadID = "thread-order"
	stream := mustSubscribe(t, ctx, b, threadID, "")

	const n = 10
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := b.Publish(ctx, threadID, testEvent(threadID, "turn"))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	for i := 0; i < n; i++ {
		envelope, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if envelope.ID != ids[i] {
			t.Fatalf("position %d: got %q, want %q", i, envelope.ID, ids[i])
		}
	}
}

func testContextCancellation(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream := mustSubscribe(t, ctx, b, "thread-cancel", "")

	nextCtx, nextCancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := stream.Next(nextCtx)
		done <- err
	}()
	nextCancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Next returned nil after cancellation")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Next did not observe cancellation")
	}
}

func testCleanup(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const threadID = "thread-cleanup"
	if _, err := b.Publish(ctx, threadID, testEvent(threadID, "turn-1")); err != nil {
		t.Fatal(err)
	}
	if err := b.Cleanup(ctx, threadID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	// Cleanup of an absent thread is a no-op.
	if err := b.Cleanup(ctx, "never-existed"); err != nil {
		t.Fatalf("cleanup of unknown thread: %v", err)
	}

	// Publishing after cleanup either restarts the thread or fails
	// cleanly; it must not deliver pre-cleanup history to new subscribers.
	stream := mustSubscribe(t, ctx, b, threadID, "")
	shortCtx, shortCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer shortCancel()
	if envelope, err := stream.Next(shortCtx); err == nil {
		t.Fatalf("received pre-cleanup event: %+v", envelope)
	}
}

func testCleanupWithActiveSubscriber(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const threadID = "thread-cleanup-live"
	stream, err := b.Subscribe(ctx, threadID, "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := b.Publish(ctx, threadID, testEvent(threadID, "turn-1")); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Next(ctx); err != nil {
		t.Fatalf("next before cleanup: %v", err)
	}

	if err := b.Cleanup(ctx, threadID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	// Closing after cleanup tore the stream down must be safe, and further
	// reads must report end of stream rather than blocking or panicking.
	if err := stream.Close(); err != nil {
		t.Fatalf("close after cleanup: %v", err)
	}
	if _, err := stream.Next(ctx); err != io.EOF {
		t.Fatalf("next after close = %v, want io.EOF", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func testResumeOverLargeBacklog(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const threadID = "thread-backlog"
	// Well beyond any subscriber buffer, so resumption cannot rely on
	// pushing the whole backlog through a bounded channel.
	const n = 150
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := b.Publish(ctx, threadID, testEvent(threadID, "turn"))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	resumed := mustSubscribe(t, ctx, b, threadID, ids[0])
	for i := 1; i < n; i++ {
		envelope, err := resumed.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if envelope.ID != ids[i] {
			t.Fatalf("position %d: got %q, want %q", i, envelope.ID, ids[i])
		}
	}
}

func testResumeFromStaleEventID(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const threadID = "thread-stale-resume"
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := b.Publish(ctx, threadID, testEvent(threadID, "turn"))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	// "0" predates every event ID either implementation can mint, so it
	// acts as a start position and replays the full retained history.
	resumed := mustSubscribe(t, ctx, b, threadID, "0")
	for i := 0; i < 3; i++ {
		envelope, err := resumed.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if envelope.ID != ids[i] {
			t.Fatalf("position %d: got %q, want %q", i, envelope.ID, ids[i])
		}
	}
}
