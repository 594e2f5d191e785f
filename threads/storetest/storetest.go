// Package storetest is a conformance suite for threads.Store
// implementations, run by each host package against its own factory.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/chatware/chatwidgets-go/threads"
)

// Factory creates a fresh store for one test.
type Factory func(t *testing.T) threads.Store

// Run executes the conformance suite against the factory.
func Run(t *testing.T, factory Factory) {
	t.Run("AppendAssignsID", func(t *testing.T) { testAppendAssignsID(t, factory) })
	t.Run("ListPreservesOrder", func(t *testing.T) { testListPreservesOrder(t, factory) })
	t.Run("UnknownThreadIsEmpty", func(t *testing.T) { testUnknownThreadIsEmpty(t, factory) })
	t.Run("ThreadIsolation", func(t *testing.T) { testThreadIsolation(t, factory) })
	t.Run("DeleteThread", func(t *testing.T) { testDeleteThread(t, factory) })
}

func testAppendAssignsID(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	turn := threads.Turn{
		ThreadID:  "t1",
		Role:      threads.RoleUser,
		Text:      "hello",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.AppendTurn(ctx, &turn); err != nil {
		t.Fatalf("append: %v", err)
	}
	if turn.ID == "" {
		t.Fatal("no ID assigned")
	}

	got, err := s.ListTurns(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != turn.ID || got[0].Text != "hello" {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func testListPreservesOrder(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		turn := threads.Turn{ThreadID: "t1", Role: threads.RoleAssistant, Text: text}
		if err := s.AppendTurn(ctx, &turn); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ListTurns(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(texts) {
		t.Fatalf("expected %d turns, got %d", len(texts), len(got))
	}
	for i, text := range texts {
		if got[i].Text != text {
			t.Fatalf("position %d: got %q, want %q", i, got[i].Text, text)
		}
	}
}

func testUnknownThreadIsEmpty(t *testing.T, factory Factory) {
	s := factory(t)
	got, err := s.ListTurns(context.Background(), "never-existed")
	if err != nil {
		t.Fatalf("unknown thread must not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %+v", got)
	}
}

func testThreadIsolation(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	a := threads.Turn{ThreadID: "a", Role: threads.RoleUser, Text: "for a"}
	b := threads.Turn{ThreadID: "b", Role: threads.RoleUser, Text: "for b"}
	if err := s.AppendTurn(ctx, &a); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendTurn(ctx, &b); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListTurns(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "for a" {
		t.Fatalf("thread a sees: %+v", got)
	}
}

func testDeleteThread(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	turn := threads.Turn{ThreadID: "t1", Role: threads.RoleUser, Text: "hello"}
	if err := s.AppendTurn(ctx, &turn); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteThread(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.ListTurns(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("history survived deletion: %+v", got)
	}
	if err := s.DeleteThread(ctx, "never-existed"); err != nil {
		t.Fatalf("delete of unknown thread: %v", err)
	}
}
