package file

import (
	"context"
	"testing"
)

func TestStoreWriteReadRoundtrip(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	entry, err := s.Write(ctx, "agent-1", "notes/todo.txt", "buy milk")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if entry.Size != len("buy milk") {
		t.Fatalf("size = %d, want %d", entry.Size, len("buy milk"))
	}

	got, err := s.Read(ctx, "agent-1", "notes/todo.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Content != "buy milk" {
		t.Fatalf("content = %q, want %q", got.Content, "buy milk")
	}
}

func TestStorePathTraversalRejected(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if _, err := s.Write(ctx, "agent-1", "../escape.txt", "x"); err == nil {
		t.Fatal("expected an error for a path escaping the agent workspace")
	}
}

func TestStoreAgentsAreIsolated(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if _, err := s.Write(ctx, "agent-1", "secret.txt", "agent-1 data"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Read(ctx, "agent-2", "secret.txt"); err == nil {
		t.Fatal("expected agent-2 to not see agent-1's file")
	}
}

func TestStoreListAndDelete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if _, err := s.Write(ctx, "agent-1", "a.txt", "a"); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if _, err := s.Write(ctx, "agent-1", "b.txt", "b"); err != nil {
		t.Fatalf("write b: %v", err)
	}

	entries, err := s.List(ctx, "agent-1", ".")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	if err := s.Delete(ctx, "agent-1", "a.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Read(ctx, "agent-1", "a.txt"); err == nil {
		t.Fatal("expected a.txt to be gone after delete")
	}
}
