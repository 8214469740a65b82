package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	aidra "github.com/nevindra/aidra"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestAppendAndLoadRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	msgs := []aidra.Message{
		{ID: aidra.NewID(), AgentID: "agent-1", Role: aidra.RoleUser, Content: "Hello", CreatedAt: base},
		{ID: aidra.NewID(), AgentID: "agent-1", Role: aidra.RoleAssistant, Content: "Hi!", CreatedAt: base.Add(time.Second)},
		{ID: aidra.NewID(), AgentID: "agent-1", Role: aidra.RoleUser, Content: "Bye", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, m := range msgs {
		if err := s.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := s.LoadRecent(ctx, "agent-1", 2)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(recent))
	}
	if recent[0].Content != "Hi!" || recent[1].Content != "Bye" {
		t.Errorf("expected chronological order [Hi!, Bye], got %+v", recent)
	}
}

func TestLoadRange(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		s.Append(ctx, aidra.Message{
			ID: aidra.NewID(), AgentID: "agent-1", Role: aidra.RoleUser,
			Content: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	chunk, err := s.LoadRange(ctx, "agent-1", 1, 2)
	if err != nil {
		t.Fatalf("LoadRange: %v", err)
	}
	if len(chunk) != 2 || chunk[0].Content != "b" || chunk[1].Content != "c" {
		t.Fatalf("expected [b, c], got %+v", chunk)
	}
}

func TestCount(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Append(ctx, aidra.Message{ID: aidra.NewID(), AgentID: "agent-1", Role: aidra.RoleUser, Content: "x", CreatedAt: time.Now()})
	}

	n, err := s.Count(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected count 3, got %d", n)
	}
}

func TestMessageAgentIsolation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Append(ctx, aidra.Message{ID: aidra.NewID(), AgentID: "agent-1", Role: aidra.RoleUser, Content: "a", CreatedAt: time.Now()})
	s.Append(ctx, aidra.Message{ID: aidra.NewID(), AgentID: "agent-2", Role: aidra.RoleUser, Content: "b", CreatedAt: time.Now()})

	n1, _ := s.Count(ctx, "agent-1")
	n2, _ := s.Count(ctx, "agent-2")
	if n1 != 1 || n2 != 1 {
		t.Errorf("expected 1 message per agent, got agent-1=%d agent-2=%d", n1, n2)
	}
}
