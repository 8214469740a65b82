package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	aidra "github.com/nevindra/aidra"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s := New(dbPath)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

func TestStore_LoadAll_Empty(t *testing.T) {
	s := newTestStore(t)
	blocks, err := s.LoadAll(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("expected no blocks, got %d", len(blocks))
	}
}

func TestStore_UpsertAndLoadAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := aidra.MemoryBlock{Label: "persona", Description: "who I am", Content: "a helpful assistant", UpdatedAt: time.Now()}
	if err := s.Upsert(ctx, "agent-1", b); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	blocks, err := s.LoadAll(ctx, "agent-1")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Label != "persona" || blocks[0].Content != "a helpful assistant" {
		t.Errorf("unexpected block: %+v", blocks[0])
	}
}

func TestStore_UpsertReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, "agent-1", aidra.MemoryBlock{Label: "persona", Content: "v1", UpdatedAt: time.Now()})
	s.Upsert(ctx, "agent-1", aidra.MemoryBlock{Label: "persona", Content: "v2", UpdatedAt: time.Now()})

	blocks, _ := s.LoadAll(ctx, "agent-1")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block after replace, got %d", len(blocks))
	}
	if blocks[0].Content != "v2" {
		t.Errorf("expected content 'v2', got %q", blocks[0].Content)
	}
}

func TestStore_UpsertPreservesFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, "agent-1", aidra.MemoryBlock{
		Label: "user_profile", Content: "facts", Protected: true, ReadOnly: true, Limit: 500, UpdatedAt: time.Now(),
	})

	blocks, _ := s.LoadAll(ctx, "agent-1")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if !blocks[0].Protected || !blocks[0].ReadOnly || blocks[0].Limit != 500 {
		t.Errorf("unexpected block flags: %+v", blocks[0])
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, "agent-1", aidra.MemoryBlock{Label: "scratch", Content: "temp", UpdatedAt: time.Now()})
	if err := s.Delete(ctx, "agent-1", "scratch"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	blocks, _ := s.LoadAll(ctx, "agent-1")
	if len(blocks) != 0 {
		t.Fatalf("expected 0 blocks after delete, got %d", len(blocks))
	}
}

func TestStore_DeleteAbsentIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete(context.Background(), "agent-1", "nonexistent"); err != nil {
		t.Fatalf("Delete of absent label should be a no-op, got error: %v", err)
	}
}

func TestStore_AgentIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, "agent-1", aidra.MemoryBlock{Label: "persona", Content: "agent one", UpdatedAt: time.Now()})
	s.Upsert(ctx, "agent-2", aidra.MemoryBlock{Label: "persona", Content: "agent two", UpdatedAt: time.Now()})

	blocks1, _ := s.LoadAll(ctx, "agent-1")
	blocks2, _ := s.LoadAll(ctx, "agent-2")
	if len(blocks1) != 1 || blocks1[0].Content != "agent one" {
		t.Errorf("agent-1 isolation broken: %+v", blocks1)
	}
	if len(blocks2) != 1 || blocks2[0].Content != "agent two" {
		t.Errorf("agent-2 isolation broken: %+v", blocks2)
	}
}

func TestStore_LoadAllOrderedByLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, "agent-1", aidra.MemoryBlock{Label: "zzz", Content: "z", UpdatedAt: time.Now()})
	s.Upsert(ctx, "agent-1", aidra.MemoryBlock{Label: "aaa", Content: "a", UpdatedAt: time.Now()})

	blocks, _ := s.LoadAll(ctx, "agent-1")
	if len(blocks) != 2 || blocks[0].Label != "aaa" || blocks[1].Label != "zzz" {
		t.Errorf("expected labels ordered aaa, zzz, got %+v", blocks)
	}
}
