package aidra

import (
	"context"
	"fmt"
	"testing"
)

func TestMessageRepositorySaveAppendsBackendAndCache(t *testing.T) {
	ctx := context.Background()
	backend := newFakeMessageBackend()
	repo := NewMessageRepository("agent-1", backend)
	if err := repo.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := repo.Save(ctx, RoleUser, "hi"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := repo.Save(ctx, RoleAssistant, "hello"); err != nil {
		t.Fatalf("save: %v", err)
	}

	if got := len(repo.GetMessageHistory()); got != 2 {
		t.Fatalf("cache = %d, want 2", got)
	}
	got, err := backend.Count(ctx, "agent-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if got != 2 {
		t.Fatalf("backend count = %d, want 2", got)
	}
}

func TestMessageRepositoryCacheBoundedByMaxHistory(t *testing.T) {
	ctx := context.Background()
	backend := newFakeMessageBackend()
	repo := NewMessageRepository("agent-2", backend)
	if err := repo.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	for i := 0; i < MaxConversationHistory+10; i++ {
		if _, err := repo.Save(ctx, RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	history := repo.GetMessageHistory()
	if len(history) != MaxConversationHistory {
		t.Fatalf("cache = %d, want bounded to %d", len(history), MaxConversationHistory)
	}
	if history[0].Content != "m10" {
		t.Fatalf("oldest retained message = %q, want %q (first 10 evicted)", history[0].Content, "m10")
	}

	total, err := backend.Count(ctx, "agent-2")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != MaxConversationHistory+10 {
		t.Fatalf("backend retains %d, want all %d appended (append-only)", total, MaxConversationHistory+10)
	}
}

func TestMessageRepositoryPruneOnlyTouchesCache(t *testing.T) {
	ctx := context.Background()
	backend := newFakeMessageBackend()
	repo := NewMessageRepository("agent-3", backend)
	if err := repo.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := repo.Save(ctx, RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	removed := repo.Prune(4)
	if removed != 4 {
		t.Fatalf("Prune removed = %d, want 4", removed)
	}
	if got := len(repo.GetMessageHistory()); got != 6 {
		t.Fatalf("cache after prune = %d, want 6", got)
	}

	total, err := backend.Count(ctx, "agent-3")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 10 {
		t.Fatalf("backend count after prune = %d, want unchanged 10", total)
	}
}

func TestMessageRepositoryPruneClampsToCacheLength(t *testing.T) {
	ctx := context.Background()
	backend := newFakeMessageBackend()
	repo := NewMessageRepository("agent-4", backend)
	if err := repo.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := repo.Save(ctx, RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if removed := repo.Prune(25); removed != 3 {
		t.Fatalf("Prune(25) with only 3 cached = %d, want 3", removed)
	}
	if got := len(repo.GetMessageHistory()); got != 0 {
		t.Fatalf("cache = %d, want 0", got)
	}
}

func TestGetMessagesForSummarizationBelowThreshold(t *testing.T) {
	ctx := context.Background()
	backend := newFakeMessageBackend()
	repo := NewMessageRepository("agent-5", backend)
	if err := repo.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < MaxConversationHistory; i++ {
		if _, err := repo.Save(ctx, RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	backlog, err := repo.GetMessagesForSummarization(ctx)
	if err != nil {
		t.Fatalf("GetMessagesForSummarization: %v", err)
	}
	if len(backlog) != 0 {
		t.Fatalf("backlog = %d, want 0 when totalCount == MaxConversationHistory", len(backlog))
	}
}

func TestGetMessagesForSummarizationAboveThreshold(t *testing.T) {
	ctx := context.Background()
	backend := newFakeMessageBackend()
	repo := NewMessageRepository("agent-6", backend)
	if err := repo.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < MaxConversationHistory+15; i++ {
		if _, err := repo.Save(ctx, RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	backlog, err := repo.GetMessagesForSummarization(ctx)
	if err != nil {
		t.Fatalf("GetMessagesForSummarization: %v", err)
	}
	if len(backlog) != 15 {
		t.Fatalf("backlog = %d, want 15 (totalCount - MaxConversationHistory)", len(backlog))
	}
	if backlog[0].Content != "m0" || backlog[len(backlog)-1].Content != "m14" {
		t.Fatalf("backlog out of order or wrong range: first=%q last=%q", backlog[0].Content, backlog[len(backlog)-1].Content)
	}
}
