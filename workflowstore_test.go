package aidra

import (
	"context"
	"testing"
	"time"
)

// Scenario 7: a restart sweep must fail only rows still Running, leaving
// terminal rows untouched.
func TestMarkStaleAsFailedSweepsOnlyRunningRows(t *testing.T) {
	ctx := context.Background()
	store := newFakeWorkflowStore()

	running := WorkflowRun{ID: "run-running", AgentID: "agent-1", Workflow: SummarizeWorkflowName, Status: WorkflowRunning, StartedAt: time.Now().Add(-time.Hour)}
	completed := WorkflowRun{ID: "run-done", AgentID: "agent-1", Workflow: SummarizeWorkflowName, Status: WorkflowSucceeded, StartedAt: time.Now().Add(-time.Hour), FinishedAt: time.Now().Add(-50 * time.Minute)}
	if err := store.Create(ctx, running); err != nil {
		t.Fatalf("create running: %v", err)
	}
	if err := store.Create(ctx, completed); err != nil {
		t.Fatalf("create completed: %v", err)
	}

	n, err := MarkStaleAsFailed(ctx, store)
	if err != nil {
		t.Fatalf("MarkStaleAsFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d rows, want 1", n)
	}

	got, err := store.Get(ctx, "run-running")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != WorkflowFailed {
		t.Fatalf("status = %v, want Failed", got.Status)
	}
	if got.Error != StaleRunReason {
		t.Fatalf("error = %q, want %q", got.Error, StaleRunReason)
	}
	if got.FinishedAt.IsZero() {
		t.Fatalf("FinishedAt should be set")
	}

	untouched, err := store.Get(ctx, "run-done")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if untouched.Status != WorkflowSucceeded {
		t.Fatalf("completed row status changed to %v", untouched.Status)
	}
}

func TestMarkStaleAsFailedNoRunningRows(t *testing.T) {
	ctx := context.Background()
	store := newFakeWorkflowStore()
	n, err := MarkStaleAsFailed(ctx, store)
	if err != nil {
		t.Fatalf("MarkStaleAsFailed: %v", err)
	}
	if n != 0 {
		t.Fatalf("swept %d rows, want 0", n)
	}
}
