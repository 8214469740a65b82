package aidra

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newAgentLoopConfig(t *testing.T, llm LLMAdapter) (AgentLoopConfig, *MessageRepository, *MemoryRepository, *fakeMessageBackend) {
	t.Helper()
	ctx := context.Background()
	agentID := "agent-" + t.Name()

	msgBackend := newFakeMessageBackend()
	messages := NewMessageRepository(agentID, msgBackend)
	if err := messages.Load(ctx); err != nil {
		t.Fatalf("load messages: %v", err)
	}

	memBackend := newFakeMemoryBackend()
	memory := NewMemoryRepository(agentID, memBackend)
	if err := memory.Load(ctx); err != nil {
		t.Fatalf("load memory: %v", err)
	}

	cfg := AgentLoopConfig{
		AgentID:  agentID,
		Memory:   memory,
		Messages: messages,
		Files:    stubFileStore{},
		Web:      stubWebAdapter{},
		LLM:      llm,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return cfg, messages, memory, msgBackend
}

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func assertEventTypes(t *testing.T, events []Event, want ...EventType) {
	t.Helper()
	if len(events) != len(want) {
		t.Fatalf("got %d events %v, want %d events %v", len(events), eventTypes(events), len(want), want)
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Fatalf("event %d type = %s, want %s (full sequence: %v)", i, ev.Type, want[i], eventTypes(events))
		}
	}
}

// Scenario 1: a single LLM turn that returns a final message.
func TestAgentLoopSingleTurnResponse(t *testing.T) {
	llm := &scriptedLLM{turns: []scriptedTurn{
		{msg: FinalMessage{Thinking: "thinking about it", IsFinal: true, Text: "hello there"}},
	}}
	cfg, messages, _, _ := newAgentLoopConfig(t, llm)

	events := drainEvents(RunAgentLoop(context.Background(), cfg, "hi"))
	assertEventTypes(t, events, EventThinking, EventMessage)
	if events[1].Text != "hello there" {
		t.Fatalf("MESSAGE text = %q, want %q", events[1].Text, "hello there")
	}

	history := messages.GetMessageHistory()
	if len(history) != 2 {
		t.Fatalf("message history = %d, want 2 (user + assistant)", len(history))
	}
	if history[0].Role != RoleUser || history[0].Content != "hi" {
		t.Fatalf("first message = %+v, want user %q", history[0], "hi")
	}
	if history[1].Role != RoleAssistant || history[1].Content != "hello there" {
		t.Fatalf("second message = %+v, want assistant %q", history[1], "hello there")
	}
}

// Scenario 2: one tool step, then a final message.
func TestAgentLoopToolStepThenResponse(t *testing.T) {
	llm := &scriptedLLM{turns: []scriptedTurn{
		{msg: FinalMessage{Thinking: "need to take a note", IsFinal: false, ToolCalls: []ToolInvocation{
			{ID: "call-1", Name: "memory_create", Arguments: map[string]any{"label": "notes", "description": "scratch", "content": "remember this"}},
		}}},
		{msg: FinalMessage{Thinking: "done", IsFinal: true, Text: "noted"}},
	}}
	cfg, messages, memory, _ := newAgentLoopConfig(t, llm)

	events := drainEvents(RunAgentLoop(context.Background(), cfg, "take a note"))
	assertEventTypes(t, events, EventThinking, EventToolCall, EventToolResult, EventThinking, EventMessage)

	block, ok := memory.Get("notes")
	if !ok || block.Content != "remember this" {
		t.Fatalf("memory_create did not persist, got %+v ok=%v", block, ok)
	}

	history := messages.GetMessageHistory()
	wantRoles := []MessageRole{RoleUser, RoleTool, RoleAssistant}
	if len(history) != len(wantRoles) {
		t.Fatalf("message history = %+v, want roles %v", history, wantRoles)
	}
	for i, m := range history {
		if m.Role != wantRoles[i] {
			t.Fatalf("message %d role = %s, want %s (full history: %+v)", i, m.Role, wantRoles[i], history)
		}
	}
}

// Scenario 3: an explicit non-final turn with an empty tool list is a
// malformed step, not a reply — it must yield TOOL_ERROR and continue the
// loop rather than being treated as MESSAGE.
func TestAgentLoopEmptyToolListYieldsToolError(t *testing.T) {
	llm := &scriptedLLM{turns: []scriptedTurn{
		{msg: FinalMessage{Thinking: "hmm", IsFinal: false}},
		{msg: FinalMessage{Thinking: "recovered", IsFinal: true, Text: "sorted now"}},
	}}
	cfg, _, _, _ := newAgentLoopConfig(t, llm)

	events := drainEvents(RunAgentLoop(context.Background(), cfg, "go"))
	assertEventTypes(t, events, EventThinking, EventToolError, EventThinking, EventMessage)

	toolErr := events[1].ToolResult
	if toolErr == nil || toolErr.Err == nil {
		t.Fatalf("TOOL_ERROR event missing error: %+v", events[1])
	}
	if !strings.Contains(toolErr.Err.Error(), "empty tool list") {
		t.Fatalf("TOOL_ERROR = %q, want substring %q", toolErr.Err.Error(), "empty tool list")
	}
}

// Scenario 4: exhausting the step budget after at least one tool ran
// persists a fallback assistant message and reports the exhaustion error.
func TestAgentLoopMaxStepsExhaustionPersistsFallback(t *testing.T) {
	toolTurn := func() scriptedTurn {
		return scriptedTurn{msg: FinalMessage{Thinking: "working", IsFinal: false, ToolCalls: []ToolInvocation{
			{ID: NewID(), Name: "memory_create", Arguments: map[string]any{"label": "scratch", "description": "d", "content": "c"}},
		}}}
	}
	llm := &scriptedLLM{turns: []scriptedTurn{toolTurn(), toolTurn()}}
	cfg, messages, _, _ := newAgentLoopConfig(t, llm)
	cfg.MaxSteps = 2

	events := drainEvents(RunAgentLoop(context.Background(), cfg, "keep going"))

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("last event type = %s, want ERROR", last.Type)
	}
	if !strings.Contains(last.Err.Error(), "wasn't able to complete my response") {
		t.Fatalf("ERROR text = %q, want substring %q", last.Err.Error(), "wasn't able to complete my response")
	}

	history := messages.GetMessageHistory()
	if len(history) == 0 || history[len(history)-1].Role != RoleAssistant {
		t.Fatalf("expected a fallback assistant message persisted after exhausting steps, got %+v", history)
	}
	if !strings.Contains(history[len(history)-1].Content, "wasn't able to complete") {
		t.Fatalf("fallback message content = %q", history[len(history)-1].Content)
	}
}

// Exhausting the step budget without ever executing a tool must not
// persist a fallback assistant message.
func TestAgentLoopMaxStepsExhaustionNoFallbackWithoutToolExecution(t *testing.T) {
	llm := &scriptedLLM{turns: []scriptedTurn{
		{msg: FinalMessage{Thinking: "confused", IsFinal: false}},
		{msg: FinalMessage{Thinking: "still confused", IsFinal: false}},
	}}
	cfg, messages, _, _ := newAgentLoopConfig(t, llm)
	cfg.MaxSteps = 2

	events := drainEvents(RunAgentLoop(context.Background(), cfg, "hello"))

	last := events[len(events)-1]
	if last.Type != EventError || !strings.Contains(last.Err.Error(), "wasn't able to complete my response") {
		t.Fatalf("last event = %+v, want max-steps ERROR", last)
	}

	for _, m := range messages.GetMessageHistory() {
		if m.Role == RoleAssistant {
			t.Fatalf("no fallback assistant message should be persisted when no tool ran, got %+v", messages.GetMessageHistory())
		}
	}
}

// Scenario 5: an LLM failure on the very first step must not persist the
// user message at all.
func TestAgentLoopLLMFailureOnFirstStepLeavesStoreUnchanged(t *testing.T) {
	llm := &scriptedLLM{turns: []scriptedTurn{
		{err: errors.New("provider unavailable")},
	}}
	cfg, messages, _, backend := newAgentLoopConfig(t, llm)
	before := len(backend.msgs[cfg.AgentID])

	events := drainEvents(RunAgentLoop(context.Background(), cfg, "hello"))
	assertEventTypes(t, events, EventError)
	if !strings.Contains(events[0].Err.Error(), "Agent turn failed") {
		t.Fatalf("ERROR text = %q, want substring %q", events[0].Err.Error(), "Agent turn failed")
	}

	if got := len(messages.GetMessageHistory()); got != 0 {
		t.Fatalf("message cache = %d, want 0 (unchanged on step-0 failure)", got)
	}
	if got := len(backend.msgs[cfg.AgentID]); got != before {
		t.Fatalf("backend message count = %d, want unchanged %d", got, before)
	}
}

// Scenario 8: web_fetch must refuse a non-public URL before ever reaching
// the WebAdapter, guarding against SSRF into internal infrastructure.
func TestAgentLoopWebFetchBlocksPrivateURL(t *testing.T) {
	llm := &scriptedLLM{turns: []scriptedTurn{
		{msg: FinalMessage{IsFinal: false, ToolCalls: []ToolInvocation{
			{ID: "call-1", Name: "web_fetch", Arguments: map[string]any{"url": "http://127.0.0.1/admin"}},
		}}},
		{msg: FinalMessage{IsFinal: true, Text: "blocked, moving on"}},
	}}
	cfg, _, _, _ := newAgentLoopConfig(t, llm)
	web := &trackingWebAdapter{}
	cfg.Web = web

	events := drainEvents(RunAgentLoop(context.Background(), cfg, "fetch internal admin page"))
	assertEventTypes(t, events, EventThinking, EventToolCall, EventToolError, EventThinking, EventMessage)

	if web.fetchCalls != 0 {
		t.Fatalf("Fetch should never be called for a non-public URL, got %d calls", web.fetchCalls)
	}
	toolErr := events[2].ToolResult
	if toolErr == nil || !errors.Is(toolErr.Err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden tool result, got %+v", toolErr)
	}
}
