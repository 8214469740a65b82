package aidra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// EventType tags one item on the agent loop's streaming event channel.
type EventType string

const (
	EventThinking   EventType = "THINKING"
	EventMessage    EventType = "MESSAGE"
	EventToolCall   EventType = "TOOL_CALL"
	EventToolResult EventType = "TOOL_RESULT"
	EventToolError  EventType = "TOOL_ERROR"
	EventError      EventType = "ERROR"
)

// Event is one item streamed out of RunAgentLoop.
type Event struct {
	Type       EventType
	Text       string
	ToolCall   *ToolInvocation
	ToolResult *ToolStep
	Err        error
}

// ToolHandler executes one tool invocation's arguments and returns its
// result text, or an error if the call failed.
type ToolHandler func(ctx context.Context, agentID string, args map[string]any) (string, error)

// AgentLoopConfig wires an agent loop's collaborators. AgentID, Memory,
// Messages, Files, Web and LLM are required. SummarizeTrigger and Tracer may
// be nil, a nil Auditor means NoopFileAuditor, a nil Logger means
// slog.Default, and a zero MaxSteps means MaxAgentSteps.
type AgentLoopConfig struct {
	AgentID  string
	Memory   *MemoryRepository
	Messages *MessageRepository
	Files    FileStore
	Web      WebAdapter
	LLM      LLMAdapter
	Auditor  FileAuditor
	Tracer   Tracer
	Logger   *slog.Logger

	// MaxSteps overrides MaxAgentSteps if smaller and positive; the loop
	// never exceeds MaxAgentSteps regardless of this value.
	MaxSteps int

	// SummarizeTrigger, if set, is invoked once at the start of a loop run
	// whenever the cached history has already reached MaxConversationHistory.
	// It runs in its own goroutine so it never blocks the user-facing turn,
	// but RunAgentLoop waits for it to finish before closing its event
	// channel, so a caller that drains the channel to completion observes a
	// consistent message/memory store afterward. Errors are the trigger's to
	// log; they are never surfaced as a loop Event.
	SummarizeTrigger func(ctx context.Context, agentID string) error
}

// toolSchemas is the fixed tool set every agent loop exposes to the LLM.
func toolSchemas() []ToolSchema {
	return []ToolSchema{
		{Name: "memory_create", Description: "Create a new labelled memory block.",
			Parameters: jsonObject(map[string]string{"label": "string", "description": "string", "content": "string"}, "label")},
		{Name: "memory_replace", Description: "Replace the first exact occurrence of old_content in a memory block with new_content.",
			Parameters: jsonObject(map[string]string{"label": "string", "old_content": "string", "new_content": "string"}, "label", "old_content", "new_content")},
		{Name: "memory_insert", Description: "Insert content at the beginning or end of a memory block.",
			Parameters: jsonObject(map[string]string{"label": "string", "content": "string", "position": "string"}, "label", "content", "position")},
		{Name: "memory_delete", Description: "Delete a memory block by label.",
			Parameters: jsonObject(map[string]string{"label": "string"}, "label")},
		{Name: "file_read", Description: "Read a file from the agent's workspace.",
			Parameters: jsonObject(map[string]string{"path": "string"}, "path")},
		{Name: "file_write", Description: "Write content to a file in the agent's workspace.",
			Parameters: jsonObject(map[string]string{"path": "string", "content": "string"}, "path", "content")},
		{Name: "file_list", Description: "List entries under a directory in the agent's workspace.",
			Parameters: jsonObject(map[string]string{"path": "string"}, "path")},
		{Name: "file_delete", Description: "Delete a file from the agent's workspace.",
			Parameters: jsonObject(map[string]string{"path": "string"}, "path")},
		{Name: "web_search", Description: "Search the web for a query and return ranked results.",
			Parameters: jsonObject(map[string]string{"query": "string"}, "query")},
		{Name: "web_fetch", Description: "Fetch and extract the readable content of a public URL.",
			Parameters: jsonObject(map[string]string{"url": "string"}, "url")},
	}
}

func jsonObject(props map[string]string, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": map[string]any{}}
	p := schema["properties"].(map[string]any)
	for name, typ := range props {
		p[name] = map[string]any{"type": typ}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// buildDispatchTable binds the fixed tool set to cfg's concrete
// collaborators.
func buildDispatchTable(cfg AgentLoopConfig) map[string]ToolHandler {
	return map[string]ToolHandler{
		"memory_create": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			return cfg.Memory.ToolCreateMemory(ctx, stringArg(args, "label"), stringArg(args, "description"), stringArg(args, "content"), DefaultMemoryBlockLimit)
		},
		"memory_replace": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			return cfg.Memory.ToolReplaceMemory(ctx, stringArg(args, "label"), stringArg(args, "old_content"), stringArg(args, "new_content"))
		},
		"memory_insert": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			return cfg.Memory.ToolInsertMemory(ctx, stringArg(args, "label"), stringArg(args, "content"), MemoryInsertPosition(stringArg(args, "position")))
		},
		"memory_delete": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			return cfg.Memory.ToolDeleteMemory(ctx, stringArg(args, "label"))
		},
		"file_read": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			entry, err := cfg.Files.Read(ctx, agentID, stringArg(args, "path"))
			if err != nil {
				return "", err
			}
			return entry.Content, nil
		},
		"file_write": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			entry, err := cfg.Files.Write(ctx, agentID, stringArg(args, "path"), stringArg(args, "content"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", entry.Size, entry.Path), nil
		},
		"file_list": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			entries, err := cfg.Files.List(ctx, agentID, stringArg(args, "path"))
			if err != nil {
				return "", err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.IsDir {
					names = append(names, e.Path+"/")
				} else {
					names = append(names, e.Path)
				}
			}
			return strings.Join(names, "\n"), nil
		},
		"file_delete": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			if err := cfg.Files.Delete(ctx, agentID, stringArg(args, "path")); err != nil {
				return "", err
			}
			return "deleted", nil
		},
		"web_search": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			results, err := cfg.Web.Search(ctx, stringArg(args, "query"))
			if err != nil {
				return "", err
			}
			var sb strings.Builder
			for _, r := range results {
				fmt.Fprintf(&sb, "%s\n%s\n%s\n\n", r.Title, r.URL, r.Snippet)
			}
			return sb.String(), nil
		},
		"web_fetch": func(ctx context.Context, agentID string, args map[string]any) (string, error) {
			target := stringArg(args, "url")
			if !IsPublicURL(target) {
				return "", wrapErr(ErrForbidden, fmt.Sprintf("web_fetch: %q does not resolve to a public address", target))
			}
			result, err := cfg.Web.Fetch(ctx, target)
			if err != nil {
				return "", err
			}
			return result.Content, nil
		},
	}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// RunAgentLoop drives cfg.LLM through a bounded tool-calling loop on behalf
// of one user message, streaming tagged events on the returned channel. The
// channel is closed when the loop terminates, whether by a final assistant
// message, an error, or exhausting its step budget.
//
// The user message is persisted only once a turn actually succeeds, never
// eagerly: if the very first adapter call fails, the message store is left
// exactly as it was found. Each step beyond that: one LLMTimeout-bounded
// call to the adapter, a THINKING event carrying the turn's reasoning text,
// then either a MESSAGE event (loop ends) or, for a tool-step turn with an
// empty call list, a single TOOL_ERROR and another pass through the loop.
// A non-empty tool step fans out as a batch of TOOL_CALL events followed by
// concurrent ToolTimeout-bounded dispatch (at most
// MaxToolConcurrency in flight) each closed out with TOOL_RESULT or
// TOOL_ERROR, before looping back for another adapter call with the tool
// results folded into history.
func RunAgentLoop(ctx context.Context, cfg AgentLoopConfig, userMessage string) <-chan Event {
	out := make(chan Event, 8)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxSteps := MaxAgentSteps
	if cfg.MaxSteps > 0 && cfg.MaxSteps < MaxAgentSteps {
		maxSteps = cfg.MaxSteps
	}

	go func() {
		defer close(out)

		var summarizeDone chan struct{}
		if cfg.SummarizeTrigger != nil && len(cfg.Messages.GetMessageHistory()) >= MaxConversationHistory {
			summarizeDone = make(chan struct{})
			go func() {
				defer close(summarizeDone)
				if err := cfg.SummarizeTrigger(ctx, cfg.AgentID); err != nil {
					logger.Error("agentloop: pre-flight summarization failed", "agent_id", cfg.AgentID, "error", err)
				}
			}()
		}
		defer func() {
			if summarizeDone != nil {
				<-summarizeDone
			}
		}()

		dispatch := buildDispatchTable(cfg)
		tools := toolSchemas()

		var span Span
		if cfg.Tracer != nil {
			ctx, span = cfg.Tracer.Start(ctx, "agent.loop", StringAttr("agent_id", cfg.AgentID))
			defer span.End()
		}

		userMessageSaved := false
		toolExecuted := false

		for step := 0; step < maxSteps; step++ {
			llmCtx, cancel := context.WithTimeout(ctx, LLMTimeout)
			turn, err := cfg.LLM.UserAgentTurn(llmCtx, cfg.Memory.ToXML(), cfg.Messages.GetMessageHistory(), tools)
			cancel()
			if err != nil {
				wrapped := fmt.Errorf("agentloop: Agent turn failed: %w", err)
				if span != nil {
					span.Error(wrapped)
				}
				out <- Event{Type: EventError, Err: wrapped}
				return
			}

			if !userMessageSaved {
				if _, err := cfg.Messages.Save(ctx, RoleUser, userMessage); err != nil {
					out <- Event{Type: EventError, Err: fmt.Errorf("agentloop: save user message: %w", err)}
					return
				}
				userMessageSaved = true
			}

			out <- Event{Type: EventThinking, Text: turn.Thinking}

			if turn.IsFinal {
				if _, err := cfg.Messages.Save(ctx, RoleAssistant, turn.Text); err != nil {
					out <- Event{Type: EventError, Err: fmt.Errorf("agentloop: save assistant message: %w", err)}
					return
				}
				out <- Event{Type: EventMessage, Text: turn.Text}
				return
			}

			if len(turn.ToolCalls) == 0 {
				emptyStep := ToolStep{Err: wrapErr(ErrValidation, "agentloop: empty tool list in a non-final turn")}
				out <- Event{Type: EventToolError, ToolResult: &emptyStep}
				continue
			}

			if turn.Text != "" {
				if _, err := cfg.Messages.Save(ctx, RoleAssistant, turn.Text); err != nil {
					out <- Event{Type: EventError, Err: fmt.Errorf("agentloop: save assistant message: %w", err)}
					return
				}
			}

			toolExecuted = true
			steps := dispatchTools(ctx, out, dispatch, cfg.Auditor, cfg.AgentID, turn.ToolCalls)

			for _, s := range steps {
				content := s.Result
				if s.Err != nil {
					content = fmt.Sprintf("error: %v", s.Err)
				}
				if len(content) > MaxToolResultChars {
					content = content[:MaxToolResultChars]
				}
				if _, err := cfg.Messages.Save(ctx, RoleTool, fmt.Sprintf("[%s] %s", s.Invocation.Name, content)); err != nil {
					out <- Event{Type: EventError, Err: fmt.Errorf("agentloop: save tool message: %w", err)}
					return
				}
			}
		}

		if toolExecuted {
			fallback := "I wasn't able to complete my response within the allowed steps. Please try again or rephrase your request."
			if _, err := cfg.Messages.Save(ctx, RoleAssistant, fallback); err != nil {
				out <- Event{Type: EventError, Err: fmt.Errorf("agentloop: save fallback message: %w", err)}
				return
			}
		}
		out <- Event{Type: EventError, Err: fmt.Errorf("agentloop: I wasn't able to complete my response within the allowed steps (exceeded %d steps)", maxSteps)}
	}()

	return out
}

// dispatchTools runs calls concurrently, bounded to MaxToolConcurrency,
// each under its own ToolTimeout. Every TOOL_CALL event is emitted, in call
// order, before any call starts; each TOOL_RESULT/TOOL_ERROR event is
// emitted as its call completes. Results are returned in call order
// regardless of completion order, for deterministic transcript replay.
func dispatchTools(ctx context.Context, out chan<- Event, dispatch map[string]ToolHandler, auditor FileAuditor, agentID string, calls []ToolInvocation) []ToolStep {
	if auditor == nil {
		auditor = NoopFileAuditor{}
	}

	steps := make([]ToolStep, len(calls))
	sem := make(chan struct{}, MaxToolConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex // guards out, shared across goroutines

	for i := range calls {
		out <- Event{Type: EventToolCall, ToolCall: &calls[i]}
	}

	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call ToolInvocation) {
			defer wg.Done()
			defer func() { <-sem }()

			handler, ok := dispatch[call.Name]
			if !ok {
				steps[i] = ToolStep{Invocation: call, Err: wrapErr(ErrValidation, fmt.Sprintf("unknown tool %q", call.Name))}
				mu.Lock()
				out <- Event{Type: EventToolError, ToolResult: &steps[i]}
				mu.Unlock()
				return
			}

			ToolPending(auditor, agentID, call.Name, pathArg(call.Arguments))

			callCtx, cancel := context.WithTimeout(ctx, ToolTimeout)
			result, err := handler(callCtx, agentID, call.Arguments)
			cancel()

			steps[i] = ToolStep{Invocation: call, Result: result, Err: err}
			if err != nil {
				ToolFailure(auditor, agentID, call.Name, pathArg(call.Arguments), err)
				mu.Lock()
				out <- Event{Type: EventToolError, ToolResult: &steps[i]}
				mu.Unlock()
				return
			}
			ToolSuccess(auditor, agentID, call.Name, pathArg(call.Arguments))
			mu.Lock()
			out <- Event{Type: EventToolResult, ToolResult: &steps[i]}
			mu.Unlock()
		}(i, call)
	}

	wg.Wait()
	return steps
}

func pathArg(args map[string]any) string {
	if p := stringArg(args, "path"); p != "" {
		return p
	}
	return stringArg(args, "url")
}
