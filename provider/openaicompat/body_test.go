package openaicompat

import (
	"encoding/json"
	"testing"

	aidra "github.com/nevindra/aidra"
)

func TestBuildBody_SystemMessage(t *testing.T) {
	messages := []aidra.Message{{Role: aidra.RoleUser, Content: "Hello"}}

	req := BuildBody("You are a helpful assistant.", messages, nil, "gpt-4o")

	if req.Model != "gpt-4o" {
		t.Errorf("expected model 'gpt-4o', got %q", req.Model)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != "system" {
		t.Errorf("expected role 'system', got %q", req.Messages[0].Role)
	}
	if req.Messages[1].Role != "user" {
		t.Errorf("expected role 'user', got %q", req.Messages[1].Role)
	}
}

func TestBuildBody_RoleMapping(t *testing.T) {
	messages := []aidra.Message{
		{Role: aidra.RoleUser, Content: "Hi"},
		{Role: aidra.RoleAssistant, Content: "Hello!"},
		{Role: aidra.RoleTool, Content: "[web_search] found 3 results"},
	}

	req := BuildBody("", messages, nil, "gpt-4o")

	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != "user" {
		t.Errorf("expected role 'user', got %q", req.Messages[0].Role)
	}
	if req.Messages[1].Role != "assistant" {
		t.Errorf("expected role 'assistant', got %q", req.Messages[1].Role)
	}
	if req.Messages[2].Role != "tool" {
		t.Errorf("expected role 'tool', got %q", req.Messages[2].Role)
	}
}

func TestBuildBody_WithTools(t *testing.T) {
	messages := []aidra.Message{{Role: aidra.RoleUser, Content: "Hello"}}
	tools := []aidra.ToolSchema{
		{
			Name:        "get_weather",
			Description: "Get the current weather",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"city": map[string]any{"type": "string"}}},
		},
	}

	req := BuildBody("", messages, tools, "gpt-4o")

	if len(req.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(req.Tools))
	}

	tool := req.Tools[0]
	if tool.Type != "function" {
		t.Errorf("expected type 'function', got %q", tool.Type)
	}
	if tool.Function.Name != "get_weather" {
		t.Errorf("expected name 'get_weather', got %q", tool.Function.Name)
	}

	var params map[string]any
	if err := json.Unmarshal(tool.Function.Parameters, &params); err != nil {
		t.Fatalf("failed to parse parameters: %v", err)
	}
	if params["type"] != "object" {
		t.Errorf("expected parameters type 'object', got %v", params["type"])
	}
}

func TestBuildBody_NoTools(t *testing.T) {
	req := BuildBody("", []aidra.Message{{Role: aidra.RoleUser, Content: "Hello"}}, nil, "gpt-4o")
	if len(req.Tools) != 0 {
		t.Errorf("expected no tools, got %d", len(req.Tools))
	}
}

func TestBuildToolDefs(t *testing.T) {
	tools := []aidra.ToolSchema{
		{Name: "search", Description: "Search the web", Parameters: map[string]any{"type": "object"}},
		{Name: "calc", Description: "Calculate expression", Parameters: nil},
	}

	result := BuildToolDefs(tools)

	if len(result) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result))
	}
	if result[0].Function.Name != "search" {
		t.Errorf("expected name 'search', got %q", result[0].Function.Name)
	}

	var params map[string]any
	if err := json.Unmarshal(result[1].Function.Parameters, &params); err != nil {
		t.Fatalf("failed to parse empty parameters: %v", err)
	}
	if len(params) != 0 {
		t.Errorf("expected empty params object, got %v", params)
	}
}

func TestBuildBody_JSONRoundTrip(t *testing.T) {
	messages := []aidra.Message{
		{Role: aidra.RoleUser, Content: "Hello"},
		{Role: aidra.RoleAssistant, Content: "Hi!"},
		{Role: aidra.RoleTool, Content: "results"},
	}
	tools := []aidra.ToolSchema{{Name: "search", Description: "Search", Parameters: map[string]any{"type": "object"}}}

	req := BuildBody("Be helpful.", messages, tools, "gpt-4o")

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to parse round-tripped JSON: %v", err)
	}
	if parsed["model"] != "gpt-4o" {
		t.Errorf("expected model 'gpt-4o' in JSON, got %v", parsed["model"])
	}

	msgs, ok := parsed["messages"].([]any)
	if !ok {
		t.Fatal("expected messages array in JSON")
	}
	if len(msgs) != 4 {
		t.Errorf("expected 4 messages in JSON (system + 3), got %d", len(msgs))
	}
}
