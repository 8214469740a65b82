package gemini

import (
	"encoding/json"
	"testing"

	aidra "github.com/nevindra/aidra"
)

func TestMapRole(t *testing.T) {
	cases := map[aidra.MessageRole]string{
		aidra.RoleAssistant: "model",
		aidra.RoleUser:      "user",
		aidra.RoleTool:      "user",
		aidra.RoleSystem:    "user",
	}
	for role, want := range cases {
		if got := mapRole(role); got != want {
			t.Errorf("mapRole(%s) = %q, want %q", role, got, want)
		}
	}
}

func TestBuildBodyIncludesToolDeclarations(t *testing.T) {
	g := New("key", "gemini-2.0-flash")
	body := g.buildBody("be helpful", nil, []aidra.ToolSchema{
		{Name: "web_search", Description: "search the web", Parameters: map[string]any{"type": "object"}},
	})

	tools, ok := body["tools"].([]map[string]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("expected one tools entry, got %#v", body["tools"])
	}
	decls, ok := tools[0]["functionDeclarations"].([]map[string]any)
	if !ok || len(decls) != 1 || decls[0]["name"] != "web_search" {
		t.Fatalf("unexpected function declarations: %#v", tools[0])
	}
}

func TestGeminiResponseUnmarshalsFunctionCall(t *testing.T) {
	raw := []byte(`{
		"candidates": [{
			"content": {
				"parts": [{"functionCall": {"name": "web_search", "args": {"query": "weather"}}}]
			}
		}]
	}`)

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed.Candidates) != 1 || len(parsed.Candidates[0].Content.Parts) != 1 {
		t.Fatalf("unexpected parse result: %#v", parsed)
	}
	fc := parsed.Candidates[0].Content.Parts[0].FunctionCall
	if fc == nil || fc.Name != "web_search" {
		t.Fatalf("expected function call web_search, got %#v", fc)
	}
}
