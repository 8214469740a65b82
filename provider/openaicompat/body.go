package openaicompat

import (
	"encoding/json"

	aidra "github.com/nevindra/aidra"
)

// BuildBody converts aidra messages and tool schemas into an OpenAI-format
// ChatRequest. The system instruction is carried as a leading role:"system"
// message; tool-result messages (aidra.RoleTool) pass through as role:"tool"
// with no tool_call_id, since aidra folds a tool result into a single
// plain-text message rather than threading call IDs through history.
func BuildBody(systemInstruction string, messages []aidra.Message, tools []aidra.ToolSchema, model string, opts ...Option) ChatRequest {
	msgs := make([]Message, 0, len(messages)+1)

	if systemInstruction != "" {
		msgs = append(msgs, Message{Role: "system", Content: systemInstruction})
	}

	for _, m := range messages {
		msgs = append(msgs, Message{Role: mapRole(m.Role), Content: m.Content})
	}

	req := ChatRequest{Model: model, Messages: msgs}

	if len(tools) > 0 {
		req.Tools = BuildToolDefs(tools)
	}

	for _, opt := range opts {
		opt(&req)
	}

	return req
}

// BuildToolDefs converts aidra tool schemas to OpenAI tool format.
func BuildToolDefs(tools []aidra.ToolSchema) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params, err := json.Marshal(t.Parameters)
		if err != nil || len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func mapRole(role aidra.MessageRole) string {
	switch role {
	case aidra.RoleAssistant:
		return "assistant"
	case aidra.RoleTool:
		return "tool"
	case aidra.RoleSystem:
		return "system"
	default:
		return "user"
	}
}
