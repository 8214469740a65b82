package openaicompat

import (
	"encoding/json"

	aidra "github.com/nevindra/aidra"
)

// ParseResponse converts an OpenAI-format ChatResponse into an
// aidra.FinalMessage, extracting content and tool calls from choices[0].
func ParseResponse(resp ChatResponse) aidra.FinalMessage {
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return aidra.FinalMessage{}
	}

	msg := resp.Choices[0].Message
	calls := ParseToolCalls(msg.ToolCalls)
	return aidra.FinalMessage{
		IsFinal:   len(calls) == 0,
		Text:      msg.Content,
		ToolCalls: calls,
	}
}

// ParseToolCalls converts OpenAI tool call requests to aidra.ToolInvocation.
// OpenAI returns function.arguments as a JSON string; each call is assigned
// a fresh ID since aidra doesn't thread provider-issued tool_call_id values
// back through a response turn.
func ParseToolCalls(tcs []ToolCallRequest) []aidra.ToolInvocation {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]aidra.ToolInvocation, 0, len(tcs))
	for _, tc := range tcs {
		var args map[string]any
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out = append(out, aidra.ToolInvocation{ID: aidra.NewID(), Name: tc.Function.Name, Arguments: args})
	}
	return out
}
