package aidra

import "context"

// ToolInvocation is a single tool call the LLM asked the agent loop to run.
type ToolInvocation struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolStep records one resolved tool call and its result text for replay
// back into the running transcript on the next LLM turn.
type ToolStep struct {
	Invocation ToolInvocation
	Result     string
	Err        error
}

// FinalMessage is a single LLM turn. IsFinal discriminates the two variants
// the service spec defines as a sum type: a final assistant message (IsFinal
// true, Text carries the reply) versus a tool step (IsFinal false, ToolCalls
// carries the calls to dispatch — possibly empty, which the agent loop
// treats as a malformed turn rather than a reply). Thinking carries the
// model's reasoning trace, when the provider exposes one; empty otherwise.
type FinalMessage struct {
	Thinking  string
	IsFinal   bool
	Text      string
	ToolCalls []ToolInvocation
}

// LLMAdapter is the single seam between the agent loop and a concrete model
// provider (provider/gemini, provider/openaicompat). Implementations own
// prompt construction, tool-schema translation, and response parsing.
type LLMAdapter interface {
	// UserAgentTurn sends the running transcript (system context plus
	// message history) and available tool schemas to the model, returning
	// its next turn.
	UserAgentTurn(ctx context.Context, systemContext string, history []Message, tools []ToolSchema) (FinalMessage, error)
	// SummarizeChunk asks the model to summarize a bounded slice of
	// conversation history into prose suitable for a memory block.
	SummarizeChunk(ctx context.Context, messages []Message) (string, error)
	// MergeSummaries asks the model to fold several chunk summaries and any
	// prior running summary into one coherent summary.
	MergeSummaries(ctx context.Context, priorSummary string, chunkSummaries []string) (string, error)
}

// ToolSchema describes one callable tool to the LLM adapter, in the
// provider-agnostic shape every LLMAdapter implementation must translate to
// its own function-calling wire format.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}
