package aidra

import "time"

// Normative constants from the service specification. These are the exact
// values implementations must honor; nothing here is a tunable default.
const (
	// MaxConversationHistory bounds the cached recent-message slice.
	MaxConversationHistory = 50
	// MaxAgentSteps bounds runAgentLoop regardless of the caller's maxSteps.
	MaxAgentSteps = 20
	// MaxToolResultChars truncates a single tool result, counted in bytes,
	// before it is saved to the message history as a tool message.
	MaxToolResultChars = 10_000
	// MaxToolConcurrency bounds the number of tool calls executed
	// concurrently within a single agent-loop step.
	MaxToolConcurrency = 5
	// DefaultMemoryBlockLimit is the character limit applied to a memory
	// block created via the memory_create tool when no limit is given.
	DefaultMemoryBlockLimit = 500
	// LLMTimeout bounds a single call to the LLM adapter.
	LLMTimeout = 60 * time.Second
	// ToolTimeout bounds a single tool execution.
	ToolTimeout = 30 * time.Second
	// DefaultPoolSize is the worker pool's fixed capacity when unconfigured.
	DefaultPoolSize = 4
	// SummarizationChunkSize is the number of messages per summarization
	// chunk, before the user/assistant pair-boundary extension rule.
	SummarizationChunkSize = 20
	// SummarizationPruneCount is the fixed number of oldest cached messages
	// a completed summarization run prunes, regardless of how many messages
	// were actually folded into the summary.
	SummarizationPruneCount = MaxConversationHistory / 2
	// PublicRateLimitPerMinute bounds unauthenticated HTTP requests.
	PublicRateLimitPerMinute = 5
	// AuthedRateLimitPerMinute bounds authenticated HTTP requests.
	AuthedRateLimitPerMinute = 30
	// StaleRunReason is the error text recorded on rows swept by
	// MarkStaleAsFailed.
	StaleRunReason = "marked failed: process restarted while run was in progress (server restart sweep)"
	// ConversationSummaryLabel is the memory block label summarization
	// output is written to.
	ConversationSummaryLabel = "conversation_summary"
	// WebhookMaxBodyBytes rejects oversize webhook payloads with 413.
	WebhookMaxBodyBytes = 1 << 20 // 1 MiB
	// WebhookMaxSkew rejects webhook timestamps older than this.
	WebhookMaxSkew = 5 * time.Minute
)
