package aidra

import (
	"context"
	"fmt"
)

// SummarizeWorkflowName identifies the summarization workflow in
// WorkflowRun rows and worker-pool checkout annotations.
const SummarizeWorkflowName = "summarize_conversation"

// SummarizeData is the workflow-specific payload for the summarization
// workflow: the backlog it collected, how that backlog was chunked, each
// chunk's summary, the merged result, and how many cached messages were
// pruned once that result was stored.
type SummarizeData struct {
	Messages       []Message
	PriorSummary   string
	Chunks         [][]Message
	ChunkSummaries []string
	Merged         string
	PrunedCount    int
}

// chunkMessages splits messages into chunks of at most size, extending a
// chunk by one message whenever its boundary would otherwise split a
// user/assistant pair: if the last message included in a chunk is RoleUser
// and the next message is RoleAssistant, that assistant message is pulled
// into the same chunk. Pure and side-effect free.
func chunkMessages(messages []Message, size int) [][]Message {
	if len(messages) == 0 {
		return nil
	}
	var chunks [][]Message
	for i := 0; i < len(messages); {
		end := i + size
		if end > len(messages) {
			end = len(messages)
		}
		if end < len(messages) && messages[end-1].Role == RoleUser && messages[end].Role == RoleAssistant {
			end++
		}
		chunks = append(chunks, messages[i:end])
		i = end
	}
	return chunks
}

// NewSummarizationWorkflow builds the chunked map-reduce summarization
// workflow: collect the unsummarized backlog, split it into fixed-size
// chunks along user/assistant pair boundaries, summarize each chunk
// concurrently, merge the chunk summaries into the running
// conversation_summary memory block, then prune the oldest half of the
// cached message history.
//
// Graph: collect (load the backlog and prior summary, or terminate if the
// backlog is empty) -> chunk (pure split) -> summarize-chunks (parallel LLM
// fold per chunk) -> merge (LLM folds chunk summaries into the running
// summary) -> store (persist summary, prune cache).
func NewSummarizationWorkflow(llm LLMAdapter) WorkflowDefinition[*SummarizeData] {
	return DefineWorkflow(SummarizeWorkflowName, func(state *AgentState[*SummarizeData]) *Flow[*AgentState[*SummarizeData]] {
		collect := NewNode(NodeConfig[*AgentState[*SummarizeData], struct{}, []Message]{
			Name: "collect",
			Exec: func(ctx context.Context, _ struct{}) ([]Message, error) {
				return state.Messages.GetMessagesForSummarization(ctx)
			},
			Post: func(ctx context.Context, s *AgentState[*SummarizeData], _ struct{}, messages []Message) (Action, error) {
				s.Data.Messages = messages
				if block, ok := s.Memory.Get(ConversationSummaryLabel); ok {
					s.Data.PriorSummary = block.Content
				}
				if len(messages) == 0 {
					return "skip", nil
				}
				return DefaultAction, nil
			},
		})

		chunk := NewNode(NodeConfig[*AgentState[*SummarizeData], []Message, [][]Message]{
			Name: "chunk",
			Prep: func(ctx context.Context, s *AgentState[*SummarizeData]) ([]Message, error) {
				return s.Data.Messages, nil
			},
			Exec: func(ctx context.Context, messages []Message) ([][]Message, error) {
				return chunkMessages(messages, SummarizationChunkSize), nil
			},
			Post: func(ctx context.Context, s *AgentState[*SummarizeData], _ []Message, chunks [][]Message) (Action, error) {
				s.Data.Chunks = chunks
				return DefaultAction, nil
			},
		})

		summarizeChunks := NewParallelNode(ParallelNodeConfig[*AgentState[*SummarizeData], []Message, string]{
			Name:    "summarize-chunks",
			Timeout: LLMTimeout,
			Prep: func(ctx context.Context, s *AgentState[*SummarizeData]) ([][]Message, error) {
				return s.Data.Chunks, nil
			},
			Exec: func(ctx context.Context, chunk []Message) (string, error) {
				return llm.SummarizeChunk(ctx, chunk)
			},
			Post: func(ctx context.Context, s *AgentState[*SummarizeData], _ [][]Message, summaries []string) (Action, error) {
				s.Data.ChunkSummaries = summaries
				return DefaultAction, nil
			},
		})

		merge := NewNode(NodeConfig[*AgentState[*SummarizeData], string, string]{
			Name:    "merge",
			Timeout: LLMTimeout,
			Prep: func(ctx context.Context, s *AgentState[*SummarizeData]) (string, error) {
				return s.Data.PriorSummary, nil
			},
			Exec: func(ctx context.Context, prior string) (string, error) {
				return llm.MergeSummaries(ctx, prior, state.Data.ChunkSummaries)
			},
			Post: func(ctx context.Context, s *AgentState[*SummarizeData], _ string, merged string) (Action, error) {
				s.Data.Merged = merged
				return DefaultAction, nil
			},
		})

		store := NewNode(NodeConfig[*AgentState[*SummarizeData], struct{}, struct{}]{
			Name: "store",
			Post: func(ctx context.Context, s *AgentState[*SummarizeData], _ struct{}, _ struct{}) (Action, error) {
				if err := s.Memory.Set(ctx, ConversationSummaryLabel, "Running summary of earlier conversation.", s.Data.Merged, SetOptions{Protected: true}); err != nil {
					return "", fmt.Errorf("summarize: store summary: %w", err)
				}
				s.Data.PrunedCount = s.Messages.Prune(SummarizationPruneCount)
				return DefaultAction, nil
			},
		})

		skip := passthroughExit[*AgentState[*SummarizeData]]("skip")

		collect.To(chunk)
		collect.When("skip", skip)
		chunk.To(summarizeChunks)
		summarizeChunks.To(merge)
		merge.To(store)

		return NewFlow(collect, FlowConfig[*AgentState[*SummarizeData]]{Name: SummarizeWorkflowName})
	})
}
