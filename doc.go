// Package aidra implements the core of a multi-tenant AI-agent service.
//
// Each authenticated end-user owns a long-lived agent with private
// persistent memory blocks ([MemoryRepository]), a conversation history
// ([MessageRepository]), a virtual file tree ([FileStore]), and the
// ability to execute directed-graph workflows ([Flow]) on a shared pool
// of stateless workers ([WorkerPool]).
//
// # Core subsystems
//
//   - Graph engine: [Node], [NewParallelNode], [Flow], [Chain], [BuildBranch].
//   - Workflow façade: [AgentState], [DefineWorkflow], [RunWorkflow].
//   - Agent runtime: [RunAgentLoop], the tool-calling loop that drives an
//     LLM to completion.
//   - Worker pool: [WorkerPool] arbitrates which caller may run a workflow.
//   - Agent-owned stores: [MemoryRepository], [MessageRepository].
//
// External collaborators (the LLM, the file backend, the web search
// backend) are consumed through the [LLMAdapter], [FileStore], and
// [WebAdapter] interfaces; concrete implementations live in provider/,
// store/, memory/, tools/, and webhook/.
package aidra
