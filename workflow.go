package aidra

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunInfo identifies the particular execution of a workflow, threaded
// through AgentState so nodes can tag logs and persisted artifacts.
type RunInfo struct {
	ID        string
	Workflow  string
	StartedAt time.Time
}

// AgentState is the state value every workflow graph is built over. T
// carries workflow-specific data; the memory/messages/files fields give
// every node direct access to the agent's owned stores without needing
// them threaded through T.
type AgentState[T any] struct {
	AgentID  string
	Memory   *MemoryRepository
	Messages *MessageRepository
	Files    FileStore
	Data     T
	Run      RunInfo
}

// WorkflowDefinition bundles a workflow's name and a builder that wires a
// Flow's node graph for a given state.
type WorkflowDefinition[T any] struct {
	Name  string
	Build func(state *AgentState[T]) *Flow[*AgentState[T]]
}

// DefineWorkflow constructs a WorkflowDefinition from a name and a build
// function. build is called once per RunWorkflow invocation, with a state
// value already populated, so it may reference state in closures that
// assemble node prep/exec/post funcs.
func DefineWorkflow[T any](name string, build func(state *AgentState[T]) *Flow[*AgentState[T]]) WorkflowDefinition[T] {
	return WorkflowDefinition[T]{Name: name, Build: build}
}

// WorkflowResult is what RunWorkflow always returns: it never returns a Go
// error to the caller directly, reporting failure via Status/Err instead.
type WorkflowResult[T any] struct {
	Run      WorkflowRun
	Status   WorkflowStatus
	State    *AgentState[T]
	Duration time.Duration
	Err      error
}

// RunWorkflow is the single entry point for executing a WorkflowDefinition
// against one agent.
//
//  1. Assigns a run ID and records a WorkflowRun row with Status=Running.
//  2. Builds the Flow and the AgentState, with Data seeded from initialData.
//  3. Runs flow.Run(ctx, state).
//  4. Persists the terminal status (Succeeded or Failed) and returns a
//     WorkflowResult. RunWorkflow itself never returns a Go error: any
//     failure, including a failure to persist the run row, is reported via
//     WorkflowResult.Err.
func RunWorkflow[T any](
	ctx context.Context,
	def WorkflowDefinition[T],
	agentID string,
	workflowStore WorkflowStore,
	memory *MemoryRepository,
	messages *MessageRepository,
	files FileStore,
	initialData T,
	logger *slog.Logger,
) WorkflowResult[T] {
	if logger == nil {
		logger = slog.Default()
	}

	run := WorkflowRun{
		ID:        NewID(),
		AgentID:   agentID,
		Workflow:  def.Name,
		Status:    WorkflowRunning,
		StartedAt: time.Now(),
	}

	if err := workflowStore.Create(ctx, run); err != nil {
		return WorkflowResult[T]{Run: run, Status: WorkflowFailed, Err: fmt.Errorf("workflow: create run: %w", err)}
	}

	state := &AgentState[T]{
		AgentID:  agentID,
		Memory:   memory,
		Messages: messages,
		Files:    files,
		Data:     initialData,
		Run:      RunInfo{ID: run.ID, Workflow: def.Name, StartedAt: run.StartedAt},
	}

	flow := def.Build(state)

	start := time.Now()
	_, runErr := flow.Run(ctx, state)
	duration := time.Since(start)

	run.FinishedAt = time.Now()
	if runErr != nil {
		run.Status = WorkflowFailed
		run.Error = runErr.Error()
		logger.Error("workflow run failed", "workflow", def.Name, "run_id", run.ID, "error", runErr)
	} else {
		run.Status = WorkflowSucceeded
		logger.Info("workflow run succeeded", "workflow", def.Name, "run_id", run.ID, "duration", duration)
	}

	if err := workflowStore.Update(ctx, run); err != nil {
		logger.Error("workflow: failed to persist terminal status", "run_id", run.ID, "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("workflow: persist terminal status: %w", err)
		}
	}

	return WorkflowResult[T]{Run: run, Status: run.Status, State: state, Duration: duration, Err: runErr}
}
