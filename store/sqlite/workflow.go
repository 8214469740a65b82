package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	aidra "github.com/nevindra/aidra"
)

// WorkflowStoreOption configures a SQLite WorkflowStore.
type WorkflowStoreOption func(*WorkflowStore)

// WithWorkflowLogger sets a structured logger for the workflow store.
func WithWorkflowLogger(l *slog.Logger) WorkflowStoreOption {
	return func(s *WorkflowStore) { s.logger = l }
}

// WorkflowStore implements aidra.WorkflowStore backed by SQLite.
//
// Use NewWorkflowStore with a shared *sql.DB from Store.DB() so both Store
// and WorkflowStore share the same serialized connection.
type WorkflowStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ aidra.WorkflowStore = (*WorkflowStore)(nil)

// NewWorkflowStore creates a WorkflowStore using an existing *sql.DB.
// Pass store.DB() to share the same connection as Store.
func NewWorkflowStore(db *sql.DB, opts ...WorkflowStoreOption) *WorkflowStore {
	s := &WorkflowStore{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create persists a new WorkflowRun row.
func (s *WorkflowStore) Create(ctx context.Context, run aidra.WorkflowRun) error {
	start := time.Now()
	s.logger.Debug("sqlite: create workflow run", "id", run.ID, "agent_id", run.AgentID, "workflow", run.Workflow)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, agent_id, workflow, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AgentID, run.Workflow, string(run.Status), run.Error, run.StartedAt.Unix(), unixOrNull(run.FinishedAt),
	)
	if err != nil {
		s.logger.Error("sqlite: create workflow run failed", "id", run.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("create workflow run: %w", err)
	}
	s.logger.Debug("sqlite: create workflow run ok", "id", run.ID, "duration", time.Since(start))
	return nil
}

// Update overwrites an existing WorkflowRun row by ID.
func (s *WorkflowStore) Update(ctx context.Context, run aidra.WorkflowRun) error {
	start := time.Now()
	s.logger.Debug("sqlite: update workflow run", "id", run.ID, "status", run.Status)

	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Error, unixOrNull(run.FinishedAt), run.ID,
	)
	if err != nil {
		s.logger.Error("sqlite: update workflow run failed", "id", run.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("update workflow run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update workflow run %s: %w", run.ID, aidra.ErrNotFound)
	}
	s.logger.Debug("sqlite: update workflow run ok", "id", run.ID, "duration", time.Since(start))
	return nil
}

// Get returns a WorkflowRun by ID.
func (s *WorkflowStore) Get(ctx context.Context, id string) (aidra.WorkflowRun, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get workflow run", "id", id)

	run, err := scanWorkflowRun(s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, workflow, status, error, started_at, finished_at FROM workflow_runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return aidra.WorkflowRun{}, fmt.Errorf("get workflow run %s: %w", id, aidra.ErrNotFound)
		}
		s.logger.Error("sqlite: get workflow run failed", "id", id, "error", err, "duration", time.Since(start))
		return aidra.WorkflowRun{}, fmt.Errorf("get workflow run: %w", err)
	}
	s.logger.Debug("sqlite: get workflow run ok", "id", id, "duration", time.Since(start))
	return run, nil
}

// ListByStatus returns every WorkflowRun with the given status, oldest first.
func (s *WorkflowStore) ListByStatus(ctx context.Context, status aidra.WorkflowStatus) ([]aidra.WorkflowRun, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list workflow runs by status", "status", status)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, workflow, status, error, started_at, finished_at
		 FROM workflow_runs WHERE status = ? ORDER BY started_at`, string(status))
	if err != nil {
		s.logger.Error("sqlite: list workflow runs by status failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("list workflow runs by status: %w", err)
	}
	defer rows.Close()
	runs, err := scanWorkflowRuns(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: list workflow runs by status ok", "count", len(runs), "duration", time.Since(start))
	return runs, nil
}

// ListByAgent returns every WorkflowRun for agentID, newest first.
func (s *WorkflowStore) ListByAgent(ctx context.Context, agentID string) ([]aidra.WorkflowRun, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list workflow runs by agent", "agent_id", agentID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, workflow, status, error, started_at, finished_at
		 FROM workflow_runs WHERE agent_id = ? ORDER BY started_at DESC`, agentID)
	if err != nil {
		s.logger.Error("sqlite: list workflow runs by agent failed", "agent_id", agentID, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("list workflow runs by agent: %w", err)
	}
	defer rows.Close()
	runs, err := scanWorkflowRuns(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: list workflow runs by agent ok", "agent_id", agentID, "count", len(runs), "duration", time.Since(start))
	return runs, nil
}

func scanWorkflowRun(row rowScanner) (aidra.WorkflowRun, error) {
	var run aidra.WorkflowRun
	var status string
	var startedAt int64
	var finishedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.AgentID, &run.Workflow, &status, &run.Error, &startedAt, &finishedAt); err != nil {
		return aidra.WorkflowRun{}, err
	}
	run.Status = aidra.WorkflowStatus(status)
	run.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		run.FinishedAt = time.Unix(finishedAt.Int64, 0)
	}
	return run, nil
}

func scanWorkflowRuns(rows *sql.Rows) ([]aidra.WorkflowRun, error) {
	var runs []aidra.WorkflowRun
	for rows.Next() {
		run, err := scanWorkflowRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
