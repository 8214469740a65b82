package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	aidra "github.com/nevindra/aidra"
)

// WorkflowStore implements aidra.WorkflowStore backed by PostgreSQL.
//
// Use NewWorkflowStore with Store.Pool() so both share the same pool.
type WorkflowStore struct {
	pool *pgxpool.Pool
}

var _ aidra.WorkflowStore = (*WorkflowStore)(nil)

func NewWorkflowStore(pool *pgxpool.Pool) *WorkflowStore {
	return &WorkflowStore{pool: pool}
}

func (s *WorkflowStore) Create(ctx context.Context, run aidra.WorkflowRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_runs (id, agent_id, workflow, status, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.AgentID, run.Workflow, string(run.Status), run.Error, run.StartedAt.Unix(), unixOrNull(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: create workflow run: %w", err)
	}
	return nil
}

func (s *WorkflowStore) Update(ctx context.Context, run aidra.WorkflowRun) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(run.Status), run.Error, unixOrNull(run.FinishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update workflow run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update workflow run %s: %w", run.ID, aidra.ErrNotFound)
	}
	return nil
}

func (s *WorkflowStore) Get(ctx context.Context, id string) (aidra.WorkflowRun, error) {
	run, err := scanWorkflowRun(s.pool.QueryRow(ctx,
		`SELECT id, agent_id, workflow, status, error, started_at, finished_at FROM workflow_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return aidra.WorkflowRun{}, fmt.Errorf("get workflow run %s: %w", id, aidra.ErrNotFound)
		}
		return aidra.WorkflowRun{}, fmt.Errorf("postgres: get workflow run: %w", err)
	}
	return run, nil
}

func (s *WorkflowStore) ListByStatus(ctx context.Context, status aidra.WorkflowStatus) ([]aidra.WorkflowRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, workflow, status, error, started_at, finished_at
		 FROM workflow_runs WHERE status = $1 ORDER BY started_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list workflow runs by status: %w", err)
	}
	defer rows.Close()
	return scanWorkflowRuns(rows)
}

func (s *WorkflowStore) ListByAgent(ctx context.Context, agentID string) ([]aidra.WorkflowRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, workflow, status, error, started_at, finished_at
		 FROM workflow_runs WHERE agent_id = $1 ORDER BY started_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list workflow runs by agent: %w", err)
	}
	defer rows.Close()
	return scanWorkflowRuns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflowRun(row rowScanner) (aidra.WorkflowRun, error) {
	var run aidra.WorkflowRun
	var status string
	var startedAt int64
	var finishedAt *int64
	if err := row.Scan(&run.ID, &run.AgentID, &run.Workflow, &status, &run.Error, &startedAt, &finishedAt); err != nil {
		return aidra.WorkflowRun{}, err
	}
	run.Status = aidra.WorkflowStatus(status)
	run.StartedAt = time.Unix(startedAt, 0)
	if finishedAt != nil {
		run.FinishedAt = time.Unix(*finishedAt, 0)
	}
	return run, nil
}

func scanWorkflowRuns(rows pgx.Rows) ([]aidra.WorkflowRun, error) {
	var runs []aidra.WorkflowRun
	for rows.Next() {
		run, err := scanWorkflowRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan workflow run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
