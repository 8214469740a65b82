// Package postgres implements aidra.MessageBackend, aidra.WorkflowStore,
// aidra.WebhookStore and aidra.MemoryBackend using PostgreSQL via pgx.
//
// Store, WorkflowStore, WebhookStore and MemoryStore all accept an
// externally-owned *pgxpool.Pool via constructor injection. The caller
// creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	aidra "github.com/nevindra/aidra"
)

// Store implements aidra.MessageBackend backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ aidra.MessageBackend = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying connection pool so WorkflowStore, WebhookStore
// and MemoryStore can share it.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Init creates the messages table plus every table owned by WorkflowStore,
// WebhookStore and MemoryStore, so callers only need to call Init once.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_agent_created_idx ON messages (agent_id, created_at, id)`,

		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at BIGINT NOT NULL,
			finished_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS workflow_runs_status_idx ON workflow_runs (status)`,
		`CREATE INDEX IF NOT EXISTS workflow_runs_agent_idx ON workflow_runs (agent_id, started_at)`,

		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			secret TEXT NOT NULL,
			workflow TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id TEXT PRIMARY KEY,
			webhook_id TEXT NOT NULL,
			external_id TEXT NOT NULL,
			payload BYTEA NOT NULL,
			received_at BIGINT NOT NULL,
			UNIQUE (webhook_id, external_id)
		)`,

		`CREATE TABLE IF NOT EXISTS memory_blocks (
			agent_id TEXT NOT NULL,
			label TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			protected BOOLEAN NOT NULL DEFAULT FALSE,
			read_only BOOLEAN NOT NULL DEFAULT FALSE,
			content_limit INTEGER NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (agent_id, label)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Append durably appends msg to the agent's message log.
func (s *Store) Append(ctx context.Context, msg aidra.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, agent_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.AgentID, string(msg.Role), msg.Content, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("postgres: append message: %w", err)
	}
	return nil
}

// LoadRecent returns, at most, the last n messages for agentID in
// chronological order.
func (s *Store) LoadRecent(ctx context.Context, agentID string, n int) ([]aidra.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, role, content, created_at FROM messages
		 WHERE agent_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		agentID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// LoadRange returns messages for agentID in [offset, offset+limit) in
// chronological order.
func (s *Store) LoadRange(ctx context.Context, agentID string, offset, limit int) ([]aidra.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, role, content, created_at FROM messages
		 WHERE agent_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`,
		agentID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load message range: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Count returns the total number of messages recorded for agentID.
func (s *Store) Count(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE agent_id = $1`, agentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count messages: %w", err)
	}
	return count, nil
}

func scanMessages(rows pgx.Rows) ([]aidra.Message, error) {
	var msgs []aidra.Message
	for rows.Next() {
		var m aidra.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.AgentID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		m.Role = aidra.MessageRole(role)
		m.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func reverseMessages(msgs []aidra.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func unixOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
