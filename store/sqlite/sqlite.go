// Package sqlite implements aidra.MessageBackend, aidra.WorkflowStore and
// aidra.WebhookStore using pure-Go SQLite. Zero CGO required.
//
// Store implements MessageBackend and owns the connection. WorkflowStore
// and WebhookStore are constructed over Store.DB() so every table shares
// the same serialized connection.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	aidra "github.com/nevindra/aidra"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements aidra.MessageBackend backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ aidra.MessageBackend = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// DB returns the underlying connection so WorkflowStore and WebhookStore
// can share the same serialized pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Init creates the messages table plus every table owned by WorkflowStore
// and WebhookStore, so callers only need to call Init once per process.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_agent_created ON messages (agent_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_status ON workflow_runs (status)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_agent ON workflow_runs (agent_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			secret TEXT NOT NULL,
			workflow TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id TEXT PRIMARY KEY,
			webhook_id TEXT NOT NULL,
			external_id TEXT NOT NULL,
			payload BLOB NOT NULL,
			received_at INTEGER NOT NULL,
			UNIQUE (webhook_id, external_id)
		)`,
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			s.logger.Error("sqlite: init failed", "error", err, "duration", time.Since(start))
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Debug("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Append durably appends msg to the agent's message log.
func (s *Store) Append(ctx context.Context, msg aidra.Message) error {
	start := time.Now()
	s.logger.Debug("sqlite: append message", "id", msg.ID, "agent_id", msg.AgentID, "role", msg.Role)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, agent_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.AgentID, string(msg.Role), msg.Content, msg.CreatedAt.Unix(),
	)
	if err != nil {
		s.logger.Error("sqlite: append message failed", "id", msg.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("append message: %w", err)
	}
	s.logger.Debug("sqlite: append message ok", "id", msg.ID, "duration", time.Since(start))
	return nil
}

// LoadRecent returns, at most, the last n messages for agentID in
// chronological order.
func (s *Store) LoadRecent(ctx context.Context, agentID string, n int) ([]aidra.Message, error) {
	start := time.Now()
	s.logger.Debug("sqlite: load recent messages", "agent_id", agentID, "n", n)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, role, content, created_at FROM messages
		 WHERE agent_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		agentID, n,
	)
	if err != nil {
		s.logger.Error("sqlite: load recent messages failed", "agent_id", agentID, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	s.logger.Debug("sqlite: load recent messages ok", "agent_id", agentID, "count", len(msgs), "duration", time.Since(start))
	return msgs, nil
}

// LoadRange returns messages for agentID in [offset, offset+limit) in
// chronological order.
func (s *Store) LoadRange(ctx context.Context, agentID string, offset, limit int) ([]aidra.Message, error) {
	start := time.Now()
	s.logger.Debug("sqlite: load message range", "agent_id", agentID, "offset", offset, "limit", limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, role, content, created_at FROM messages
		 WHERE agent_id = ? ORDER BY created_at, id LIMIT ? OFFSET ?`,
		agentID, limit, offset,
	)
	if err != nil {
		s.logger.Error("sqlite: load message range failed", "agent_id", agentID, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("load message range: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: load message range ok", "agent_id", agentID, "count", len(msgs), "duration", time.Since(start))
	return msgs, nil
}

// Count returns the total number of messages recorded for agentID.
func (s *Store) Count(ctx context.Context, agentID string) (int, error) {
	start := time.Now()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE agent_id = ?`, agentID).Scan(&count)
	if err != nil {
		s.logger.Error("sqlite: count messages failed", "agent_id", agentID, "error", err, "duration", time.Since(start))
		return 0, fmt.Errorf("count messages: %w", err)
	}
	s.logger.Debug("sqlite: count messages ok", "agent_id", agentID, "count", count, "duration", time.Since(start))
	return count, nil
}

func scanMessages(rows *sql.Rows) ([]aidra.Message, error) {
	var msgs []aidra.Message
	for rows.Next() {
		var m aidra.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.AgentID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

// isUniqueConstraintErr reports whether err is a SQLite UNIQUE constraint
// violation. modernc.org/sqlite doesn't export a typed error, so this
// matches on the driver's message text.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

func unixOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
