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

// WebhookStoreOption configures a SQLite WebhookStore.
type WebhookStoreOption func(*WebhookStore)

// WithWebhookLogger sets a structured logger for the webhook store.
func WithWebhookLogger(l *slog.Logger) WebhookStoreOption {
	return func(s *WebhookStore) { s.logger = l }
}

// WebhookStore implements aidra.WebhookStore backed by SQLite.
//
// Use NewWebhookStore with a shared *sql.DB from Store.DB() so both Store
// and WebhookStore share the same serialized connection.
type WebhookStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ aidra.WebhookStore = (*WebhookStore)(nil)

// NewWebhookStore creates a WebhookStore using an existing *sql.DB.
// Pass store.DB() to share the same connection as Store.
func NewWebhookStore(db *sql.DB, opts ...WebhookStoreOption) *WebhookStore {
	s := &WebhookStore{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register persists a new Webhook. Not part of aidra.WebhookStore (which
// only reads), but needed by the admin surface that creates webhooks.
func (s *WebhookStore) Register(ctx context.Context, wh aidra.Webhook) error {
	start := time.Now()
	s.logger.Debug("sqlite: register webhook", "id", wh.ID, "agent_id", wh.AgentID, "name", wh.Name)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, agent_id, name, secret, workflow, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		wh.ID, wh.AgentID, wh.Name, wh.Secret, wh.Workflow, wh.CreatedAt.Unix(),
	)
	if err != nil {
		s.logger.Error("sqlite: register webhook failed", "id", wh.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("register webhook: %w", err)
	}
	s.logger.Debug("sqlite: register webhook ok", "id", wh.ID, "duration", time.Since(start))
	return nil
}

// ListByAgent returns every webhook registered to agentID.
func (s *WebhookStore) ListByAgent(ctx context.Context, agentID string) ([]aidra.Webhook, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list webhooks by agent", "agent_id", agentID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, name, secret, workflow, created_at FROM webhooks WHERE agent_id = ? ORDER BY created_at`, agentID)
	if err != nil {
		s.logger.Error("sqlite: list webhooks by agent failed", "agent_id", agentID, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("list webhooks by agent: %w", err)
	}
	defer rows.Close()

	var out []aidra.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite: list webhooks by agent ok", "agent_id", agentID, "count", len(out), "duration", time.Since(start))
	return out, nil
}

// Delete removes a webhook registration by ID.
func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete webhook", "id", id)
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		s.logger.Error("sqlite: delete webhook failed", "id", id, "error", err, "duration", time.Since(start))
		return fmt.Errorf("delete webhook: %w", err)
	}
	s.logger.Debug("sqlite: delete webhook ok", "id", id, "duration", time.Since(start))
	return nil
}

// Get returns a Webhook by ID.
func (s *WebhookStore) Get(ctx context.Context, id string) (aidra.Webhook, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get webhook", "id", id)

	wh, err := scanWebhook(s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, name, secret, workflow, created_at FROM webhooks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return aidra.Webhook{}, fmt.Errorf("get webhook %s: %w", id, aidra.ErrNotFound)
		}
		s.logger.Error("sqlite: get webhook failed", "id", id, "error", err, "duration", time.Since(start))
		return aidra.Webhook{}, fmt.Errorf("get webhook: %w", err)
	}
	s.logger.Debug("sqlite: get webhook ok", "id", id, "duration", time.Since(start))
	return wh, nil
}

// Record inserts event, returning (false, nil) instead of erroring if
// (WebhookID, ExternalID) was already recorded, so a duplicate delivery is
// a no-op rather than a failure.
func (s *WebhookStore) Record(ctx context.Context, event aidra.WebhookEvent) (bool, error) {
	start := time.Now()
	s.logger.Debug("sqlite: record webhook event", "id", event.ID, "webhook_id", event.WebhookID, "external_id", event.ExternalID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_events (id, webhook_id, external_id, payload, received_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.WebhookID, event.ExternalID, event.Payload, event.ReceivedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			s.logger.Debug("sqlite: record webhook event duplicate", "webhook_id", event.WebhookID, "external_id", event.ExternalID, "duration", time.Since(start))
			return false, nil
		}
		s.logger.Error("sqlite: record webhook event failed", "id", event.ID, "error", err, "duration", time.Since(start))
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	s.logger.Debug("sqlite: record webhook event ok", "id", event.ID, "duration", time.Since(start))
	return true, nil
}

func scanWebhook(row rowScanner) (aidra.Webhook, error) {
	var wh aidra.Webhook
	var createdAt int64
	if err := row.Scan(&wh.ID, &wh.AgentID, &wh.Name, &wh.Secret, &wh.Workflow, &createdAt); err != nil {
		return aidra.Webhook{}, err
	}
	wh.CreatedAt = time.Unix(createdAt, 0)
	return wh, nil
}
