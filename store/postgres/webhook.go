package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	aidra "github.com/nevindra/aidra"
)

// WebhookStore implements aidra.WebhookStore backed by PostgreSQL.
//
// Use NewWebhookStore with Store.Pool() so both share the same pool.
type WebhookStore struct {
	pool *pgxpool.Pool
}

var _ aidra.WebhookStore = (*WebhookStore)(nil)

func NewWebhookStore(pool *pgxpool.Pool) *WebhookStore {
	return &WebhookStore{pool: pool}
}

// Register creates a new webhook registration. Admin-only; not part of
// aidra.WebhookStore.
func (s *WebhookStore) Register(ctx context.Context, wh aidra.Webhook) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhooks (id, agent_id, name, secret, workflow, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		wh.ID, wh.AgentID, wh.Name, wh.Secret, wh.Workflow, wh.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("postgres: register webhook: %w", err)
	}
	return nil
}

// Get returns the webhook registration identified by id.
func (s *WebhookStore) Get(ctx context.Context, id string) (aidra.Webhook, error) {
	wh, err := scanWebhook(s.pool.QueryRow(ctx,
		`SELECT id, agent_id, name, secret, workflow, created_at FROM webhooks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return aidra.Webhook{}, fmt.Errorf("get webhook %s: %w", id, aidra.ErrNotFound)
		}
		return aidra.Webhook{}, fmt.Errorf("postgres: get webhook: %w", err)
	}
	return wh, nil
}

// ListByAgent returns every webhook registered for agentID. Admin-only;
// not part of aidra.WebhookStore.
func (s *WebhookStore) ListByAgent(ctx context.Context, agentID string) ([]aidra.Webhook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, name, secret, workflow, created_at FROM webhooks WHERE agent_id = $1 ORDER BY created_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list webhooks by agent: %w", err)
	}
	defer rows.Close()

	var hooks []aidra.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan webhook: %w", err)
		}
		hooks = append(hooks, wh)
	}
	return hooks, rows.Err()
}

// Delete removes a webhook registration. Admin-only; not part of
// aidra.WebhookStore.
func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete webhook %s: %w", id, aidra.ErrNotFound)
	}
	return nil
}

// Record stores a received webhook event, returning false without error
// if (WebhookID, ExternalID) was already recorded.
func (s *WebhookStore) Record(ctx context.Context, event aidra.WebhookEvent) (bool, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events (id, webhook_id, external_id, payload, received_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.WebhookID, event.ExternalID, event.Payload, event.ReceivedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: record webhook event: %w", err)
	}
	return true, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), as raised by the webhook_events (webhook_id, external_id)
// constraint on a duplicate delivery.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
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
