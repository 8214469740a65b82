// Package webhook provides admin-facing webhook registration on top of a
// concrete store implementation (store/sqlite.WebhookStore or
// store/postgres.WebhookStore). The root aidra package only defines the
// Webhook/WebhookEvent types and the narrow WebhookStore contract the HTTP
// ingestion path needs (Get, Record); registration, listing, and deletion
// are admin operations layered on top here, mirroring how the teacher
// keeps admin-only store operations (e.g. document deletion) outside the
// core contract.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	aidra "github.com/nevindra/aidra"
)

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Registrar is implemented by each backend's WebhookStore (store/sqlite,
// store/postgres) for the admin operations beyond the core contract.
type Registrar interface {
	Register(ctx context.Context, wh aidra.Webhook) error
	ListByAgent(ctx context.Context, agentID string) ([]aidra.Webhook, error)
	Delete(ctx context.Context, id string) error
}

// Manager is the admin-facing webhook registration surface used by
// cmd/aidra's admin subcommands.
type Manager struct {
	registrar Registrar
}

func NewManager(r Registrar) *Manager {
	return &Manager{registrar: r}
}

// Create registers a new webhook for agentID targeting workflow, generating
// a fresh ID and HMAC secret.
func (m *Manager) Create(ctx context.Context, agentID, name, workflow string) (aidra.Webhook, error) {
	secret, err := generateSecret()
	if err != nil {
		return aidra.Webhook{}, fmt.Errorf("webhook: generate secret: %w", err)
	}
	wh := aidra.Webhook{
		ID:        aidra.NewID(),
		AgentID:   agentID,
		Name:      name,
		Secret:    secret,
		Workflow:  workflow,
		CreatedAt: time.Now(),
	}
	if err := m.registrar.Register(ctx, wh); err != nil {
		return aidra.Webhook{}, fmt.Errorf("webhook: create: %w", err)
	}
	return wh, nil
}

// ListByAgent returns every webhook registered for agentID.
func (m *Manager) ListByAgent(ctx context.Context, agentID string) ([]aidra.Webhook, error) {
	return m.registrar.ListByAgent(ctx, agentID)
}

// Delete removes a webhook registration.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.registrar.Delete(ctx, id)
}
