package aidra

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// AgentDeps are the per-user collaborators Yae assembles into a usable
// agent: its two owned stores plus the shared, stateless adapters.
type AgentDeps struct {
	Memory   *MemoryRepository
	Messages *MessageRepository
	Files    FileStore
}

// Close releases any live handles an agent's stores hold (the memory and
// message backends may be per-agent database connections).
func (d AgentDeps) Close() error {
	var firstErr error
	if closer, ok := d.Memory.backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if closer, ok := d.Messages.backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AgentFactory constructs the store backends for a newly registered user.
// Implementations typically open a per-user SQLite file or a shared
// Postgres connection scoped by agent ID.
type AgentFactory func(ctx context.Context, agentID string) (AgentDeps, error)

// Yae is the process-wide root orchestrator: it owns the per-user agent
// map, the shared worker pool, the admin datastore, and the admin bearer
// token. There is exactly one instance per process, reached via GetInstance
// after Initialize.
type Yae struct {
	mu         sync.RWMutex
	agents     map[string]AgentDeps
	factory    AgentFactory
	pool       *WorkerPool
	store      WorkflowStore
	webhooks   WebhookStore
	llm        LLMAdapter
	web        WebAdapter
	tracer     Tracer
	logger     *slog.Logger

	adminToken string
}

var (
	instanceMu sync.Mutex
	instance   *Yae
)

// YaeConfig configures Initialize.
type YaeConfig struct {
	Factory       AgentFactory
	PoolSize      int
	WorkflowStore WorkflowStore
	WebhookStore  WebhookStore
	LLM           LLMAdapter
	Web           WebAdapter
	Tracer        Tracer
	Logger        *slog.Logger

	// AdminToken pins the admin bearer token across restarts. Empty
	// generates a fresh random token, printed once for the operator to
	// capture (see cmd/aidra).
	AdminToken string
}

// Initialize constructs the process singleton, sweeps stale workflow runs
// left Running by a prior process, and generates a fresh admin bearer
// token unless cfg.AdminToken pins one. It must be called exactly once per
// process, before GetInstance.
func Initialize(ctx context.Context, cfg YaeConfig) (*Yae, string, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return nil, "", fmt.Errorf("yae: already initialized")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	token := cfg.AdminToken
	if token == "" {
		var err error
		token, err = generateAdminToken()
		if err != nil {
			return nil, "", fmt.Errorf("yae: generate admin token: %w", err)
		}
	}

	y := &Yae{
		agents:     make(map[string]AgentDeps),
		factory:    cfg.Factory,
		pool:       NewWorkerPool(cfg.PoolSize),
		store:      cfg.WorkflowStore,
		webhooks:   cfg.WebhookStore,
		llm:        cfg.LLM,
		web:        cfg.Web,
		tracer:     cfg.Tracer,
		logger:     logger,
		adminToken: token,
	}

	if cfg.WorkflowStore != nil {
		n, err := MarkStaleAsFailed(ctx, cfg.WorkflowStore)
		if err != nil {
			return nil, "", fmt.Errorf("yae: sweep stale runs: %w", err)
		}
		if n > 0 {
			logger.Warn("yae: marked stale workflow runs as failed", "count", n)
		}
	}

	instance = y
	return y, token, nil
}

func generateAdminToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GetInstance returns the process singleton. Fails if Initialize was never
// called.
func GetInstance() (*Yae, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil, ErrNotInitialized
	}
	return instance, nil
}

// Shutdown closes every live agent's store handles and clears the process
// singleton, so a subsequent Initialize call in the same process (as in a
// test binary) starts clean.
func Shutdown() error {
	instanceMu.Lock()
	y := instance
	instance = nil
	instanceMu.Unlock()

	if y == nil {
		return nil
	}

	y.mu.Lock()
	defer y.mu.Unlock()
	var firstErr error
	for id, deps := range y.agents {
		if err := deps.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("yae: closing agent %s: %w", id, err)
		}
	}
	y.agents = make(map[string]AgentDeps)
	return firstErr
}

// VerifyAdminToken reports whether token matches the process's admin
// token, using a constant-time comparison to avoid leaking the token
// through response-timing side channels.
func (y *Yae) VerifyAdminToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(y.adminToken)) == 1
}

// GetOrCreateUserAgent returns the AgentDeps for agentID, constructing and
// caching them via the configured AgentFactory on first access.
func (y *Yae) GetOrCreateUserAgent(ctx context.Context, agentID string) (AgentDeps, error) {
	y.mu.RLock()
	deps, ok := y.agents[agentID]
	y.mu.RUnlock()
	if ok {
		return deps, nil
	}

	y.mu.Lock()
	defer y.mu.Unlock()
	if deps, ok := y.agents[agentID]; ok {
		return deps, nil
	}

	deps, err := y.factory(ctx, agentID)
	if err != nil {
		return AgentDeps{}, fmt.Errorf("yae: create agent %s: %w", agentID, err)
	}
	y.agents[agentID] = deps
	return deps, nil
}

// DeleteUserAgent removes agentID's cached deps, closing any live store
// handle it holds. It does not delete the agent's durable rows; it only
// evicts the in-process handle so a subsequent GetOrCreateUserAgent call
// reopens it fresh.
func (y *Yae) DeleteUserAgent(agentID string) error {
	y.mu.Lock()
	deps, ok := y.agents[agentID]
	if ok {
		delete(y.agents, agentID)
	}
	y.mu.Unlock()

	if !ok {
		return nil
	}
	return deps.Close()
}

// Pool returns the shared worker pool every RunWorkflow call arbitrates
// through.
func (y *Yae) Pool() *WorkerPool { return y.pool }

// WorkflowStore returns the shared workflow-run persistence backend.
func (y *Yae) WorkflowStore() WorkflowStore { return y.store }

// WebhookStore returns the shared webhook registration/idempotency store.
func (y *Yae) WebhookStore() WebhookStore { return y.webhooks }

// LLM returns the shared LLM adapter.
func (y *Yae) LLM() LLMAdapter { return y.llm }

// Web returns the shared web adapter.
func (y *Yae) Web() WebAdapter { return y.web }

// Tracer returns the shared tracer, which may be nil.
func (y *Yae) Tracer() Tracer { return y.tracer }

// Logger returns the process logger.
func (y *Yae) Logger() *slog.Logger { return y.logger }

// DispatchWebhook logs the received event and returns nil. It does not
// resolve or run the event's target workflow, and nothing is queued or
// retried. TODO: route through a
// durable queue once webhook volume justifies it.
func (y *Yae) DispatchWebhook(ctx context.Context, event WebhookEvent) error {
	y.logger.Info("yae: webhook dispatch received, no queue configured", "webhook_id", event.WebhookID, "external_id", event.ExternalID)
	return nil
}
