// Package httpapi exposes aidra's external HTTP surface: a health check,
// a chat endpoint that streams agent-loop events over SSE, an authenticated
// webhook lookup, and the webhook ingestion endpoint. It has no user
// management routes and no routes that create or delete webhooks.
//
// Routing follows the teacher's preference for stdlib net/http with
// explicit route registration rather than an external router framework.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	aidra "github.com/nevindra/aidra"
	"github.com/nevindra/aidra/internal/ratelimit"
)

// Server wires Yae and the HTTP-layer rate limiters into a http.Handler.
type Server struct {
	yae    *aidra.Yae
	public *ratelimit.Limiter
	authed *ratelimit.Limiter
	logger *slog.Logger
}

// New constructs a Server. logger may be nil, in which case slog.Default
// is used.
func New(yae *aidra.Yae, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		yae:    yae,
		public: ratelimit.New(aidra.PublicRateLimitPerMinute),
		authed: ratelimit.New(aidra.AuthedRateLimitPerMinute),
		logger: logger,
	}
}

// Handler returns the fully-wired root http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.withPublicLimit(s.handleHealth))
	mux.HandleFunc("POST /v1/chat", s.withAuth(s.withAuthedLimit(s.handleChat)))
	mux.HandleFunc("GET /v1/webhooks/{id}", s.withAuth(s.withAuthedLimit(s.handleGetWebhook)))
	mux.HandleFunc("POST /v1/webhooks/{id}/events", s.withPublicLimit(s.handleWebhookIngest))
	return mux
}

func (s *Server) withPublicLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.public.Allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *Server) withAuthedLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if !s.authed.Allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// withAuth requires a bearer token matching the process admin token,
// compared in constant time by Yae.VerifyAdminToken.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || !s.yae.VerifyAdminToken(token) {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

// handleChat streams agent-loop Events as Server-Sent Events. Each event
// is encoded as a JSON object with a "type" field matching aidra.EventType.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "agent_id and message are required")
		return
	}

	deps, err := s.yae.GetOrCreateUserAgent(r.Context(), req.AgentID)
	if err != nil {
		writeStatusForErr(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := aidra.RunAgentLoop(r.Context(), aidra.AgentLoopConfig{
		AgentID:          req.AgentID,
		Memory:           deps.Memory,
		Messages:         deps.Messages,
		Files:            deps.Files,
		Web:              s.yae.Web(),
		LLM:              s.yae.LLM(),
		Tracer:           s.yae.Tracer(),
		Logger:           s.logger,
		SummarizeTrigger: s.triggerSummarization(deps),
	}, req.Message)

	for ev := range events {
		payload, err := json.Marshal(sseEvent{Type: string(ev.Type), Text: ev.Text, Err: errString(ev.Err)})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// triggerSummarization returns an aidra.AgentLoopConfig.SummarizeTrigger
// closure that checks out a worker from the shared pool, runs the
// summarization workflow against agentID's own stores, and returns the
// worker regardless of outcome.
func (s *Server) triggerSummarization(deps aidra.AgentDeps) func(ctx context.Context, agentID string) error {
	return func(ctx context.Context, agentID string) error {
		worker, err := s.yae.Pool().CheckoutWorker(agentID, aidra.SummarizeWorkflowName)
		if err != nil {
			return fmt.Errorf("httpapi: checkout worker: %w", err)
		}
		defer s.yae.Pool().ReturnWorker(worker)

		result := aidra.RunWorkflow(ctx, aidra.NewSummarizationWorkflow(s.yae.LLM()), agentID, s.yae.WorkflowStore(), deps.Memory, deps.Messages, deps.Files, &aidra.SummarizeData{}, s.logger)
		return result.Err
	}
}

type sseEvent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Err  string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wh, err := s.yae.WebhookStore().Get(r.Context(), id)
	if err != nil {
		writeStatusForErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        wh.ID,
		"agent_id":  wh.AgentID,
		"name":      wh.Name,
		"workflow":  wh.Workflow,
		"createdAt": wh.CreatedAt.Format(time.RFC3339),
	})
}

// handleWebhookIngest verifies signature and timestamp headers, records
// the event for idempotency, and hands it to Yae for dispatch.
func (s *Server) handleWebhookIngest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wh, err := s.yae.WebhookStore().Get(r.Context(), id)
	if err != nil {
		writeStatusForErr(w, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, aidra.WebhookMaxBodyBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds maximum size")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if !aidra.VerifyWebhookSignature(wh.Secret, payload, signature) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	sentAt, err := time.Parse(time.RFC3339, r.Header.Get("X-Webhook-Timestamp"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Webhook-Timestamp")
		return
	}
	if err := aidra.CheckWebhookTimestamp(sentAt, time.Now()); err != nil {
		writeStatusForErr(w, err)
		return
	}

	externalID := r.Header.Get("X-Webhook-Delivery-Id")
	if externalID == "" {
		writeError(w, http.StatusBadRequest, "missing X-Webhook-Delivery-Id")
		return
	}

	event := aidra.WebhookEvent{
		ID:         aidra.NewID(),
		WebhookID:  wh.ID,
		ExternalID: externalID,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}

	first, err := s.yae.WebhookStore().Record(r.Context(), event)
	if err != nil {
		writeStatusForErr(w, err)
		return
	}
	if !first {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if err := s.yae.DispatchWebhook(r.Context(), event); err != nil {
		s.logger.Error("httpapi: webhook dispatch failed", "webhook_id", wh.ID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStatusForErr maps the core's sentinel errors to HTTP status codes.
func writeStatusForErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, aidra.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, aidra.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, aidra.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, aidra.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, aidra.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, aidra.ErrUpstream):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
