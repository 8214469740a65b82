// Package aidra implements the core of a multi-tenant AI-agent service:
// a directed-graph workflow engine, a tool-calling agent loop, a fixed-size
// worker pool, and the agent-owned memory/message state stores.
package aidra

import "fmt"

// Error kinds used throughout the core. External surfaces (httpapi) map
// these to HTTP status codes; internal callers use errors.Is/errors.As
// against the sentinels below.
var (
	// ErrValidation marks malformed input: bad slug, missing label, an
	// oldContent mismatch in a memory replace, etc.
	ErrValidation = fmt.Errorf("validation failed")
	// ErrUnauthorized marks a missing or unknown bearer token.
	ErrUnauthorized = fmt.Errorf("unauthorized")
	// ErrForbidden marks a blocked action, such as an SSRF-guarded URL.
	ErrForbidden = fmt.Errorf("forbidden")
	// ErrNotFound marks an unknown user, webhook, or memory label.
	ErrNotFound = fmt.Errorf("not found")
	// ErrUpstream marks an LLM or external provider failure.
	ErrUpstream = fmt.Errorf("upstream failure")
	// ErrInternal marks an unexpected internal failure.
	ErrInternal = fmt.Errorf("internal error")
	// ErrStaleRun marks a workflow run observed running at process start.
	ErrStaleRun = fmt.Errorf("stale run")
	// ErrTimeout marks a deadline exceeded on an exec phase, LLM call, or
	// tool call. Retry-eligible.
	ErrTimeout = fmt.Errorf("timeout")
	// ErrNotInitialized is returned by GetInstance before Initialize.
	ErrNotInitialized = fmt.Errorf("yae: not initialized")
	// ErrPoolExhausted is returned by CheckoutWorker when no worker is free.
	ErrPoolExhausted = fmt.Errorf("worker pool exhausted")
)

// wrapErr wraps err with kind using %w so errors.Is(result, kind) succeeds,
// while keeping a caller-supplied message for logs and HTTP bodies.
func wrapErr(kind error, msg string) error {
	return fmt.Errorf("%s: %w", msg, kind)
}
