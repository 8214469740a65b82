package aidra

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// Webhook is a registered inbound integration: a secret used to verify
// HMAC signatures on incoming events, and the workflow name events for it
// should be dispatched to.
type Webhook struct {
	ID        string
	AgentID   string
	Name      string
	Secret    string
	Workflow  string
	CreatedAt time.Time
}

// WebhookEvent is one verified, deduplicated inbound delivery.
type WebhookEvent struct {
	ID         string
	WebhookID  string
	ExternalID string // caller-supplied idempotency key
	Payload    []byte
	ReceivedAt time.Time
}

// WebhookStore persists Webhook registrations and records delivered
// WebhookEvent rows for idempotency.
type WebhookStore interface {
	Get(ctx context.Context, id string) (Webhook, error)
	// Record inserts event, returning (false, nil) if (WebhookID,
	// ExternalID) was already recorded rather than erroring, so callers can
	// treat a duplicate delivery as a no-op 200 response.
	Record(ctx context.Context, event WebhookEvent) (bool, error)
}

// VerifyWebhookSignature recomputes an HMAC-SHA256 over body using secret
// and compares it against signature (hex-encoded) in constant time.
func VerifyWebhookSignature(secret string, body []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, got) == 1
}

// CheckWebhookTimestamp rejects a delivery whose claimed send time is more
// than WebhookMaxSkew away from now, guarding against replay of old,
// captured signed payloads.
func CheckWebhookTimestamp(sentAt time.Time, now time.Time) error {
	skew := now.Sub(sentAt)
	if skew < 0 {
		skew = -skew
	}
	if skew > WebhookMaxSkew {
		return wrapErr(ErrValidation, fmt.Sprintf("webhook timestamp skew %s exceeds %s", skew, WebhookMaxSkew))
	}
	return nil
}
