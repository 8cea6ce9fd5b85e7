package models

import (
	"encoding/json"
	"time"
)

// AuditRecord is a best-effort event/audit entry. IdempotencyKey is unique per
// logical write and is what makes retries safe.
type AuditRecord struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	EventType      string          `json:"event_type"`
	ActorID        string          `json:"actor_id,omitempty"`
	EntityType     string          `json:"entity_type,omitempty"`
	EntityID       string          `json:"entity_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
