// Package audit turns audit events into idempotent write-queue operations
// and provides the stores they are written to.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"

	"github.com/chrisdamba/foodmarket/internal/models"
)

var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("foodmarket/audit"))

// NewIdempotencyKey returns a random key for a write that has no natural
// identity, e.g. "review_1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed".
func NewIdempotencyKey(scope string) string {
	return fmt.Sprintf("%s_%s", scope, uuid.New().String())
}

// DeriveIdempotencyKey returns the same key for the same parts, so that a
// logical write replayed from another process is still recognised.
func DeriveIdempotencyKey(scope string, parts ...string) string {
	id := uuid.NewSHA1(keyNamespace, []byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("%s_%s", scope, id.String())
}

// NewRecord builds a record with a fresh id and timestamp. When key is empty
// a random idempotency key scoped to the entity type is generated.
func NewRecord(eventType, actorID, entityType, entityID, key string, payload any) (models.AuditRecord, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return models.AuditRecord{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		raw = b
	}
	if key == "" {
		key = NewIdempotencyKey(entityType)
	}
	return models.AuditRecord{
		ID:             cuid.New(),
		IdempotencyKey: key,
		EventType:      eventType,
		ActorID:        actorID,
		EntityType:     entityType,
		EntityID:       entityID,
		Payload:        raw,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
