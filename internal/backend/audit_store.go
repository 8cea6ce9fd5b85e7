package backend

import (
	"context"

	"github.com/chrisdamba/foodmarket/internal/models"
)

const (
	auditTable     = "audit_events"
	insertAuditRPC = "insert_audit_event"
)

// AuditStore writes audit records through the backend: existence is looked up
// by idempotency key, inserts go through a remote procedure.
type AuditStore struct {
	client *Client
}

func NewAuditStore(client *Client) *AuditStore {
	return &AuditStore{client: client}
}

func (s *AuditStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return s.client.Exists(ctx, auditTable, idempotencyKey)
}

func (s *AuditStore) Insert(ctx context.Context, record models.AuditRecord) error {
	return s.client.Mutate(ctx, insertAuditRPC, record, nil)
}
