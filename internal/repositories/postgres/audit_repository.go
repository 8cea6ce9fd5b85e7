package postgres

import (
	"context"
	"fmt"

	"github.com/chrisdamba/foodmarket/internal/models"
)

type AuditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM audit_events WHERE idempotency_key = $1)`,
		idempotencyKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check audit key: %w", err)
	}
	return exists, nil
}

// Insert ignores a conflicting idempotency key: the record is already there.
func (r *AuditRepository) Insert(ctx context.Context, record models.AuditRecord) error {
	query := `
        INSERT INTO audit_events (
            id, idempotency_key, event_type, actor_id,
            entity_type, entity_id, payload, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (idempotency_key) DO NOTHING
    `
	var payload []byte
	if len(record.Payload) > 0 {
		payload = record.Payload
	}
	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.IdempotencyKey,
		record.EventType,
		record.ActorID,
		record.EntityType,
		record.EntityID,
		payload,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditRecord, error) {
	query := `
        SELECT id, idempotency_key, event_type, actor_id,
               entity_type, entity_id, payload, created_at
        FROM audit_events
        WHERE entity_type = $1 AND entity_id = $2
        ORDER BY created_at
    `
	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var payload []byte
		err := rows.Scan(
			&rec.ID,
			&rec.IdempotencyKey,
			&rec.EventType,
			&rec.ActorID,
			&rec.EntityType,
			&rec.EntityID,
			&payload,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.Payload = payload
		records = append(records, rec)
	}
	return records, rows.Err()
}
