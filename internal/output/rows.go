package output

import (
	"encoding/json"
	"fmt"

	"github.com/chrisdamba/foodmarket/internal/models"
)

type AuditRow struct {
	ID             string `parquet:"name=id,type=BYTE_ARRAY,convertedtype=UTF8"`
	IdempotencyKey string `parquet:"name=idempotency_key,type=BYTE_ARRAY,convertedtype=UTF8"`
	EventType      string `parquet:"name=event_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	ActorID        string `parquet:"name=actor_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	EntityType     string `parquet:"name=entity_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	EntityID       string `parquet:"name=entity_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	Payload        string `parquet:"name=payload,type=BYTE_ARRAY,convertedtype=UTF8"`
	CreatedAt      int64  `parquet:"name=created_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
}

// DecisionRow keeps the price delta as its decimal string so no precision is
// lost in the archive.
type DecisionRow struct {
	ID               string  `parquet:"name=id,type=BYTE_ARRAY,convertedtype=UTF8"`
	OrderID          string  `parquet:"name=order_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	OriginalItemID   string  `parquet:"name=original_item_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	SubstituteItemID *string `parquet:"name=substitute_item_id,type=BYTE_ARRAY,convertedtype=UTF8,repetitiontype=OPTIONAL"`
	Decision         string  `parquet:"name=decision,type=BYTE_ARRAY,convertedtype=UTF8"`
	Auto             bool    `parquet:"name=auto,type=BOOLEAN"`
	PriceDelta       string  `parquet:"name=price_delta,type=BYTE_ARRAY,convertedtype=UTF8"`
	Quantity         int32   `parquet:"name=quantity,type=INT32"`
	DecidedAt        int64   `parquet:"name=decided_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
}

func NewAuditRow(rec models.AuditRecord) AuditRow {
	return AuditRow{
		ID:             rec.ID,
		IdempotencyKey: rec.IdempotencyKey,
		EventType:      rec.EventType,
		ActorID:        rec.ActorID,
		EntityType:     rec.EntityType,
		EntityID:       rec.EntityID,
		Payload:        string(rec.Payload),
		CreatedAt:      rec.CreatedAt.UnixMilli(),
	}
}

func NewDecisionRow(d models.SubstitutionDecision) DecisionRow {
	return DecisionRow{
		ID:               d.ID,
		OrderID:          d.OrderID,
		OriginalItemID:   d.OriginalItemID,
		SubstituteItemID: d.SubstituteItemID,
		Decision:         string(d.Decision),
		Auto:             d.Auto,
		PriceDelta:       d.PriceDelta.String(),
		Quantity:         int32(d.Quantity),
		DecidedAt:        d.DecidedAt.UnixMilli(),
	}
}

// rowSchema returns an empty row of the type archived for topic.
func rowSchema(topic string) (any, error) {
	switch topic {
	case models.TopicAuditEvents:
		return new(AuditRow), nil
	case models.TopicSubstitutionDecisions:
		return new(DecisionRow), nil
	default:
		return nil, fmt.Errorf("no parquet schema for topic %s", topic)
	}
}

func decodeRow(topic string, msg []byte) (any, error) {
	switch topic {
	case models.TopicAuditEvents:
		var rec models.AuditRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		return NewAuditRow(rec), nil
	case models.TopicSubstitutionDecisions:
		var d models.SubstitutionDecision
		if err := json.Unmarshal(msg, &d); err != nil {
			return nil, fmt.Errorf("decode substitution decision: %w", err)
		}
		return NewDecisionRow(d), nil
	default:
		return nil, fmt.Errorf("no parquet schema for topic %s", topic)
	}
}
