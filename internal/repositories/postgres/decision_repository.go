package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chrisdamba/foodmarket/internal/models"
)

type DecisionRepository struct {
	db DBTX
}

func NewDecisionRepository(db DBTX) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// SaveLedger stores the order's surviving decisions in one transaction.
func (r *DecisionRepository) SaveLedger(ctx context.Context, orderID string, decisions []models.SubstitutionDecision) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM substitution_decisions WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("clear ledger for %s: %w", orderID, err)
	}

	query := `
        INSERT INTO substitution_decisions (
            id, order_id, original_item_id, substitute_item_id,
            decision, auto, price_delta, quantity, decided_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
    `
	for _, d := range decisions {
		_, err = tx.Exec(ctx, query,
			d.ID,
			orderID,
			d.OriginalItemID,
			d.SubstituteItemID,
			string(d.Decision),
			d.Auto,
			d.PriceDelta.String(),
			d.Quantity,
			d.DecidedAt,
		)
		if err != nil {
			return fmt.Errorf("insert decision for %s: %w", d.OriginalItemID, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *DecisionRepository) GetByOrderID(ctx context.Context, orderID string) ([]models.SubstitutionDecision, error) {
	query := `
        SELECT id, order_id, original_item_id, substitute_item_id,
               decision, auto, price_delta::text, quantity, decided_at
        FROM substitution_decisions
        WHERE order_id = $1
        ORDER BY decided_at, id
    `
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []models.SubstitutionDecision
	for rows.Next() {
		var d models.SubstitutionDecision
		var decision, priceDelta string
		err := rows.Scan(
			&d.ID,
			&d.OrderID,
			&d.OriginalItemID,
			&d.SubstituteItemID,
			&decision,
			&d.Auto,
			&priceDelta,
			&d.Quantity,
			&d.DecidedAt,
		)
		if err != nil {
			return nil, err
		}
		d.Decision = models.Decision(decision)
		if d.PriceDelta, err = decimal.NewFromString(priceDelta); err != nil {
			return nil, fmt.Errorf("parse price delta %q: %w", priceDelta, err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
