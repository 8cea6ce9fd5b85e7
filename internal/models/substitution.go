package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
	DecisionChat    Decision = "chat"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionAccept, DecisionDecline, DecisionChat:
		return true
	}
	return false
}

// SubstitutionRule is configured by the merchant for a menu item that may run out.
type SubstitutionRule struct {
	OriginalItemID string   `json:"original_item_id" mapstructure:"original_item_id"`
	Substitute     MenuItem `json:"substitute" mapstructure:"substitute"`
	AutoApply      bool     `json:"auto_apply" mapstructure:"auto_apply"`
	// MaxPriceDeltaPct falls back to the engine default when not set.
	MaxPriceDeltaPct decimal.NullDecimal `json:"max_price_delta_pct" mapstructure:"max_price_delta_pct"`
}

type SubstitutionDecision struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id,omitempty"`
	OriginalItemID   string          `json:"original_item_id"`
	SubstituteItemID *string         `json:"substitute_item_id"`
	Decision         Decision        `json:"decision"`
	Auto             bool            `json:"auto"`
	PriceDelta       decimal.Decimal `json:"price_delta"`
	Quantity         int             `json:"quantity"`
	DecidedAt        time.Time       `json:"decided_at"`
}
