package models

import "github.com/shopspring/decimal"

// CartLine is one item in a customer's cart. Unavailable lines are waiting
// on a substitution decision.
type CartLine struct {
	ItemID          string          `json:"item_id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Quantity        int             `json:"quantity"`
	Unavailable     bool            `json:"unavailable,omitempty"`
	SubstitutedFrom string          `json:"substituted_from,omitempty"`
}

// Subtotal is price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	ID           string     `json:"id"`
	CustomerID   string     `json:"customer_id"`
	RestaurantID string     `json:"restaurant_id"`
	Lines        []CartLine `json:"lines"`
}

// Total sums the lines that are still available.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		if line.Unavailable {
			continue
		}
		total = total.Add(line.Subtotal())
	}
	return total
}
