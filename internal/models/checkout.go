package models

// CheckoutRequest is everything checkout needs to resolve a cart and promise
// a delivery window. Unavailable lists item ids that ran out since the cart
// was filled.
type CheckoutRequest struct {
	Restaurant       Restaurant         `json:"restaurant"`
	CustomerLocation Location           `json:"customer_location"`
	Cart             Cart               `json:"cart"`
	Rules            []SubstitutionRule `json:"rules"`
	Unavailable      []string           `json:"unavailable"`
	Weather          string             `json:"weather,omitempty"`
	RecentOrders     []Order            `json:"recent_orders,omitempty"`
	// Choices answers substitution prompts, keyed by original item id.
	Choices map[string]Decision `json:"choices,omitempty"`
}

// RuleFor returns the rule for itemID, or nil.
func (r *CheckoutRequest) RuleFor(itemID string) *SubstitutionRule {
	for i := range r.Rules {
		if r.Rules[i].OriginalItemID == itemID {
			return &r.Rules[i]
		}
	}
	return nil
}
