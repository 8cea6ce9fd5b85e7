package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the slice of the backend order record the client needs to judge
// how reliable a restaurant's prep estimates have been.
type Order struct {
	ID                    string    `json:"id"`
	CustomerID            string    `json:"customer_id"`
	RestaurantID          string    `json:"restaurant_id"`
	Status                string    `json:"status"`
	OrderPlacedAt         time.Time `json:"order_placed_at"`
	PrepStartTime         time.Time `json:"prep_start_time"`
	EstimatedPickupTime   time.Time `json:"estimated_pickup_time"`
	PickupTime            time.Time `json:"pickup_time"`
	EstimatedDeliveryTime time.Time `json:"estimated_delivery_time"`
	ActualDeliveryTime    time.Time `json:"actual_delivery_time"`
}

// DeliveryPromise is the arrival window shown to the customer at checkout.
type DeliveryPromise struct {
	PromisedAt time.Time `json:"promised_at"`
	EarliestAt time.Time `json:"earliest_at"`
	LatestAt   time.Time `json:"latest_at"`
	Trusted    bool      `json:"trusted"`
}

// OrderPlacement is the payload sent to the backend when the customer checks out.
type OrderPlacement struct {
	OrderID       string                 `json:"order_id"`
	CustomerID    string                 `json:"customer_id"`
	RestaurantID  string                 `json:"restaurant_id"`
	Lines         []CartLine             `json:"lines"`
	Total         decimal.Decimal        `json:"total"`
	Substitutions []SubstitutionDecision `json:"substitutions"`
	Promise       *DeliveryPromise       `json:"promise,omitempty"`
}
