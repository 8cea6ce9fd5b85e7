package postgres

import (
	"context"
	"time"

	"github.com/chrisdamba/foodmarket/internal/models"
)

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetRecentFinished(ctx context.Context, restaurantID string, limit int) ([]models.Order, error) {
	query := `
        SELECT id, customer_id, restaurant_id, status, order_placed_at,
               prep_start_time, estimated_pickup_time, pickup_time,
               estimated_delivery_time, actual_delivery_time
        FROM orders
        WHERE restaurant_id = $1 AND status IN ($2, $3)
        ORDER BY order_placed_at DESC
        LIMIT $4
    `
	rows, err := r.db.Query(ctx, query, restaurantID, models.OrderStatusDelivered, models.OrderStatusCancelled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var prepStart, estPickup, pickup, estDelivery, delivered *time.Time
		err := rows.Scan(
			&o.ID,
			&o.CustomerID,
			&o.RestaurantID,
			&o.Status,
			&o.OrderPlacedAt,
			&prepStart,
			&estPickup,
			&pickup,
			&estDelivery,
			&delivered,
		)
		if err != nil {
			return nil, err
		}
		o.PrepStartTime = derefTime(prepStart)
		o.EstimatedPickupTime = derefTime(estPickup)
		o.PickupTime = derefTime(pickup)
		o.EstimatedDeliveryTime = derefTime(estDelivery)
		o.ActualDeliveryTime = derefTime(delivered)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
