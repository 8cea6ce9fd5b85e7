package repositories

import (
	"context"

	"github.com/chrisdamba/foodmarket/internal/models"
)

// AuditRepository satisfies audit.Store.
type AuditRepository interface {
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
	Insert(ctx context.Context, record models.AuditRecord) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditRecord, error)
}

type DecisionRepository interface {
	// SaveLedger replaces every decision stored for orderID with decisions.
	SaveLedger(ctx context.Context, orderID string, decisions []models.SubstitutionDecision) error
	GetByOrderID(ctx context.Context, orderID string) ([]models.SubstitutionDecision, error)
}

type MenuItemRepository interface {
	BulkCreate(ctx context.Context, menuItems []*models.MenuItem) error
	GetByRestaurantID(ctx context.Context, restaurantID string) ([]*models.MenuItem, error)
	SetAvailability(ctx context.Context, itemID string, available bool) error
}

type OrderRepository interface {
	// GetRecentFinished returns the restaurant's latest delivered or
	// cancelled orders, newest first.
	GetRecentFinished(ctx context.Context, restaurantID string, limit int) ([]models.Order, error)
}
