package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chrisdamba/foodmarket/internal/models"
)

type MenuItemRepository struct {
	db DBTX
}

func NewMenuItemRepository(db DBTX) *MenuItemRepository {
	return &MenuItemRepository{db: db}
}

func (r *MenuItemRepository) BulkCreate(ctx context.Context, menuItems []*models.MenuItem) error {
	_, err := r.db.CopyFrom(
		ctx,
		pgx.Identifier{"menu_items"},
		[]string{"id", "restaurant_id", "name", "description", "price", "prep_time", "category", "available"},
		pgx.CopyFromSlice(len(menuItems), func(i int) ([]interface{}, error) {
			return []interface{}{
				menuItems[i].ID,
				menuItems[i].RestaurantID,
				menuItems[i].Name,
				menuItems[i].Description,
				menuItems[i].Price.String(),
				menuItems[i].PrepTime,
				menuItems[i].Category,
				menuItems[i].Available,
			}, nil
		}),
	)
	return err
}

func (r *MenuItemRepository) GetByRestaurantID(ctx context.Context, restaurantID string) ([]*models.MenuItem, error) {
	query := `
        SELECT id, restaurant_id, name, description, price::text,
               prep_time, category, available
        FROM menu_items
        WHERE restaurant_id = $1
        ORDER BY name
    `
	rows, err := r.db.Query(ctx, query, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var menuItems []*models.MenuItem
	for rows.Next() {
		menuItem := &models.MenuItem{}
		var price string
		err := rows.Scan(
			&menuItem.ID,
			&menuItem.RestaurantID,
			&menuItem.Name,
			&menuItem.Description,
			&price,
			&menuItem.PrepTime,
			&menuItem.Category,
			&menuItem.Available,
		)
		if err != nil {
			return nil, err
		}
		if menuItem.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of %s: %w", menuItem.ID, err)
		}
		menuItems = append(menuItems, menuItem)
	}
	return menuItems, rows.Err()
}

func (r *MenuItemRepository) SetAvailability(ctx context.Context, itemID string, available bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE menu_items SET available = $2 WHERE id = $1`, itemID, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("menu item %s: %w", itemID, pgx.ErrNoRows)
	}
	return nil
}
