package factories

import (
	"time"

	"github.com/lucsky/cuid"
	"github.com/shopspring/decimal"

	"github.com/chrisdamba/foodmarket/internal/models"
)

type CheckoutFactory struct {
	Restaurants RestaurantFactory
	MenuItems   MenuItemFactory
}

// CreateCart fills a cart with up to lines distinct items from menu.
func (cf *CheckoutFactory) CreateCart(customerID string, menu []models.MenuItem, lines int) models.Cart {
	cart := models.Cart{ID: cuid.New(), CustomerID: customerID}
	if len(menu) == 0 {
		return cart
	}
	cart.RestaurantID = menu[0].RestaurantID
	for i := 0; i < lines && i < len(menu); i++ {
		item := menu[i]
		cart.Lines = append(cart.Lines, models.CartLine{
			ItemID:   item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: fake.IntBetween(1, 3),
		})
	}
	return cart
}

// CreateRule proposes a substitute for original priced within maxDeltaPct
// either side of it.
func (cf *CheckoutFactory) CreateRule(original models.MenuItem, auto bool, maxDeltaPct float64) models.SubstitutionRule {
	factor := 1 + fake.Float64(4, -int(maxDeltaPct*100), int(maxDeltaPct*100))/10000
	sub := original
	sub.ID = cuid.New()
	sub.Name = original.Name + " (alt)"
	sub.Price = original.Price.Mul(decimal.NewFromFloat(factor)).Round(2)
	return models.SubstitutionRule{
		OriginalItemID: original.ID,
		Substitute:     sub,
		AutoApply:      auto,
	}
}

// CreateFinishedOrder builds a delivered order whose pickup ran late or early
// by up to lateness minutes against its estimate.
func (cf *CheckoutFactory) CreateFinishedOrder(restaurant models.Restaurant, placedAt time.Time, lateness float64) models.Order {
	prepStart := placedAt.Add(time.Duration(fake.IntBetween(1, 5)) * time.Minute)
	estimatedPrep := time.Duration(restaurant.AvgPrepTime * float64(time.Minute))
	actualPrep := estimatedPrep + time.Duration(fake.Float64(2, -int(lateness), int(lateness))*float64(time.Minute))
	if actualPrep < time.Minute {
		actualPrep = time.Minute
	}
	pickup := prepStart.Add(actualPrep)
	delivered := pickup.Add(time.Duration(fake.IntBetween(8, 25)) * time.Minute)
	return models.Order{
		ID:                    cuid.New(),
		CustomerID:            cuid.New(),
		RestaurantID:          restaurant.ID,
		Status:                models.OrderStatusDelivered,
		OrderPlacedAt:         placedAt,
		PrepStartTime:         prepStart,
		EstimatedPickupTime:   prepStart.Add(estimatedPrep),
		PickupTime:            pickup,
		EstimatedDeliveryTime: prepStart.Add(estimatedPrep + 15*time.Minute),
		ActualDeliveryTime:    delivered,
	}
}

// CreateCheckoutRequest assembles a complete request around a fresh
// restaurant and menu.
func (cf *CheckoutFactory) CreateCheckoutRequest(city models.Location, radiusKm float64, now time.Time) models.CheckoutRequest {
	restaurant := cf.Restaurants.CreateRestaurant(city, radiusKm)
	menu := cf.MenuItems.CreateMenu(restaurant, 8)
	return cf.CreateCheckoutRequestFor(restaurant, menu, RandomLocation(city, radiusKm), now)
}

// CreateCheckoutRequestFor fills a cart from menu, adds a rule for every
// line, marks the first line unavailable and attaches a day of history.
func (cf *CheckoutFactory) CreateCheckoutRequestFor(restaurant models.Restaurant, menu []models.MenuItem, customer models.Location, now time.Time) models.CheckoutRequest {
	cart := cf.CreateCart(cuid.New(), menu, 3)
	req := models.CheckoutRequest{
		Restaurant:       restaurant,
		CustomerLocation: customer,
		Cart:             cart,
	}
	menuByID := make(map[string]models.MenuItem, len(menu))
	for _, item := range menu {
		menuByID[item.ID] = item
	}
	for i, line := range cart.Lines {
		req.Rules = append(req.Rules, cf.CreateRule(menuByID[line.ItemID], i%2 == 0, 20))
	}
	if len(cart.Lines) > 0 {
		req.Unavailable = []string{cart.Lines[0].ItemID}
	}
	for i := 0; i < 12; i++ {
		req.RecentOrders = append(req.RecentOrders, cf.CreateFinishedOrder(restaurant, now.Add(-time.Duration(i+1)*time.Hour), 8))
	}
	return req
}
