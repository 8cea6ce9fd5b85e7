package factories

import (
	"github.com/lucsky/cuid"
	"github.com/shopspring/decimal"

	"github.com/chrisdamba/foodmarket/internal/models"
)

var dishesByCuisine = map[string][]string{
	"Italian":       {"Margherita Pizza", "Spaghetti Carbonara", "Lasagna", "Tiramisu"},
	"Indian":        {"Chicken Tikka Masala", "Vegetable Curry", "Naan Bread", "Biryani"},
	"American":      {"Cheeseburger", "Hot Dog", "BBQ Ribs", "Apple Pie"},
	"Japanese":      {"Sushi Roll", "Ramen", "Tempura", "Miso Soup"},
	"Mexican":       {"Tacos", "Burrito", "Guacamole", "Quesadilla"},
	"Chinese":       {"Kung Pao Chicken", "Fried Rice", "Dumplings", "Mapo Tofu"},
	"Thai":          {"Pad Thai", "Green Curry", "Tom Yum Soup", "Mango Sticky Rice"},
	"Greek":         {"Gyros", "Greek Salad", "Moussaka", "Baklava"},
	"French":        {"Coq au Vin", "Beef Bourguignon", "Ratatouille", "Crème Brûlée"},
	"Mediterranean": {"Falafel", "Hummus", "Tabbouleh", "Grilled Halloumi"},
}

var menuCategories = []string{"appetizer", "main course", "side dish", "dessert", "drink"}

type MenuItemFactory struct{}

func (mf *MenuItemFactory) CreateMenuItem(restaurant models.Restaurant) models.MenuItem {
	return models.MenuItem{
		ID:           cuid.New(),
		RestaurantID: restaurant.ID,
		Name:         dishName(restaurant.Cuisines),
		Description:  fake.Lorem().Sentence(10),
		Price:        decimal.NewFromFloat(fake.Float64(2, 5, 30)).Round(2),
		PrepTime:     fake.Float64(0, 5, 30),
		Category:     menuCategories[fake.IntBetween(0, len(menuCategories)-1)],
		Available:    true,
	}
}

// CreateMenu returns n items, every one of them available.
func (mf *MenuItemFactory) CreateMenu(restaurant models.Restaurant, n int) []models.MenuItem {
	menu := make([]models.MenuItem, n)
	for i := range menu {
		menu[i] = mf.CreateMenuItem(restaurant)
	}
	return menu
}

func dishName(cuisines []string) string {
	if len(cuisines) == 0 {
		return "Special of the Day"
	}
	cuisine := cuisines[fake.IntBetween(0, len(cuisines)-1)]
	if dishes, ok := dishesByCuisine[cuisine]; ok {
		return dishes[fake.IntBetween(0, len(dishes)-1)]
	}
	return "Special of the Day"
}
