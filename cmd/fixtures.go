package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chrisdamba/foodmarket/internal/factories"
	"github.com/chrisdamba/foodmarket/internal/models"
	"github.com/chrisdamba/foodmarket/internal/repositories/postgres"
)

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Generate a sample checkout request",
	Long: `fixtures prints a checkout request with a restaurant, a cart, substitution
rules and a day of order history, ready to pipe into checkout. With --seed
the restaurant's menu is also written to postgres.`,
	RunE: runFixtures,
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Manage menu items in postgres",
}

var menuAvailabilityCmd = &cobra.Command{
	Use:   "availability <item-id> <true|false>",
	Short: "Mark a menu item available or sold out",
	Args:  cobra.ExactArgs(2),
	RunE:  runMenuAvailability,
}

func init() {
	f := fixturesCmd.Flags()
	f.Float64("lat", 51.5074, "City centre latitude")
	f.Float64("lon", -0.1278, "City centre longitude")
	f.Float64("radius", 5, "Radius in km around the centre")
	f.Int("menu-size", 8, "Number of menu items")
	f.Bool("seed", false, "Write the generated menu to postgres")
	rootCmd.AddCommand(fixturesCmd)

	menuCmd.AddCommand(menuAvailabilityCmd)
	rootCmd.AddCommand(menuCmd)
}

func runFixtures(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	lat, _ := f.GetFloat64("lat")
	lon, _ := f.GetFloat64("lon")
	radius, _ := f.GetFloat64("radius")
	menuSize, _ := f.GetInt("menu-size")
	seed, _ := f.GetBool("seed")

	center := models.Location{Lat: lat, Lon: lon}
	var cf factories.CheckoutFactory
	restaurant := cf.Restaurants.CreateRestaurant(center, radius)
	menu := cf.MenuItems.CreateMenu(restaurant, menuSize)
	req := cf.CreateCheckoutRequestFor(restaurant, menu, factories.RandomLocation(center, radius), time.Now())

	if seed {
		ctx := cmd.Context()
		pool, err := openPostgres(ctx)
		if err != nil {
			return err
		}
		if pool == nil {
			return fmt.Errorf("--seed needs postgres.dsn")
		}
		defer pool.Close()

		items := make([]*models.MenuItem, len(menu))
		for i := range menu {
			items[i] = &menu[i]
		}
		if err := postgres.NewMenuItemRepository(pool).BulkCreate(ctx, items); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"restaurant_id": restaurant.ID,
			"items":         len(items),
		}).Info("menu seeded")
	}
	return printJSON(req)
}

func runMenuAvailability(cmd *cobra.Command, args []string) error {
	available, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("availability must be true or false: %w", err)
	}
	ctx := cmd.Context()
	pool, err := openPostgres(ctx)
	if err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("menu availability needs postgres.dsn")
	}
	defer pool.Close()

	if err := postgres.NewMenuItemRepository(pool).SetAvailability(ctx, args[0], available); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"item_id": args[0], "available": available}).Info("menu item updated")
	return nil
}
