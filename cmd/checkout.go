package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chrisdamba/foodmarket/internal/audit"
	"github.com/chrisdamba/foodmarket/internal/checkout"
	"github.com/chrisdamba/foodmarket/internal/models"
	"github.com/chrisdamba/foodmarket/internal/output"
	"github.com/chrisdamba/foodmarket/internal/repositories/postgres"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Resolve substitutions and place an order",
	Long: `checkout reads a checkout request (JSON, from --request or stdin), applies
auto-swaps and answered prompts, computes the delivery band and prints the
order payload. Open prompts are printed instead and nothing is placed.`,
	RunE: runCheckout,
}

func init() {
	checkoutCmd.Flags().StringP("request", "r", "-", "Checkout request JSON file, - for stdin")
	rootCmd.AddCommand(checkoutCmd)
}

func runCheckout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("request")

	in, err := openInput(path)
	if err != nil {
		return err
	}
	var req models.CheckoutRequest
	err = json.NewDecoder(in).Decode(&req)
	in.Close()
	if err != nil {
		return fmt.Errorf("decode checkout request: %w", err)
	}

	pool, err := openPostgres(ctx)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	sink, err := output.NewDestination(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logrus.WithError(err).Error("failed to close output")
		}
	}()

	store, closeStore, err := auditStore(ctx, pool, sink)
	if err != nil {
		return err
	}
	defer closeStore()

	queue := newWriteQueue()
	defer drain(queue)
	recorder := audit.NewRecorder(queue, store, audit.WithMaxAttempts(cfg.WriteQueue.MaxAttempts))

	opts := []checkout.Option{
		checkout.WithArchive(sink),
		checkout.WithRecorder(recorder),
	}
	if pool != nil {
		if err := enrichFromPostgres(ctx, pool, &req); err != nil {
			return err
		}
		opts = append(opts, checkout.WithLedger(postgres.NewDecisionRepository(pool)))
	}

	result, err := checkout.NewService(cfg, opts...).Checkout(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// enrichFromPostgres marks cart items the menu reports unavailable and loads
// prep history when the request carries none.
func enrichFromPostgres(ctx context.Context, pool *pgxpool.Pool, req *models.CheckoutRequest) error {
	restaurantID := req.Cart.RestaurantID
	if restaurantID == "" {
		restaurantID = req.Restaurant.ID
	}
	if restaurantID == "" {
		return nil
	}

	menu, err := postgres.NewMenuItemRepository(pool).GetByRestaurantID(ctx, restaurantID)
	if err != nil {
		return err
	}
	flagged := make(map[string]bool, len(req.Unavailable))
	for _, id := range req.Unavailable {
		flagged[id] = true
	}
	inCart := make(map[string]bool, len(req.Cart.Lines))
	for _, line := range req.Cart.Lines {
		inCart[line.ItemID] = true
	}
	for _, item := range menu {
		if !item.Available && inCart[item.ID] && !flagged[item.ID] {
			req.Unavailable = append(req.Unavailable, item.ID)
			flagged[item.ID] = true
		}
	}

	if len(req.RecentOrders) == 0 {
		req.RecentOrders, err = postgres.NewOrderRepository(pool).GetRecentFinished(ctx, restaurantID, cfg.Eta.HistoryWindow)
		if err != nil {
			return err
		}
	}
	return nil
}
