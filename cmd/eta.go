package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrisdamba/foodmarket/internal/eta"
	"github.com/chrisdamba/foodmarket/internal/repositories/postgres"
)

var etaCmd = &cobra.Command{
	Use:   "eta",
	Short: "Compute a delivery-time confidence band",
	Long: `eta computes the arrival band shown at checkout. Prep percentiles come from
the flags, or from the restaurant's recent orders when --restaurant-id is set
and postgres is configured.`,
	RunE: runEta,
}

type etaResult struct {
	Input   eta.Input   `json:"input"`
	Band    eta.Band    `json:"band"`
	Promise eta.Promise `json:"promise"`
}

func init() {
	f := etaCmd.Flags()
	f.Float64("prep-p50", 15, "Median prep time in minutes")
	f.Float64("prep-p90", 22, "90th percentile prep time in minutes")
	f.Float64("travel", 10, "Courier travel time in minutes")
	f.Float64("buffer", 0, "Buffer minutes (0 uses eta.buffer_minutes)")
	f.String("weather", "normal", "Weather severity: normal, rain or storm")
	f.Float64("reliability", 0, "Reliability score in [0,1] (0 uses eta.default_reliability)")
	f.Bool("stale", false, "Mark the prep data as stale")
	f.String("restaurant-id", "", "Derive prep percentiles and reliability from this restaurant's history")
	rootCmd.AddCommand(etaCmd)
}

func runEta(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	p50, _ := f.GetFloat64("prep-p50")
	p90, _ := f.GetFloat64("prep-p90")
	travel, _ := f.GetFloat64("travel")
	buffer, _ := f.GetFloat64("buffer")
	reliability, _ := f.GetFloat64("reliability")
	stale, _ := f.GetBool("stale")
	restaurantID, _ := f.GetString("restaurant-id")
	weatherFlag, _ := f.GetString("weather")

	weather, err := eta.ParseWeather(weatherFlag)
	if err != nil {
		return err
	}

	in := eta.NewInput(p50, p90, travel)
	in.Weather = weather
	in.DataFresh = !stale
	if buffer > 0 {
		in.BufferMinutes = buffer
	} else if cfg.Eta.BufferMinutes > 0 {
		in.BufferMinutes = cfg.Eta.BufferMinutes
	}
	if reliability > 0 {
		in.ReliabilityScore = reliability
	} else if cfg.Eta.DefaultReliability > 0 {
		in.ReliabilityScore = cfg.Eta.DefaultReliability
	}

	if restaurantID != "" {
		ctx := cmd.Context()
		pool, err := openPostgres(ctx)
		if err != nil {
			return err
		}
		if pool == nil {
			return fmt.Errorf("--restaurant-id needs postgres.dsn")
		}
		defer pool.Close()

		orders, err := postgres.NewOrderRepository(pool).GetRecentFinished(ctx, restaurantID, cfg.Eta.HistoryWindow)
		if err != nil {
			return err
		}
		if samples := eta.PrepMinutes(orders); len(samples) > 0 {
			in.PrepP50Minutes, in.PrepP90Minutes = eta.PrepPercentiles(samples)
			if reliability <= 0 {
				in.ReliabilityScore = eta.ReliabilityFromOrders(orders)
			}
		} else {
			in.DataFresh = false
		}
	}

	band := eta.ComputeBand(in)
	return printJSON(etaResult{Input: in, Band: band, Promise: eta.TimestampsFromNow(band, time.Now())})
}
