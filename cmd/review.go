package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chrisdamba/foodmarket/internal/actionqueue"
	"github.com/chrisdamba/foodmarket/internal/audit"
	"github.com/chrisdamba/foodmarket/internal/output"
	"github.com/chrisdamba/foodmarket/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Moderate pending restaurant submissions",
	Long: `review opens a console over the pending review queue. approve <id> and
reject <id> hide the item at once and commit after a short delay; undo
brings it back before the commit fires.`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().String("queue", "", "Pending reviews JSON file (default: ask the backend)")
	reviewCmd.Flags().String("actor", "moderator", "Moderator id recorded in the audit trail")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	queuePath, _ := cmd.Flags().GetString("queue")
	actor, _ := cmd.Flags().GetString("actor")

	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("review needs backend.base_url to commit decisions")
	}
	client := newBackendClient()

	var items []review.Item
	if queuePath != "" {
		data, err := os.ReadFile(queuePath)
		if err != nil {
			return fmt.Errorf("read review queue: %w", err)
		}
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode review queue: %w", err)
		}
	} else {
		var err error
		if items, err = review.LoadPending(ctx, client); err != nil {
			return err
		}
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

	queueOpts := []actionqueue.Option{actionqueue.WithContext(ctx)}
	if cfg.ActionQueue.Delay > 0 {
		queueOpts = append(queueOpts, actionqueue.WithDelay(cfg.ActionQueue.Delay))
	}
	if cfg.ActionQueue.Cooldown > 0 {
		queueOpts = append(queueOpts, actionqueue.WithCooldown(cfg.ActionQueue.Cooldown))
	}

	console := review.NewConsole(items, client,
		review.WithActor(actor),
		review.WithRecorder(audit.NewRecorder(queue, store, audit.WithMaxAttempts(cfg.WriteQueue.MaxAttempts))),
		review.WithOutput(cmd.OutOrStdout()),
		review.WithQueueOptions(queueOpts...),
	)
	return console.Run(ctx, cmd.InOrStdin())
}
