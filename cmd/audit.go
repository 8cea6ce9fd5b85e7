package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chrisdamba/foodmarket/internal/audit"
	"github.com/chrisdamba/foodmarket/internal/models"
	"github.com/chrisdamba/foodmarket/internal/output"
	"github.com/chrisdamba/foodmarket/internal/repositories/postgres"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and replay the audit trail",
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Replay a JSON-lines file of audit records through the write queue",
	Long: `replay feeds every record through the same idempotent write path the
console and checkout use. Records already present are skipped, so a file can
be replayed as often as needed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditReplay,
}

var auditListCmd = &cobra.Command{
	Use:   "list <entity-type> <entity-id>",
	Short: "List audit records for an entity (postgres only)",
	Args:  cobra.ExactArgs(2),
	RunE:  runAuditList,
}

func init() {
	auditReplayCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
	auditCmd.AddCommand(auditReplayCmd, auditListCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := "-"
	if len(args) == 1 {
		path = args[0]
	}
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	records, err := readAuditRecords(path)
	if err != nil {
		return err
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
	recorder := audit.NewRecorder(queue, store)

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("replaying audit records"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(!noProgress),
	)
	var written atomic.Int64
	for _, rec := range records {
		op := recorder.Operation(rec)
		queue.Enqueue(func(ctx context.Context) (bool, error) {
			ok, err := op(ctx)
			if ok && err == nil {
				written.Add(1)
				_ = bar.Add(1)
			}
			return ok, err
		}, cfg.WriteQueue.MaxAttempts)
	}
	drain(queue)
	_ = bar.Finish()

	logrus.WithFields(logrus.Fields{
		"records": len(records),
		"written": written.Load(),
	}).Info("audit replay finished")
	return nil
}

func readAuditRecords(path string) ([]models.AuditRecord, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var records []models.AuditRecord
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.AuditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if rec.IdempotencyKey == "" {
			return nil, fmt.Errorf("line %d: record %s has no idempotency key", n, rec.ID)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func runAuditList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pool, err := openPostgres(ctx)
	if err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("audit list needs postgres.dsn")
	}
	defer pool.Close()

	records, err := postgres.NewAuditRepository(pool).ListByEntity(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(records)
}
