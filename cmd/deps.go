package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/foodmarket/internal/audit"
	"github.com/chrisdamba/foodmarket/internal/backend"
	"github.com/chrisdamba/foodmarket/internal/models"
	"github.com/chrisdamba/foodmarket/internal/output"
	"github.com/chrisdamba/foodmarket/internal/repositories/postgres"
	"github.com/chrisdamba/foodmarket/internal/writequeue"
)

const flushTimeout = 30 * time.Second

// openPostgres returns nil when no dsn is configured. Pending migrations are
// applied on every open.
func openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Postgres.DSN == "" {
		return nil, nil
	}
	pool, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	n, err := postgres.MigratePool(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if n > 0 {
		logrus.WithField("applied", n).Info("postgres migrations applied")
	}
	return pool, nil
}

func newBackendClient() *backend.Client {
	return backend.NewClient(cfg.Backend, logrus.StandardLogger())
}

func newWriteQueue() *writequeue.Queue {
	return writequeue.New(writequeue.WithLogger(logrus.WithField("component", "writequeue")))
}

// auditStore picks where audit records land: postgres, then the backend, then
// the output sink indexed by redis (or by memory when redis is not set).
func auditStore(ctx context.Context, pool *pgxpool.Pool, sink output.OutputDestination) (audit.Store, func(), error) {
	switch {
	case pool != nil:
		return postgres.NewAuditRepository(pool), func() {}, nil
	case cfg.Backend.BaseURL != "":
		return backend.NewAuditStore(newBackendClient()), func() {}, nil
	case cfg.Redis.Addr != "":
		client, err := audit.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		index := audit.NewRedisKeyIndex(client, cfg.Redis.KeyPrefix, cfg.Redis.KeyTTL)
		return audit.NewIndexedStore(index, sink, models.TopicAuditEvents), func() { _ = client.Close() }, nil
	default:
		logrus.Warn("no durable audit store configured, deduplicating in memory")
		return audit.NewIndexedStore(audit.NewMemoryKeyIndex(), sink, models.TopicAuditEvents), func() {}, nil
	}
}

// drain waits for queued writes before the process exits.
func drain(q *writequeue.Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := q.Flush(ctx); err != nil {
		logrus.WithError(err).Warn("write queue did not drain before exit")
	}
	q.Close()
}

// openInput reads from stdin when path is "-" or empty.
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
