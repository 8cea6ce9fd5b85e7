package audit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/foodmarket/internal/models"
	"github.com/chrisdamba/foodmarket/internal/writequeue"
)

// Store is where audit records land. Exists is checked before every insert,
// so a retried write that already made it is not written twice.
type Store interface {
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
	Insert(ctx context.Context, record models.AuditRecord) error
}

// Enqueuer is satisfied by *writequeue.Queue.
type Enqueuer interface {
	Enqueue(op writequeue.Operation, maxAttempts ...int)
}

type Recorder struct {
	queue       Enqueuer
	store       Store
	maxAttempts int
	logger      logrus.FieldLogger
}

type RecorderOption func(*Recorder)

func WithMaxAttempts(n int) RecorderOption {
	return func(r *Recorder) { r.maxAttempts = n }
}

func WithLogger(logger logrus.FieldLogger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

func NewRecorder(queue Enqueuer, store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		queue:       queue,
		store:       store,
		maxAttempts: writequeue.DefaultMaxAttempts,
		logger:      logrus.StandardLogger().WithField("component", "audit"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record hands the record to the write queue and returns immediately.
func (r *Recorder) Record(record models.AuditRecord) {
	r.queue.Enqueue(r.Operation(record), r.maxAttempts)
}

// Operation is the idempotent write for record: an existing key counts as
// success.
func (r *Recorder) Operation(record models.AuditRecord) writequeue.Operation {
	return func(ctx context.Context) (bool, error) {
		exists, err := r.store.Exists(ctx, record.IdempotencyKey)
		if err != nil {
			return false, fmt.Errorf("check idempotency key %s: %w", record.IdempotencyKey, err)
		}
		if exists {
			r.logger.WithFields(logrus.Fields{
				"event_type":      record.EventType,
				"idempotency_key": record.IdempotencyKey,
			}).Debug("audit record already written")
			return true, nil
		}
		if err := r.store.Insert(ctx, record); err != nil {
			return false, fmt.Errorf("insert audit record %s: %w", record.ID, err)
		}
		return true, nil
	}
}
