// Package writequeue is a best-effort, order-preserving retry queue for
// audit and event writes. It never guarantees delivery and must not carry
// money-moving or consistency-critical writes.
package writequeue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const DefaultMaxAttempts = 6

// ErrRejected is what a panicking or false-returning operation is logged as.
var ErrRejected = errors.New("operation reported failure")

// Operation performs one logical write. Returning false or an error, or
// panicking, all count as a failed attempt.
type Operation func(ctx context.Context) (bool, error)

type task struct {
	id          uint64
	op          Operation
	attempts    int
	maxAttempts int
	backOff     backoff.BackOff
}

// Queue drains tasks one at a time on a single worker goroutine. A failing
// task is put back at the front after its backoff delay, so it holds up later
// writes rather than being overtaken by them.
type Queue struct {
	mu         sync.Mutex
	tasks      []*task
	processing bool
	idle       chan struct{}
	closed     bool
	seq        uint64

	ctx    context.Context
	cancel context.CancelFunc

	newBackOff func() backoff.BackOff
	sleep      func(ctx context.Context, d time.Duration) error
	logger     logrus.FieldLogger
}

type Option func(*Queue)

// WithBackOff replaces the per-task retry policy. The factory is called once
// per enqueued task.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(q *Queue) {
		q.newBackOff = factory
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// New creates the queue. One instance is meant to live for the whole process
// and be handed to every writer that needs it.
func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		ctx:        ctx,
		cancel:     cancel,
		newBackOff: DefaultBackOff,
		sleep:      sleepContext,
		logger:     logrus.StandardLogger().WithField("component", "writequeue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// DefaultBackOff waits min(500ms * 2^attempts, 8s) after the n-th failure.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Enqueue accepts op and returns immediately. The caller is never told how
// the write ended; terminal failures are only logged.
func (q *Queue) Enqueue(op Operation, maxAttempts ...int) {
	attempts := DefaultMaxAttempts
	if len(maxAttempts) > 0 && maxAttempts[0] > 0 {
		attempts = maxAttempts[0]
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("write queue closed, dropping operation")
		return
	}

	q.seq++
	q.tasks = append(q.tasks, &task{
		id:          q.seq,
		op:          op,
		maxAttempts: attempts,
		backOff:     q.newBackOff(),
	})

	if q.processing {
		return
	}
	q.processing = true
	q.idle = make(chan struct{})
	go q.drain()
}

// Len returns the number of tasks waiting, not counting the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Flush blocks until every accepted task has either succeeded or been dropped.
func (q *Queue) Flush(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.processing {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

// Close stops the worker. Tasks still waiting are abandoned with a log line.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 || q.ctx.Err() != nil {
			if n := len(q.tasks); n > 0 {
				q.logger.WithField("abandoned", n).Warn("write queue stopped with pending operations")
				q.tasks = nil
			}
			q.processing = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		err := q.execute(t)
		if err == nil {
			continue
		}

		t.attempts++
		log := q.logger.WithFields(logrus.Fields{
			"task_id":      t.id,
			"attempts":     t.attempts,
			"max_attempts": t.maxAttempts,
			"error":        err,
		})
		if t.attempts >= t.maxAttempts {
			log.Error("write dropped after exhausting retries")
			continue
		}
		delay := t.backOff.NextBackOff()
		if delay == backoff.Stop {
			log.Error("write dropped, retry policy gave up")
			continue
		}

		log.WithField("retry_in", delay).Warn("write failed, retrying")
		if err := q.sleep(q.ctx, delay); err != nil {
			log.Warn("write abandoned during shutdown")
			continue
		}

		q.mu.Lock()
		q.tasks = append([]*task{t}, q.tasks...)
		q.mu.Unlock()
	}
}

func (q *Queue) execute(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()

	ok, err := t.op(q.ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRejected
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
