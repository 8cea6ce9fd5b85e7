// Package actionqueue gives a reviewer a short undo window after an
// approve/reject tap: the item disappears immediately but the real mutation
// only runs once the window closes without an undo.
package actionqueue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultDelay    = 800 * time.Millisecond
	DefaultCooldown = 500 * time.Millisecond

	ThrottledText = "Slow down, one action at a time"
	CanceledText  = "Action canceled"
)

type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// Banner is what the screen shows above the list.
type Banner struct {
	Text string `json:"text"`
	Tone Tone   `json:"tone"`
	Undo bool   `json:"undo"`
}

type State int

const (
	StateIdle State = iota
	StatePending
	StateCommitted
	StateUndone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateUndone:
		return "undone"
	default:
		return "idle"
	}
}

// Request describes one reviewer action. Zero Delay or Cooldown means the
// queue default.
type Request[T any] struct {
	Kind       string
	Action     string
	Item       T
	OnCommit   func(ctx context.Context, item T) error
	OnRestore  func(item T)
	OnDequeue  func(item T)
	QueuedText string
	QueuedTone Tone
	Delay      time.Duration
	Cooldown   time.Duration
}

// command is the pending slot's occupant. Its state only moves forward:
// pending to committed or pending to undone.
type command[T any] struct {
	req   Request[T]
	state State
	timer Timer
}

func (c *command[T]) commit(ctx context.Context) error {
	if c.req.OnCommit == nil {
		return nil
	}
	return c.req.OnCommit(ctx, c.req.Item)
}

func (c *command[T]) undo() {
	if c.req.OnRestore != nil {
		c.req.OnRestore(c.req.Item)
	}
}

// cancel must be called with the queue lock held.
func (c *command[T]) cancel() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.state = StateUndone
}

// Queue holds at most one pending action.
type Queue[T any] struct {
	mu           sync.Mutex
	pending      *command[T]
	lastAccepted time.Time
	banner       Banner
	closed       bool
	inflight     sync.WaitGroup

	ctx      context.Context
	clock    Clock
	delay    time.Duration
	cooldown time.Duration
	onBanner func(Banner)
	logger   logrus.FieldLogger
}

type Option func(*options)

type options struct {
	ctx      context.Context
	clock    Clock
	delay    time.Duration
	cooldown time.Duration
	onBanner func(Banner)
	logger   logrus.FieldLogger
}

func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

func WithCooldown(d time.Duration) Option {
	return func(o *options) { o.cooldown = d }
}

// WithBannerListener is called after every banner change, outside the lock.
func WithBannerListener(fn func(Banner)) Option {
	return func(o *options) { o.onBanner = fn }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithContext sets the context passed to OnCommit.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

func New[T any](opts ...Option) *Queue[T] {
	o := options{
		ctx:      context.Background(),
		clock:    RealClock(),
		delay:    DefaultDelay,
		cooldown: DefaultCooldown,
		logger:   logrus.StandardLogger().WithField("component", "actionqueue"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue[T]{
		ctx:      o.ctx,
		clock:    o.clock,
		delay:    o.delay,
		cooldown: o.cooldown,
		onBanner: o.onBanner,
		logger:   o.logger,
	}
}

// QueueAction admits req unless it arrives within the cooldown of the last
// accepted request. An action already pending is force-undone first.
func (q *Queue[T]) QueueAction(req Request[T]) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	now := q.clock.Now()
	cooldown := req.Cooldown
	if cooldown <= 0 {
		cooldown = q.cooldown
	}
	if !q.lastAccepted.IsZero() && now.Sub(q.lastAccepted) < cooldown {
		banner := q.setBanner(Banner{Text: ThrottledText, Tone: ToneWarning, Undo: q.pending != nil})
		q.mu.Unlock()
		q.notify(banner)
		return false
	}
	q.lastAccepted = now

	superseded := q.pending
	if superseded != nil {
		superseded.cancel()
	}

	cmd := &command[T]{req: req, state: StatePending}
	q.pending = cmd
	tone := req.QueuedTone
	if tone == "" {
		tone = ToneInfo
	}
	banner := q.setBanner(Banner{Text: req.QueuedText, Tone: tone, Undo: true})
	// Callbacks run outside the lock. QueueAction, UndoPending and Close are
	// called from the one goroutine that owns the screen, so an undo cannot
	// slip in between the restore and the dequeue below.
	q.mu.Unlock()

	if superseded != nil {
		q.logger.WithFields(logrus.Fields{
			"kind":   superseded.req.Kind,
			"action": superseded.req.Action,
		}).Debug("pending action superseded, restoring")
		superseded.undo()
	}
	if req.OnDequeue != nil {
		req.OnDequeue(req.Item)
	}

	delay := req.Delay
	if delay <= 0 {
		delay = q.delay
	}
	q.mu.Lock()
	if q.pending == cmd && cmd.state == StatePending {
		cmd.timer = q.clock.AfterFunc(delay, func() { q.fire(cmd) })
	}
	q.mu.Unlock()

	q.notify(banner)
	return true
}

// UndoPending cancels the pending action and restores its item. It reports
// whether there was anything to undo.
func (q *Queue[T]) UndoPending() bool {
	q.mu.Lock()
	cmd := q.pending
	if cmd == nil {
		q.mu.Unlock()
		return false
	}
	cmd.cancel()
	q.pending = nil
	banner := q.setBanner(Banner{Text: CanceledText, Tone: ToneInfo})
	q.mu.Unlock()

	cmd.undo()
	q.notify(banner)
	return true
}

// Close is the teardown path: a pending action is restored, never committed.
// A commit that already started is waited for, so OnCommit must not call
// Close.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	cmd := q.pending
	q.pending = nil
	if cmd != nil {
		cmd.cancel()
	}
	q.banner = Banner{}
	q.mu.Unlock()

	if cmd != nil {
		cmd.undo()
	}
	q.inflight.Wait()
}

func (q *Queue[T]) Banner() Banner {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.banner
}

// Pending returns the item waiting to be committed, if any.
func (q *Queue[T]) Pending() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		var zero T
		return zero, false
	}
	return q.pending.req.Item, true
}

func (q *Queue[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return StateIdle
	}
	return q.pending.state
}

func (q *Queue[T]) fire(cmd *command[T]) {
	q.mu.Lock()
	if q.pending != cmd || cmd.state != StatePending {
		q.mu.Unlock()
		return
	}
	cmd.state = StateCommitted
	q.pending = nil
	q.inflight.Add(1)
	defer q.inflight.Done()
	banner := q.setBanner(Banner{})
	q.mu.Unlock()

	q.notify(banner)
	if err := cmd.commit(q.ctx); err != nil {
		// No retry and no rollback: OnCommit owns reporting its own failure.
		q.logger.WithFields(logrus.Fields{
			"kind":   cmd.req.Kind,
			"action": cmd.req.Action,
			"error":  err,
		}).Warn("action commit failed")
	}
}

// setBanner must be called with the lock held.
func (q *Queue[T]) setBanner(b Banner) Banner {
	q.banner = b
	return b
}

func (q *Queue[T]) notify(b Banner) {
	if q.onBanner != nil {
		q.onBanner(b)
	}
}
