// Package review is the line-oriented moderation console. Approve and reject
// go through an action queue so each can be undone until its commit fires.
package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/foodmarket/internal/actionqueue"
	"github.com/chrisdamba/foodmarket/internal/audit"
	"github.com/chrisdamba/foodmarket/internal/models"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"

	listPendingRPC = "list_pending_reviews"
)

// Item is a restaurant submission waiting for a moderator.
type Item struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurant_id"`
	Title        string `json:"title"`
}

// Mutator is satisfied by *backend.Client.
type Mutator interface {
	Mutate(ctx context.Context, name string, args any, out any) error
}

// LoadPending asks the backend for the review queue.
func LoadPending(ctx context.Context, m Mutator) ([]Item, error) {
	var items []Item
	if err := m.Mutate(ctx, listPendingRPC, struct{}{}, &items); err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	return items, nil
}

type Console struct {
	mu    sync.Mutex
	items []Item
	rank  map[string]int

	outMu sync.Mutex
	out   io.Writer

	queue     *actionqueue.Queue[Item]
	mutator   Mutator
	recorder  *audit.Recorder
	actorID   string
	logger    logrus.FieldLogger
	queueOpts []actionqueue.Option
}

type Option func(*Console)

func WithRecorder(r *audit.Recorder) Option {
	return func(c *Console) { c.recorder = r }
}

func WithActor(id string) Option {
	return func(c *Console) { c.actorID = id }
}

func WithOutput(w io.Writer) Option {
	return func(c *Console) { c.out = w }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Console) { c.logger = logger }
}

// WithQueueOptions is passed through to the action queue.
func WithQueueOptions(opts ...actionqueue.Option) Option {
	return func(c *Console) { c.queueOpts = append(c.queueOpts, opts...) }
}

func NewConsole(items []Item, mutator Mutator, opts ...Option) *Console {
	c := &Console{
		items:   append([]Item(nil), items...),
		rank:    make(map[string]int, len(items)),
		out:     os.Stdout,
		mutator: mutator,
		actorID: "moderator",
		logger:  logrus.StandardLogger().WithField("component", "review"),
	}
	for i, it := range items {
		c.rank[it.ID] = i
	}
	for _, opt := range opts {
		opt(c)
	}
	queueOpts := append([]actionqueue.Option{
		actionqueue.WithLogger(c.logger),
		actionqueue.WithBannerListener(c.printBanner),
	}, c.queueOpts...)
	c.queue = actionqueue.New[Item](queueOpts...)
	return c
}

// Run reads commands from in until quit or EOF. Whatever is still pending at
// that point is restored, not committed.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	defer c.queue.Close()
	c.printItems()

	scanner := bufio.NewScanner(in)
	for {
		c.printf("> ")
		if !scanner.Scan() {
			break
		}
		if c.Handle(scanner.Text()) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// Handle runs one command line and reports whether the console should exit.
func (c *Console) Handle(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch cmd := strings.ToLower(fields[0]); cmd {
	case ActionApprove, ActionReject:
		if len(fields) != 2 {
			c.printf("usage: %s <id>\n", cmd)
			return false
		}
		c.act(cmd, fields[1])
	case "undo":
		if !c.queue.UndoPending() {
			c.printf("nothing to undo\n")
		}
	case "list", "ls":
		c.printItems()
	case "quit", "exit", "q":
		return true
	default:
		c.printf("commands: approve <id>, reject <id>, undo, list, quit\n")
	}
	return false
}

// Items returns what is still on screen.
func (c *Console) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.items...)
}

func (c *Console) Close() {
	c.queue.Close()
}

func (c *Console) act(action, id string) {
	it, ok := c.find(id)
	if !ok {
		c.printf("no pending review %s\n", id)
		return
	}

	req := actionqueue.Request[Item]{
		Kind:      "review",
		Action:    action,
		Item:      it,
		OnDequeue: c.remove,
		OnRestore: c.restore,
		OnCommit:  c.commit(action),
	}
	if action == ActionApprove {
		req.QueuedText = "Approved " + it.Title
		req.QueuedTone = actionqueue.ToneSuccess
	} else {
		req.QueuedText = "Rejected " + it.Title
		req.QueuedTone = actionqueue.ToneDanger
	}
	c.queue.QueueAction(req)
}

func (c *Console) commit(action string) func(ctx context.Context, it Item) error {
	return func(ctx context.Context, it Item) error {
		args := map[string]string{"review_id": it.ID, "actor_id": c.actorID}
		if err := c.mutator.Mutate(ctx, action+"_review", args, nil); err != nil {
			return err
		}
		c.logger.WithFields(logrus.Fields{
			"review_id": it.ID,
			"action":    action,
		}).Info("review committed")

		if c.recorder == nil {
			return nil
		}
		eventType := models.AuditEventReviewApproved
		if action == ActionReject {
			eventType = models.AuditEventReviewRejected
		}
		rec, err := audit.NewRecord(eventType, c.actorID, "restaurant", it.RestaurantID,
			audit.DeriveIdempotencyKey("review", it.ID, action), it)
		if err != nil {
			return err
		}
		c.recorder.Record(rec)
		return nil
	}
}

func (c *Console) find(id string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (c *Console) remove(it Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == it.ID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// restore puts it back where it was originally listed.
func (c *Console) restore(it Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, it)
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.rank[c.items[i].ID] < c.rank[c.items[j].ID]
	})
}

func (c *Console) printBanner(b actionqueue.Banner) {
	if b.Text == "" {
		return
	}
	suffix := ""
	if b.Undo {
		suffix = " (undo)"
	}
	c.printf("[%s] %s%s\n", b.Tone, b.Text, suffix)
}

func (c *Console) printItems() {
	items := c.Items()
	if len(items) == 0 {
		c.printf("review queue is empty\n")
		return
	}
	for _, it := range items {
		c.printf("  %s  %s\n", it.ID, it.Title)
	}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
