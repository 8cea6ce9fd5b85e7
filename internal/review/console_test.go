package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/foodmarket/internal/actionqueue"
	"github.com/chrisdamba/foodmarket/internal/audit"
	"github.com/chrisdamba/foodmarket/internal/models"
	"github.com/chrisdamba/foodmarket/internal/writequeue"
)

type manualTimer struct {
	at      time.Time
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) actionqueue.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	rest := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(c.now) {
			due = append(due, t)
		} else if !t.stopped {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

type call struct {
	name string
	args any
}

type fakeBackend struct {
	mu      sync.Mutex
	calls   []call
	err     error
	pending []Item
}

func (b *fakeBackend) Mutate(ctx context.Context, name string, args any, out any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.calls = append(b.calls, call{name: name, args: args})
	if name == listPendingRPC {
		raw, _ := json.Marshal(b.pending)
		return json.Unmarshal(raw, out)
	}
	return nil
}

var pending = []Item{
	{ID: "r1", RestaurantID: "rest-1", Title: "Luigi's"},
	{ID: "r2", RestaurantID: "rest-2", Title: "Taco Town"},
	{ID: "r3", RestaurantID: "rest-3", Title: "Sushi Go"},
}

func newTestConsole(t *testing.T, b *fakeBackend, opts ...Option) (*Console, *manualClock, *bytes.Buffer) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clock := &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	var out bytes.Buffer
	base := []Option{
		WithOutput(&out),
		WithLogger(logger),
		WithQueueOptions(actionqueue.WithClock(clock)),
	}
	c := NewConsole(pending, b, append(base, opts...)...)
	t.Cleanup(c.Close)
	return c, clock, &out
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestConsole_ApproveCommitsAfterDelay(t *testing.T) {
	b := &fakeBackend{}
	c, clock, out := newTestConsole(t, b)

	assert.False(t, c.Handle("approve r2"))
	assert.Equal(t, []string{"r1", "r3"}, ids(c.Items()))
	assert.Contains(t, out.String(), "[success] Approved Taco Town (undo)")
	assert.Empty(t, b.calls)

	clock.Advance(actionqueue.DefaultDelay)
	require.Len(t, b.calls, 1)
	assert.Equal(t, "approve_review", b.calls[0].name)
	assert.Equal(t, map[string]string{"review_id": "r2", "actor_id": "moderator"}, b.calls[0].args)
}

func TestConsole_UndoRestoresPosition(t *testing.T) {
	b := &fakeBackend{}
	c, clock, out := newTestConsole(t, b)

	c.Handle("reject r1")
	assert.Equal(t, []string{"r2", "r3"}, ids(c.Items()))

	c.Handle("undo")
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(c.Items()))
	assert.Contains(t, out.String(), actionqueue.CanceledText)

	clock.Advance(time.Second)
	assert.Empty(t, b.calls)

	c.Handle("undo")
	assert.Contains(t, out.String(), "nothing to undo")
}

func TestConsole_ThrottlesRapidActions(t *testing.T) {
	b := &fakeBackend{}
	c, clock, out := newTestConsole(t, b)

	c.Handle("approve r1")
	clock.Advance(100 * time.Millisecond)
	c.Handle("approve r2")

	assert.Equal(t, []string{"r2", "r3"}, ids(c.Items()))
	assert.Contains(t, out.String(), actionqueue.ThrottledText)
}

func TestConsole_SecondActionRestoresFirst(t *testing.T) {
	b := &fakeBackend{}
	c, clock, _ := newTestConsole(t, b)

	c.Handle("approve r1")
	clock.Advance(600 * time.Millisecond)
	c.Handle("reject r3")

	assert.Equal(t, []string{"r1", "r2"}, ids(c.Items()))
	clock.Advance(time.Second)
	require.Len(t, b.calls, 1)
	assert.Equal(t, "reject_review", b.calls[0].name)
}

func TestConsole_UnknownAndMalformedCommands(t *testing.T) {
	c, _, out := newTestConsole(t, &fakeBackend{})

	c.Handle("approve nope")
	c.Handle("approve")
	c.Handle("dance")
	c.Handle("   ")

	s := out.String()
	assert.Contains(t, s, "no pending review nope")
	assert.Contains(t, s, "usage: approve <id>")
	assert.Contains(t, s, "commands:")
	assert.Len(t, c.Items(), 3)
}

func TestConsole_RunQuitRestoresPending(t *testing.T) {
	b := &fakeBackend{}
	c, clock, out := newTestConsole(t, b)

	err := c.Run(context.Background(), strings.NewReader("approve r1\nquit\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(c.Items()))
	clock.Advance(time.Second)
	assert.Empty(t, b.calls)
	assert.Contains(t, out.String(), "r3  Sushi Go")
}

func TestConsole_CommitFailureKeepsItemRemoved(t *testing.T) {
	b := &fakeBackend{err: errors.New("bad gateway")}
	c, clock, _ := newTestConsole(t, b)

	c.Handle("reject r2")
	clock.Advance(actionqueue.DefaultDelay)
	assert.Equal(t, []string{"r1", "r3"}, ids(c.Items()))
}

func TestConsole_RecordsAuditOnCommit(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := writequeue.New(
		writequeue.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		writequeue.WithLogger(logger),
	)
	t.Cleanup(q.Close)
	index := audit.NewMemoryKeyIndex()
	sink := &sinkWriter{}
	recorder := audit.NewRecorder(q, audit.NewIndexedStore(index, sink, models.TopicAuditEvents))

	c, clock, _ := newTestConsole(t, &fakeBackend{}, WithRecorder(recorder), WithActor("admin-7"))
	c.Handle("reject r3")
	clock.Advance(actionqueue.DefaultDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))

	require.Len(t, sink.msgs, 1)
	var rec models.AuditRecord
	require.NoError(t, json.Unmarshal(sink.msgs[0], &rec))
	assert.Equal(t, models.AuditEventReviewRejected, rec.EventType)
	assert.Equal(t, "admin-7", rec.ActorID)
	assert.Equal(t, "rest-3", rec.EntityID)
	assert.Equal(t, audit.DeriveIdempotencyKey("review", "r3", ActionReject), rec.IdempotencyKey)
}

type sinkWriter struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (w *sinkWriter) WriteMessage(topic string, msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msg)
	return nil
}

func TestLoadPending(t *testing.T) {
	b := &fakeBackend{pending: pending[:2]}
	items, err := LoadPending(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(items))

	b.err = errors.New("unauthorized")
	_, err = LoadPending(context.Background(), b)
	assert.ErrorContains(t, err, "list pending reviews")
}
