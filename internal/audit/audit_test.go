package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/foodmarket/internal/models"
	"github.com/chrisdamba/foodmarket/internal/writequeue"
)

type memoryStore struct {
	mu          sync.Mutex
	records     map[string]models.AuditRecord
	failInserts int
	failExists  int
	inserts     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]models.AuditRecord)}
}

func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failExists > 0 {
		s.failExists--
		return false, errors.New("connection reset")
	}
	_, ok := s.records[key]
	return ok, nil
}

func (s *memoryStore) Insert(ctx context.Context, record models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.failInserts > 0 {
		s.failInserts--
		return errors.New("gateway timeout")
	}
	s.records[record.IdempotencyKey] = record
	return nil
}

type memoryWriter struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func (w *memoryWriter) WriteMessage(topic string, msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.messages == nil {
		w.messages = make(map[string][][]byte)
	}
	w.messages[topic] = append(w.messages[topic], msg)
	return nil
}

func newTestQueue(t *testing.T) *writequeue.Queue {
	t.Helper()
	logger, _ := test.NewNullLogger()
	q := writequeue.New(
		writequeue.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		writequeue.WithLogger(logger),
	)
	t.Cleanup(q.Close)
	return q
}

func flush(t *testing.T, q *writequeue.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))
}

func newTestRecord(t *testing.T, key string) models.AuditRecord {
	t.Helper()
	rec, err := NewRecord(models.AuditEventReviewApproved, "admin-1", "restaurant", "rest-1", key, map[string]string{"note": "ok"})
	require.NoError(t, err)
	return rec
}

func TestNewRecord(t *testing.T) {
	rec := newTestRecord(t, "")

	assert.NotEmpty(t, rec.ID)
	assert.True(t, strings.HasPrefix(rec.IdempotencyKey, "restaurant_"))
	assert.JSONEq(t, `{"note":"ok"}`, string(rec.Payload))
	assert.WithinDuration(t, time.Now(), rec.CreatedAt, time.Minute)

	_, err := NewRecord(models.AuditEventOrderPlaced, "", "order", "o-1", "", make(chan int))
	assert.Error(t, err)
}

func TestIdempotencyKeys(t *testing.T) {
	assert.NotEqual(t, NewIdempotencyKey("review"), NewIdempotencyKey("review"))

	a := DeriveIdempotencyKey("review", "rest-1", "approve")
	b := DeriveIdempotencyKey("review", "rest-1", "approve")
	c := DeriveIdempotencyKey("review", "rest-1", "reject")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, DeriveIdempotencyKey("review", "ab", "c"), DeriveIdempotencyKey("review", "a", "bc"))
}

func TestRecorder_WritesOnce(t *testing.T) {
	q := newTestQueue(t)
	store := newMemoryStore()
	logger, _ := test.NewNullLogger()
	r := NewRecorder(q, store, WithLogger(logger))

	rec := newTestRecord(t, "review_fixed")
	r.Record(rec)
	r.Record(rec)
	flush(t, q)

	assert.Len(t, store.records, 1)
	assert.Equal(t, 1, store.inserts)
}

func TestRecorder_RetriesTransientFailures(t *testing.T) {
	q := newTestQueue(t)
	store := newMemoryStore()
	store.failExists = 1
	store.failInserts = 2
	r := NewRecorder(q, store)

	r.Record(newTestRecord(t, ""))
	flush(t, q)

	assert.Len(t, store.records, 1)
	assert.Equal(t, 3, store.inserts)
}

func TestRecorder_GivesUpAfterMaxAttempts(t *testing.T) {
	q := newTestQueue(t)
	store := newMemoryStore()
	store.failInserts = 10
	logger, _ := test.NewNullLogger()
	r := NewRecorder(q, store, WithMaxAttempts(2), WithLogger(logger))

	r.Record(newTestRecord(t, ""))
	flush(t, q)

	assert.Empty(t, store.records)
	assert.Equal(t, 2, store.inserts)
}

func TestRecorder_OperationTreatsExistingKeyAsSuccess(t *testing.T) {
	store := newMemoryStore()
	rec := newTestRecord(t, "")
	store.records[rec.IdempotencyKey] = rec
	r := NewRecorder(newTestQueue(t), store)

	ok, err := r.Operation(rec)(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, store.inserts)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisKeyIndex(t *testing.T) {
	mr, client := newTestRedis(t)
	idx := NewRedisKeyIndex(client, "foodmarket:idem:", time.Hour)
	ctx := context.Background()

	exists, err := idx.Exists(ctx, "review_1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, idx.Mark(ctx, "review_1"))
	exists, err = idx.Exists(ctx, "review_1")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.True(t, mr.Exists("foodmarket:idem:review_1"))
	assert.Equal(t, time.Hour, mr.TTL("foodmarket:idem:review_1"))

	mr.FastForward(2 * time.Hour)
	exists, err = idx.Exists(ctx, "review_1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryKeyIndex(t *testing.T) {
	idx := NewMemoryKeyIndex()
	ctx := context.Background()

	exists, err := idx.Exists(ctx, "order_1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, idx.Mark(ctx, "order_1"))
	exists, err = idx.Exists(ctx, "order_1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, models.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(ctx, models.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestIndexedStore_RecorderEndToEnd(t *testing.T) {
	_, client := newTestRedis(t)
	writer := &memoryWriter{}
	store := NewIndexedStore(NewRedisKeyIndex(client, "idem:", time.Hour), writer, models.TopicAuditEvents)
	q := newTestQueue(t)
	r := NewRecorder(q, store)

	rec := newTestRecord(t, "")
	r.Record(rec)
	r.Record(rec)
	flush(t, q)

	require.Len(t, writer.messages[models.TopicAuditEvents], 1)
	var got models.AuditRecord
	require.NoError(t, json.Unmarshal(writer.messages[models.TopicAuditEvents][0], &got))
	assert.Equal(t, rec.IdempotencyKey, got.IdempotencyKey)
}

func TestIndexedStore_SinkFailureLeavesKeyUnmarked(t *testing.T) {
	_, client := newTestRedis(t)
	writer := &memoryWriter{err: errors.New("broker not available")}
	idx := NewRedisKeyIndex(client, "idem:", time.Hour)
	store := NewIndexedStore(idx, writer, models.TopicAuditEvents)
	ctx := context.Background()

	rec := newTestRecord(t, "")
	assert.Error(t, store.Insert(ctx, rec))

	exists, err := store.Exists(ctx, rec.IdempotencyKey)
	require.NoError(t, err)
	assert.False(t, exists)
}
