package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chrisdamba/foodmarket/internal/models"
)

// KeyIndex remembers which idempotency keys have been written, for sinks
// that cannot answer that themselves (Kafka topics, files).
type KeyIndex interface {
	Exists(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// MessageWriter is satisfied by every output destination.
type MessageWriter interface {
	WriteMessage(topic string, msg []byte) error
}

// IndexedStore is a Store made of a write-only sink and a key index. The key
// is marked only after the sink accepted the record.
type IndexedStore struct {
	index KeyIndex
	sink  MessageWriter
	topic string
}

func NewIndexedStore(index KeyIndex, sink MessageWriter, topic string) *IndexedStore {
	return &IndexedStore{index: index, sink: sink, topic: topic}
}

func (s *IndexedStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.index.Exists(ctx, key)
}

func (s *IndexedStore) Insert(ctx context.Context, record models.AuditRecord) error {
	msg, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if err := s.sink.WriteMessage(s.topic, msg); err != nil {
		return fmt.Errorf("write audit record to %s: %w", s.topic, err)
	}
	if err := s.index.Mark(ctx, record.IdempotencyKey); err != nil {
		return fmt.Errorf("mark idempotency key: %w", err)
	}
	return nil
}

// MemoryKeyIndex only lives as long as the process. It is used when no redis
// is configured.
type MemoryKeyIndex struct {
	keys sync.Map
}

func NewMemoryKeyIndex() *MemoryKeyIndex {
	return &MemoryKeyIndex{}
}

func (i *MemoryKeyIndex) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := i.keys.Load(key)
	return ok, nil
}

func (i *MemoryKeyIndex) Mark(ctx context.Context, key string) error {
	i.keys.Store(key, struct{}{})
	return nil
}

// RedisKeyIndex keeps one key per idempotency key, expiring after ttl.
type RedisKeyIndex struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisKeyIndex(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisKeyIndex {
	return &RedisKeyIndex{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient connects using the redis section of the config and pings
// the server once.
func NewRedisClient(ctx context.Context, cfg models.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (i *RedisKeyIndex) Exists(ctx context.Context, key string) (bool, error) {
	n, err := i.client.Exists(ctx, i.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (i *RedisKeyIndex) Mark(ctx context.Context, key string) error {
	return i.client.SetNX(ctx, i.prefix+key, time.Now().UTC().Format(time.RFC3339), i.ttl).Err()
}
