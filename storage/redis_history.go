// Package storage provides optional durable persistence for the bus's
// message/response history, implementing bus.HistoryStore. The bus's
// in-memory ring buffer remains the default and the only store ever
// consulted for a delivery or consensus decision; a HistoryStore here is
// purely an observability side-channel a host opts into.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/a2aforge/meshbus/core"
)

// RedisHistoryStore persists messages and responses under namespaced
// "{namespace}:{kind}:{id}" keys with a secondary index by correlation
// ID and TTL-based expiry.
type RedisHistoryStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    core.Logger
}

// Option configures a RedisHistoryStore at construction time.
type Option func(*RedisHistoryStore)

// WithNamespace overrides the default "meshbus" key namespace.
func WithNamespace(namespace string) Option {
	return func(s *RedisHistoryStore) { s.namespace = namespace }
}

// WithTTL overrides the default 24h expiry applied to every persisted
// record and its correlation-id index entry.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisHistoryStore) { s.ttl = ttl }
}

// WithLogger attaches a logger, tagged "bus/history/redis" when it
// supports component tagging.
func WithLogger(logger core.Logger) Option {
	return func(s *RedisHistoryStore) {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("bus/history/redis")
			return
		}
		s.logger = logger
	}
}

// NewRedisHistoryStore connects to redisURL and returns a
// RedisHistoryStore. An existing *redis.Client may be supplied via
// NewRedisHistoryStoreWithClient instead, e.g. for miniredis-backed
// tests.
func NewRedisHistoryStore(redisURL string, opts ...Option) (*RedisHistoryStore, error) {
	rdb, err := newClientFromURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("storage: parse redis url: %w", err)
	}
	return NewRedisHistoryStoreWithClient(rdb, opts...), nil
}

// NewRedisHistoryStoreWithClient wraps an already-constructed
// *redis.Client, letting tests point at a miniredis instance.
func NewRedisHistoryStoreWithClient(client *redis.Client, opts ...Option) *RedisHistoryStore {
	s := &RedisHistoryStore{
		client:    client,
		namespace: "meshbus",
		ttl:       24 * time.Hour,
		logger:    &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newClientFromURL(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func (s *RedisHistoryStore) messageKey(id string) string {
	return fmt.Sprintf("%s:messages:%s", s.namespace, id)
}

func (s *RedisHistoryStore) responseKey(id string) string {
	return fmt.Sprintf("%s:responses:%s", s.namespace, id)
}

func (s *RedisHistoryStore) correlationKey(correlationID string) string {
	return fmt.Sprintf("%s:correlation:%s", s.namespace, correlationID)
}

// RecordMessage persists m and indexes it by correlation ID, satisfying
// bus.HistoryStore. Errors are logged, not returned; history
// persistence is best-effort observability, never a delivery
// dependency.
func (s *RedisHistoryStore) RecordMessage(m *core.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(m)
	if err != nil {
		s.logger.Error("marshal message for history", map[string]interface{}{"error": err, "message_id": m.ID})
		return
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.messageKey(m.ID), data, s.ttl)
	corrKey := s.correlationKey(m.EffectiveCorrelationID())
	pipe.SAdd(ctx, corrKey, m.ID)
	pipe.Expire(ctx, corrKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("persist message history", map[string]interface{}{"error": err, "message_id": m.ID})
	}
}

// RecordResponse persists r and indexes it by correlation ID.
func (s *RedisHistoryStore) RecordResponse(r *core.Response) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("marshal response for history", map[string]interface{}{"error": err, "message_id": r.MessageID})
		return
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.responseKey(r.MessageID), data, s.ttl)
	corrKey := s.correlationKey(r.CorrelationID)
	pipe.SAdd(ctx, corrKey, r.MessageID)
	pipe.Expire(ctx, corrKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("persist response history", map[string]interface{}{"error": err, "message_id": r.MessageID})
	}
}

// ByCorrelationID returns the message/response IDs indexed under
// correlationID, for host-side debugging tools.
func (s *RedisHistoryStore) ByCorrelationID(ctx context.Context, correlationID string) ([]string, error) {
	return s.client.SMembers(ctx, s.correlationKey(correlationID)).Result()
}

// Message fetches and unmarshals a persisted message by ID, or
// (nil, redis.Nil) if it has expired or was never recorded.
func (s *RedisHistoryStore) Message(ctx context.Context, id string) (*core.Message, error) {
	data, err := s.client.Get(ctx, s.messageKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var m core.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Response fetches and unmarshals a persisted response by message ID.
func (s *RedisHistoryStore) Response(ctx context.Context, id string) (*core.Response, error) {
	data, err := s.client.Get(ctx, s.responseKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var r core.Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Close releases the underlying Redis client.
func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}
