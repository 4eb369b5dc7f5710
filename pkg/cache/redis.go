package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisNamespace prefixes every key written by RedisStore.
const DefaultRedisNamespace = "plagcheck:cache:"

// redisScanCount is the COUNT hint passed to SCAN.
const redisScanCount = 100

// RedisStore is a Store shared between processes through Redis.
// Entries are JSON-encoded and carry a Redis expiry so the server reclaims
// them; validity is still decided by Cache from StoredAt.
type RedisStore struct {
	redis     *redis.Client
	namespace string
	retention time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:     redisClient,
		namespace: DefaultRedisNamespace,
		retention: 10 * time.Minute,
	}
}

// WithNamespace returns the store using namespace as key prefix.
func (s *RedisStore) WithNamespace(namespace string) *RedisStore {
	s.namespace = namespace
	return s
}

// WithRetention sets how long Redis keeps entries before reclaiming them.
// It should be at least the largest TTL in the policy (see Policy.MaxTTL).
func (s *RedisStore) WithRetention(retention time.Duration) *RedisStore {
	if retention > 0 {
		s.retention = retention
	}
	return s
}

func (s *RedisStore) redisKey(signature string) string {
	return s.namespace + signature
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, signature string) (*Entry, bool, error) {
	data, err := s.redis.Get(ctx, s.redisKey(signature)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.redisKey(entry.Key), data, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, signature string) error {
	if err := s.redis.Del(ctx, s.redisKey(signature)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeletePrefix implements Store.
// Signatures start with the request path, so a path prefix is a key prefix.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return s.deleteMatching(ctx, globEscape(s.namespace)+globEscape(prefix)+"*")
}

// Clear implements Store. Only keys under the namespace are removed.
func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.deleteMatching(ctx, globEscape(s.namespace)+"*")
	return err
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.redis.Scan(ctx, 0, globEscape(s.namespace)+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return count, nil
}

// Layer implements Store.
func (s *RedisStore) Layer() string {
	return "redis"
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) (int, error) {
	var keys []string
	iter := s.redis.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := s.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(removed), nil
}

// globEscape escapes the characters Redis MATCH treats as patterns.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
