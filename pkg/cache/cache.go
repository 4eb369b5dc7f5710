package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/plagcheck-client/pkg/logging"
)

// Cache applies a TTL Policy on top of a Store.
// Lookups never fail: store errors are logged, counted and treated as misses.
type Cache struct {
	store  Store
	policy Policy
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger used for store errors and debug events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache over store with the given policy.
func New(store Store, policy Policy, opts ...Option) *Cache {
	if store == nil {
		panic("cache store cannot be nil")
	}
	c := &Cache{
		store:  store,
		policy: policy,
		now:    time.Now,
		logger: logging.NewLogger(logging.ComponentCache),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the TTL policy in use.
func (c *Cache) Policy() Policy {
	return c.policy
}

// Now returns the current time according to the cache clock.
func (c *Cache) Now() time.Time {
	return c.now()
}

// Lookup returns a copy of the valid entry for key.
// Missing, expired and unreadable entries all report false.
func (c *Cache) Lookup(ctx context.Context, key Key) (*Entry, bool) {
	signature := key.String()

	entry, ok, err := c.store.Get(ctx, signature)
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		c.logger.Warn().Err(err).Str("key", signature).Msg("Cache get error")
		CacheMisses.Inc()
		return nil, false
	}
	if !ok {
		CacheMisses.Inc()
		c.logger.Debug().Str("key", signature).Msg("Cache miss")
		return nil, false
	}

	ttl := c.policy.TTLFor(entry.Path)
	if !entry.IsValid(c.now(), ttl) {
		CacheExpired.Inc()
		CacheMisses.Inc()
		c.logger.Debug().
			Str("key", signature).
			Dur("age", entry.Age(c.now())).
			Dur("ttl", ttl).
			Msg("Cache entry expired")
		return nil, false
	}

	CacheHits.WithLabelValues(c.store.Layer()).Inc()
	c.logger.Debug().Str("key", signature).Msg("Cache hit")
	return entry.Clone(), true
}

// Store saves entry under key, stamping it with the current time.
// The entry is copied; later changes by the caller do not reach the cache.
func (c *Cache) Store(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	stored := entry.Clone()
	stored.Key = key.String()
	stored.Path = key.Path
	stored.StoredAt = c.now()

	if err := c.store.Set(ctx, stored); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", stored.Key).Msg("Failed to cache response")
		return err
	}

	c.logger.Debug().
		Str("key", stored.Key).
		Dur("ttl", c.policy.TTLFor(stored.Path)).
		Msg("Cached response")
	return nil
}

// Remove deletes the entry stored under key.
func (c *Cache) Remove(ctx context.Context, key Key) error {
	signature := key.String()
	if err := c.store.Delete(ctx, signature); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		c.logger.Warn().Err(err).Str("key", signature).Msg("Cache remove failed")
		return err
	}
	CacheInvalidations.WithLabelValues("key").Inc()
	return nil
}

// ClearPrefix removes every entry whose path starts with prefix.
// This is a plain string match: "/theses" also clears "/thesesArchive".
func (c *Cache) ClearPrefix(ctx context.Context, prefix string) error {
	removed, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		c.logger.Warn().Err(err).Str("prefix", prefix).Msg("Cache prefix clear failed")
		return err
	}
	CacheInvalidations.WithLabelValues("prefix").Add(float64(removed))
	c.logger.Debug().Str("prefix", prefix).Int("removed", removed).Msg("Cache prefix cleared")
	return nil
}

// ClearAll removes every entry.
func (c *Cache) ClearAll(ctx context.Context) error {
	n, _ := c.store.Len(ctx)
	if err := c.store.Clear(ctx); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		c.logger.Warn().Err(err).Msg("Cache clear failed")
		return err
	}
	CacheInvalidations.WithLabelValues("all").Add(float64(n))
	c.logger.Debug().Int("removed", n).Msg("Cache cleared")
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len(ctx context.Context) int {
	n, err := c.store.Len(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("len").Inc()
		return 0
	}
	return n
}
