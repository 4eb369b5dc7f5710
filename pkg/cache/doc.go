// Package cache provides the GET response cache used by the plagcheck client.
//
// The cache stores successful GET responses keyed by a request signature and
// serves them until their time-to-live runs out:
//
// - Deterministic signatures (path plus sorted query parameters)
// - Per-path-prefix TTLs with a default fallback
// - Lazy expiration (expired entries are treated as absent on lookup)
// - Prefix and full invalidation
// - In-memory or Redis-backed storage
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	c := cache.New(cache.NewMemoryStore(), cache.DefaultPolicy())
//
//	key := cache.Key{
//		Path:   "/theses",
//		Params: url.Values{"page": []string{"1"}},
//	}
//
//	if entry, ok := c.Lookup(ctx, key); ok {
//		// serve entry.Data
//	}
//
//	c.Store(ctx, key, &cache.Entry{StatusCode: 200, Data: body})
//
//	// After a thesis is modified
//	c.ClearPrefix(ctx, "/theses")
//
// # Shared Cache
//
// Several processes can share one cache by using a Redis store:
//
//	store := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//	c := cache.New(store, cache.DefaultPolicy())
//
// # Metrics
//
//   - plagcheck_cache_hits_total{layer} - Cache hits
//   - plagcheck_cache_misses_total - Cache misses
//   - plagcheck_cache_expired_total - Lookups that found an expired entry
//   - plagcheck_cache_invalidations_total{reason} - Entries removed by invalidation
//   - plagcheck_cache_errors_total{operation} - Store operation errors
package cache
