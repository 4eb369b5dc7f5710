package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plagcheck_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses, including expired entries
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plagcheck_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheExpired tracks lookups that found an entry past its TTL
	CacheExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plagcheck_cache_expired_total",
			Help: "Total number of lookups that found an expired entry",
		},
	)

	// CacheInvalidations tracks removed entries by reason
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plagcheck_cache_invalidations_total",
			Help: "Total number of cache entries removed by invalidation",
		},
		[]string{"reason"}, // "prefix", "all"
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plagcheck_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)
)
