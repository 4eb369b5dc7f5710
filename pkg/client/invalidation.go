package client

import (
	"strings"
	"sync"
)

// InvalidationRule ties a mutating route to the cached GET prefixes it makes stale.
type InvalidationRule struct {
	// MutationPrefix matches the path of POST/PUT/PATCH/DELETE requests.
	MutationPrefix string

	// Invalidate lists the GET path prefixes to clear.
	Invalidate []string

	// All clears the whole cache (e.g., after login or logout).
	All bool
}

// InvalidationRules is an ordered rule set; every matching rule applies.
type InvalidationRules []InvalidationRule

// DefaultInvalidationRules returns the rules for the backend resources.
func DefaultInvalidationRules() InvalidationRules {
	return InvalidationRules{
		{MutationPrefix: "/theses", Invalidate: []string{"/theses"}},
		{MutationPrefix: "/users", Invalidate: []string{"/users"}},
		{MutationPrefix: "/config", Invalidate: []string{"/config"}},
		{MutationPrefix: "/auth", All: true},
	}
}

// For returns the prefixes to clear after a mutation of path, and whether
// the whole cache should go.
func (r InvalidationRules) For(path string) ([]string, bool) {
	var prefixes []string
	seen := make(map[string]bool)
	for _, rule := range r {
		if !strings.HasPrefix(path, rule.MutationPrefix) {
			continue
		}
		if rule.All {
			return nil, true
		}
		for _, p := range rule.Invalidate {
			if !seen[p] {
				seen[p] = true
				prefixes = append(prefixes, p)
			}
		}
	}
	return prefixes, false
}

// invalidationLog records when prefixes were last invalidated so a fetch that
// raced an invalidation does not write its result back.
type invalidationLog struct {
	mu       sync.Mutex
	seq      uint64
	all      uint64
	prefixes map[string]uint64
}

func newInvalidationLog() *invalidationLog {
	return &invalidationLog{prefixes: make(map[string]uint64)}
}

// current returns the sequence number to compare against later.
func (l *invalidationLog) current() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// markPrefix records an invalidation of prefix.
func (l *invalidationLog) markPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.prefixes[prefix] = l.seq
}

// markAll records an invalidation of the whole cache.
func (l *invalidationLog) markAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.all = l.seq
	// Older prefix marks are covered by the full mark
	l.prefixes = make(map[string]uint64)
}

// invalidatedSince reports whether path was invalidated after start.
func (l *invalidationLog) invalidatedSince(path string, start uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.all > start {
		return true
	}
	for prefix, seq := range l.prefixes {
		if seq > start && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
