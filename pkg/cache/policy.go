package cache

import (
	"strings"
	"time"
)

// DefaultTTL applies to paths without a per-prefix TTL.
const DefaultTTL = 30 * time.Second

// Policy decides how long an entry stays servable.
type Policy struct {
	// PerPrefix maps a path prefix to its TTL. The longest matching prefix wins.
	PerPrefix map[string]time.Duration

	// Default is used when no prefix matches.
	Default time.Duration
}

// DefaultPolicy returns the TTLs used by the dashboard endpoints.
func DefaultPolicy() Policy {
	return Policy{
		PerPrefix: map[string]time.Duration{
			"/theses":       60 * time.Second,
			"/theses/stats": 120 * time.Second,
		},
		Default: DefaultTTL,
	}
}

// TTLFor returns the TTL for path.
func (p Policy) TTLFor(path string) time.Duration {
	best := -1
	ttl := p.Default
	for prefix, d := range p.PerPrefix {
		if strings.HasPrefix(path, prefix) && len(prefix) > best {
			best = len(prefix)
			ttl = d
		}
	}
	if ttl <= 0 && best < 0 {
		return DefaultTTL
	}
	return ttl
}

// MaxTTL returns the longest TTL the policy can assign to any path.
// Shared stores use it as their retention so entries outlive their TTL.
func (p Policy) MaxTTL() time.Duration {
	longest := p.Default
	if longest <= 0 {
		longest = DefaultTTL
	}
	for _, d := range p.PerPrefix {
		if d > longest {
			longest = d
		}
	}
	return longest
}
