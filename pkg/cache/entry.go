package cache

import (
	"net/http"
	"time"
)

// Entry represents a cached backend response.
type Entry struct {
	// Key is the request signature (see Key.String)
	Key string `json:"key"`

	// Path is the request path; prefix invalidation and TTL lookup match against it
	Path string `json:"path"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Header holds the response headers
	Header http.Header `json:"header"`

	// Data is the response body
	Data []byte `json:"data"`

	// StoredAt is when the response was cached
	StoredAt time.Time `json:"stored_at"`
}

// Age returns how long ago the entry was stored, relative to now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// IsValid reports whether the entry may still be served at now for the given TTL.
// An entry is valid while now - StoredAt < ttl.
func (e *Entry) IsValid(now time.Time, ttl time.Duration) bool {
	return e.Age(now) < ttl
}

// Clone returns a deep copy so callers cannot mutate stored data.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	if e.Data != nil {
		c.Data = append([]byte(nil), e.Data...)
	}
	return &c
}
