package cache

import (
	"context"
	"strings"
	"sync"
)

// Store persists cache entries keyed by signature.
type Store interface {
	// Get returns the entry for signature, or false if none is stored.
	Get(ctx context.Context, signature string) (*Entry, bool, error)

	// Set stores entry under entry.Key, replacing any previous entry.
	Set(ctx context.Context, entry *Entry) error

	// Delete removes the entry for signature. Deleting a missing entry is a no-op.
	Delete(ctx context.Context, signature string) error

	// DeletePrefix removes every entry whose path starts with prefix and
	// returns the number removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Len returns the number of stored entries, expired ones included.
	Len(ctx context.Context) (int, error)

	// Layer names the backend for metrics ("memory", "redis").
	Layer() string
}

// MemoryStore is a process-local Store. Its methods never fail.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, signature string) (*Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[signature]
	return entry, ok, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, signature)
	return nil
}

// DeletePrefix implements Store.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for signature, entry := range s.entries {
		if strings.HasPrefix(entry.Path, prefix) {
			delete(s.entries, signature)
			removed++
		}
	}
	return removed, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
	return nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Layer implements Store.
func (s *MemoryStore) Layer() string {
	return "memory"
}
