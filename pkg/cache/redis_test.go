package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a Redis client for a local test instance.
// Integration tests in tests/integration run against a container instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}

func TestGlobEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/theses", want: "/theses"},
		{in: "/theses?page=1", want: `/theses\?page=1`},
		{in: "/a*b[c]", want: `/a\*b\[c\]`},
	}

	for _, tt := range tests {
		if got := globEscape(tt.in); got != tt.want {
			t.Errorf("globEscape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedisStore_SetAndGet(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))
	ctx := context.Background()

	entry := &Entry{
		Key:        "/theses?page=1",
		Path:       "/theses",
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Data:       []byte(`{"items":[]}`),
		StoredAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, entry.Key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Get reported a miss after Set")
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", got.Data, entry.Data)
	}
	if got.Path != entry.Path {
		t.Errorf("Path mismatch: got %s, want %s", got.Path, entry.Path)
	}
	if !got.StoredAt.Equal(entry.StoredAt) {
		t.Errorf("StoredAt mismatch: got %v, want %v", got.StoredAt, entry.StoredAt)
	}
}

func TestRedisStore_Miss(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))

	_, ok, err := store.Get(context.Background(), "/nonexistent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Expected a miss for an unknown signature")
	}
}

func TestRedisStore_DeletePrefixAndClear(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	for _, e := range []*Entry{
		{Key: "/theses?page=1", Path: "/theses"},
		{Key: "/theses/stats", Path: "/theses/stats"},
		{Key: "/users", Path: "/users"},
	} {
		if err := store.Set(ctx, e); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	// A foreign key outside the namespace must survive Clear
	client.Set(ctx, "other:key", "1", 0)

	removed, err := store.DeletePrefix(ctx, "/theses")
	if err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := store.Len(ctx); n != 0 {
		t.Errorf("Len after Clear = %d, want 0", n)
	}
	if client.Exists(ctx, "other:key").Val() != 1 {
		t.Error("Clear removed a key outside the namespace")
	}
}

func TestRedisStore_RetentionCoversPolicy(t *testing.T) {
	client := setupTestRedis(t)
	policy := Policy{
		PerPrefix: map[string]time.Duration{"/theses/stats": 2 * time.Hour},
		Default:   15 * time.Minute,
	}
	store := NewRedisStore(client).WithRetention(policy.MaxTTL())
	ctx := context.Background()

	if err := store.Set(ctx, &Entry{Key: "/theses/stats", Path: "/theses/stats"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl, err := client.TTL(ctx, store.redisKey("/theses/stats")).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl < policy.MaxTTL()-time.Minute {
		t.Errorf("redis TTL = %v, want at least %v", ttl, policy.MaxTTL())
	}
}

func TestRedisStore_Delete(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))
	ctx := context.Background()

	for _, sig := range []string{"/theses?page=1", "/theses?page=2"} {
		if err := store.Set(ctx, &Entry{Key: sig, Path: "/theses"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := store.Delete(ctx, "/theses?page=1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "/absent"); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}

	if _, ok, _ := store.Get(ctx, "/theses?page=1"); ok {
		t.Error("deleted entry still present")
	}
	if _, ok, _ := store.Get(ctx, "/theses?page=2"); !ok {
		t.Error("sibling entry was removed")
	}
}
