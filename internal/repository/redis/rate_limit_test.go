package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitStore_RecordAndCount(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRateLimitStore(client, SlidingWindowConfig{KeyPrefix: "login", TTL: time.Hour})

	ctx := context.Background()
	now := time.Now()
	window := 5 * time.Minute

	for i := 0; i < 3; i++ {
		if err := store.RecordAttempt(ctx, "user-1", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := store.CountAttempts(ctx, "user-1", window, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected three attempts, got %d", count)
	}

	// Attempts for other identifiers never bleed over.
	count, err = store.CountAttempts(ctx, "user-2", window, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero attempts for other identifier, got %d", count)
	}
}

func TestRateLimitStore_WindowExcludesOldAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRateLimitStore(client, SlidingWindowConfig{KeyPrefix: "login", TTL: time.Hour})

	ctx := context.Background()
	now := time.Now()
	window := 5 * time.Minute

	if err := store.RecordAttempt(ctx, "user-1", now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if err := store.RecordAttempt(ctx, "user-1", now.Add(-time.Minute)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	count, err := store.CountAttempts(ctx, "user-1", window, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one attempt inside window, got %d", count)
	}

	if err := store.TrimWindow(ctx, "user-1", window, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	oldest, ok, err := store.OldestAttempt(ctx, "user-1", window, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a remaining attempt after trim")
	}
	if got := now.Add(-time.Minute); oldest.UnixNano() != got.UnixNano() {
		t.Fatalf("expected oldest attempt at %v, got %v", got, oldest)
	}
}

func TestRateLimitStore_ClearAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRateLimitStore(client, SlidingWindowConfig{KeyPrefix: "login", TTL: time.Hour})

	ctx := context.Background()
	now := time.Now()

	if err := store.RecordAttempt(ctx, "user-1", now); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if err := store.ClearAttempts(ctx, "user-1"); err != nil {
		t.Fatalf("ClearAttempts returned error: %v", err)
	}

	count, err := store.CountAttempts(ctx, "user-1", time.Minute, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cleared history, got %d attempts", count)
	}
}
