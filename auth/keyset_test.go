package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeySetCacheServesFromCacheWithinTTL(t *testing.T) {
	f := newIDPFixture(t)
	cache := NewKeySetCache(f.srv.URL, time.Hour, nil, discardLogger())

	if _, err := cache.Keys(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := cache.Keys(context.Background()); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if f.hitCount() != 1 {
		t.Fatalf("jwks hits = %d, want 1", f.hitCount())
	}
}

func TestKeySetCacheRefreshesAfterTTL(t *testing.T) {
	f := newIDPFixture(t)
	cache := NewKeySetCache(f.srv.URL, time.Millisecond, nil, discardLogger())

	if _, err := cache.Keys(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cache.Keys(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if f.hitCount() != 2 {
		t.Fatalf("jwks hits = %d, want 2", f.hitCount())
	}
}

func TestKeySetCacheFailsOpenWhenPopulated(t *testing.T) {
	f := newIDPFixture(t)
	cache := NewKeySetCache(f.srv.URL, time.Millisecond, nil, discardLogger())

	set, err := cache.Keys(context.Background())
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	f.setBroken(true)
	time.Sleep(5 * time.Millisecond)

	stale, err := cache.Keys(context.Background())
	if err != nil {
		t.Fatalf("stale serve failed: %v", err)
	}
	if len(stale.Keys) != len(set.Keys) {
		t.Fatalf("stale key set differs from original")
	}
}

func TestKeySetCacheFailsClosedWhenNeverPopulated(t *testing.T) {
	f := newIDPFixture(t)
	f.setBroken(true)
	cache := NewKeySetCache(f.srv.URL, time.Hour, nil, discardLogger())

	if _, err := cache.Keys(context.Background()); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("err = %v, want ErrNoKeys", err)
	}
}
