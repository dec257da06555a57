package gateway

import (
	"testing"
	"time"
)

func TestPendingStoreConsumeIsOneShot(t *testing.T) {
	store := NewPendingStore(time.Minute)
	store.Save("flow-1", PendingAuthRequest{
		State:       "state-1",
		Nonce:       "nonce-1",
		OriginalURL: "/app/page",
		CreatedAt:   time.Now(),
	})

	req, ok := store.Consume("flow-1")
	if !ok {
		t.Fatalf("first consume missed")
	}
	if req.State != "state-1" || req.OriginalURL != "/app/page" {
		t.Fatalf("req = %+v", req)
	}

	if _, ok := store.Consume("flow-1"); ok {
		t.Fatalf("second consume succeeded, want miss")
	}
}

func TestPendingStoreExpiry(t *testing.T) {
	store := NewPendingStore(time.Millisecond)
	store.Save("flow-1", PendingAuthRequest{State: "s", CreatedAt: time.Now()})

	time.Sleep(5 * time.Millisecond)
	if _, ok := store.Consume("flow-1"); ok {
		t.Fatalf("expired pending request consumed")
	}
}

func TestPendingStoreSweep(t *testing.T) {
	store := NewPendingStore(time.Millisecond)
	store.Save("flow-1", PendingAuthRequest{CreatedAt: time.Now()})
	store.Save("flow-2", PendingAuthRequest{CreatedAt: time.Now()})

	time.Sleep(5 * time.Millisecond)
	if n := store.Sweep(time.Now()); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}
}
