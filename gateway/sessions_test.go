package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"authgw/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Server.DevMode = true
	cfg.Provider.ClientID = testClientID
	cfg.Provider.ClientSecret = "test-secret"
	cfg.Provider.Issuer = testIssuerURL
	return cfg
}

const (
	testClientID  = "gateway-client-id"
	testIssuerURL = "https://login.example.com/tenant/v2.0"
)

func testIdentity() auth.Identity {
	return auth.Identity{
		Subject: "user-123",
		Email:   "alice@example.com",
		Name:    "Alice Example",
	}
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", sessionCookieName)
	return nil
}

func TestSessionCreateAndFetch(t *testing.T) {
	sm := NewSessionManager(testConfig(), NewMemorySessionBackend(), testLogger())

	rec := httptest.NewRecorder()
	sess, err := sm.Create(rec, testIdentity(), "raw-token")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cookie := sessionCookie(t, rec)
	if cookie.Value != sess.ID {
		t.Fatalf("cookie value != session id")
	}
	if !cookie.HttpOnly {
		t.Fatalf("cookie not HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie SameSite = %v, want Lax", cookie.SameSite)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	got := sm.Fetch(req)
	if got == nil {
		t.Fatalf("fetch returned nil for live session")
	}
	if got.Identity.Subject != "user-123" {
		t.Fatalf("subject = %q", got.Identity.Subject)
	}
	if got.RawIDToken != "raw-token" {
		t.Fatalf("raw token = %q", got.RawIDToken)
	}
}

func TestSessionFetchUnknownCookie(t *testing.T) {
	sm := NewSessionManager(testConfig(), NewMemorySessionBackend(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "bogus"})
	if sm.Fetch(req) != nil {
		t.Fatalf("fetch returned a session for an unknown cookie")
	}
}

func TestSessionExpiryIsAbsolute(t *testing.T) {
	cfg := testConfig()
	cfg.Sessions.TTL = 10 * time.Millisecond
	backend := NewMemorySessionBackend()
	sm := NewSessionManager(cfg, backend, testLogger())

	rec := httptest.NewRecorder()
	if _, err := sm.Create(rec, testIdentity(), ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	cookie := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	// Repeated activity must not extend the lifetime.
	for i := 0; i < 3; i++ {
		if sm.Fetch(req) == nil {
			t.Fatalf("session gone before expiry")
		}
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	if sm.Fetch(req) != nil {
		t.Fatalf("session alive past absolute TTL")
	}
	if _, ok := backend.Get(cookie.Value); ok {
		t.Fatalf("expired session not evicted on lookup")
	}
}

func TestSessionDestroy(t *testing.T) {
	sm := NewSessionManager(testConfig(), NewMemorySessionBackend(), testLogger())

	rec := httptest.NewRecorder()
	if _, err := sm.Create(rec, testIdentity(), ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	cookie := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	destroyRec := httptest.NewRecorder()
	sm.Destroy(destroyRec, req)

	if sm.Fetch(req) != nil {
		t.Fatalf("session survives destroy")
	}
	cleared := sessionCookie(t, destroyRec)
	if cleared.MaxAge != -1 {
		t.Fatalf("clearing cookie MaxAge = %d, want -1", cleared.MaxAge)
	}

	// Destroying again is a no-op, not an error.
	sm.Destroy(httptest.NewRecorder(), req)
}

func TestSessionSweeperEvicts(t *testing.T) {
	backend := NewMemorySessionBackend()
	backend.Put(Session{ID: "old", ExpiresAt: time.Now().Add(-time.Hour)})
	backend.Put(Session{ID: "live", ExpiresAt: time.Now().Add(time.Hour)})

	if n := backend.Sweep(time.Now()); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, ok := backend.Get("live"); !ok {
		t.Fatalf("live session swept")
	}
}
