package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"authgw/auth"
)

const sessionCookieName = "authgw_session"

// Session binds an opaque cookie value to a validated identity. Expiry is
// absolute from creation; activity does not extend it.
type Session struct {
	ID         string
	Identity   auth.Identity
	RawIDToken string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// SessionBackend is the minimal storage contract behind the session
// manager. The map-backed implementation below suits a single instance; a
// distributed cache can replace it without touching the protocol handlers.
type SessionBackend interface {
	Put(sess Session)
	Get(id string) (Session, bool)
	Delete(id string)
	Sweep(now time.Time) int
}

type memorySessionBackend struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionBackend constructs the in-process session backend.
func NewMemorySessionBackend() SessionBackend {
	return &memorySessionBackend{sessions: make(map[string]Session)}
}

func (b *memorySessionBackend) Put(sess Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[sess.ID] = sess
}

func (b *memorySessionBackend) Get(id string) (Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sess, ok := b.sessions[id]
	return sess, ok
}

func (b *memorySessionBackend) Delete(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
}

func (b *memorySessionBackend) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, sess := range b.sessions {
		if now.After(sess.ExpiresAt) {
			delete(b.sessions, id)
			removed++
		}
	}
	return removed
}

// SessionManager issues, resolves, and clears cookie-backed sessions.
type SessionManager struct {
	backend    SessionBackend
	logger     *slog.Logger
	ttl        time.Duration
	secure     bool
	cookiePath string
}

// NewSessionManager constructs a session manager honouring config.
func NewSessionManager(cfg Config, backend SessionBackend, logger *slog.Logger) *SessionManager {
	ttl := cfg.Sessions.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		backend:    backend,
		logger:     logger,
		ttl:        ttl,
		secure:     cfg.SecureCookies(),
		cookiePath: cfg.CookiePath(),
	}
}

// Create establishes a new session for the identity and sets the cookie.
func (sm *SessionManager) Create(w http.ResponseWriter, identity auth.Identity, rawIDToken string) (*Session, error) {
	id, err := newSecureToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := Session{
		ID:         id,
		Identity:   identity,
		RawIDToken: rawIDToken,
		CreatedAt:  now,
		ExpiresAt:  now.Add(sm.ttl),
	}
	sm.backend.Put(sess)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     sm.cookiePath,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})

	sm.logger.Info("session created", "sub", identity.Subject, "expires_at", sess.ExpiresAt)
	return &sess, nil
}

// Fetch resolves the session referenced by the request cookie. Unknown and
// expired both come back nil; expired entries are evicted on the spot.
func (sm *SessionManager) Fetch(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, ok := sm.backend.Get(cookie.Value)
	if !ok {
		return nil
	}
	if time.Now().After(sess.ExpiresAt) {
		sm.backend.Delete(sess.ID)
		return nil
	}
	return &sess
}

// Destroy removes the session referenced by the request cookie, if any, and
// clears the cookie. Safe to call without a session.
func (sm *SessionManager) Destroy(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		sm.backend.Delete(cookie.Value)
	}
	sm.Clear(w)
}

// Clear removes the session cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     sm.cookiePath,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// StartSweeper launches the background expiry sweep. Lookup already evicts
// lazily; the sweep reclaims memory from sessions nobody touches again.
func (sm *SessionManager) StartSweeper(every time.Duration, stop <-chan struct{}) {
	if every <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sm.backend.Sweep(time.Now()); n > 0 {
					sm.logger.Debug("session sweep", "removed", n)
				}
			case <-stop:
				return
			}
		}
	}()
}
