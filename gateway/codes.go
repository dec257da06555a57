package gateway

import (
	"sync"
	"time"
)

// codeSweepEvery throttles the sweep on the issue path so a burst of
// issuance does not pay the scan cost every time.
const codeSweepEvery = time.Minute

// CodeClaims is the minimal identity handed across the trust boundary.
type CodeClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Sub   string `json:"sub"`
}

type codeEntry struct {
	claims    CodeClaims
	expiresAt time.Time
}

// CodeStore issues single-use, time-limited opaque codes mapping to minimal
// claims. Redeem is atomic remove-and-return: under concurrent redemption
// of the same code exactly one caller wins.
type CodeStore struct {
	mu        sync.Mutex
	codes     map[string]codeEntry
	ttl       time.Duration
	lastSweep time.Time
}

// NewCodeStore constructs a code store with the given TTL.
func NewCodeStore(ttl time.Duration) *CodeStore {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &CodeStore{
		codes: make(map[string]codeEntry),
		ttl:   ttl,
	}
}

// Issue generates a code for the claims and stores it until the TTL lapses.
func (s *CodeStore) Issue(claims CodeClaims) (string, error) {
	code, err := newSecureToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	s.mu.Lock()
	s.sweepLocked(now)
	s.codes[code] = codeEntry{claims: claims, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()

	return code, nil
}

// Redeem consumes a code. The second redemption of the same code always
// misses, even when racing the first.
func (s *CodeStore) Redeem(code string) (CodeClaims, bool) {
	if code == "" {
		return CodeClaims{}, false
	}

	s.mu.Lock()
	entry, ok := s.codes[code]
	if ok {
		delete(s.codes, code)
	}
	s.mu.Unlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return CodeClaims{}, false
	}
	return entry.claims, true
}

// Len reports the number of stored codes, for monitoring.
func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// sweepLocked drops expired entries, at most once per codeSweepEvery.
// Caller holds the lock.
func (s *CodeStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < codeSweepEvery {
		return
	}
	s.lastSweep = now
	for code, entry := range s.codes {
		if now.After(entry.expiresAt) {
			delete(s.codes, code)
		}
	}
}
