package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
)

// DefaultKeySetTTL is how long a fetched JWKS is trusted before refresh.
const DefaultKeySetTTL = time.Hour

// KeySetCache fetches and caches the IdP's JWKS. A refresh failure keeps
// serving the previously fetched set; only a cache that was never populated
// fails closed.
type KeySetCache struct {
	url    string
	ttl    time.Duration
	client *http.Client
	logger *slog.Logger

	mu        sync.RWMutex
	keys      jose.JSONWebKeySet
	expiresAt time.Time
	populated bool
}

// NewKeySetCache constructs a cache for the given JWKS URL.
func NewKeySetCache(url string, ttl time.Duration, client *http.Client, logger *slog.Logger) *KeySetCache {
	if ttl <= 0 {
		ttl = DefaultKeySetTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySetCache{
		url:    url,
		ttl:    ttl,
		client: client,
		logger: logger,
	}
}

// Keys returns the current key set, refreshing it when the TTL has lapsed.
func (c *KeySetCache) Keys(ctx context.Context) (jose.JSONWebKeySet, error) {
	c.mu.RLock()
	keys, populated, fresh := c.keys, c.populated, time.Now().Before(c.expiresAt)
	c.mu.RUnlock()

	if populated && fresh {
		return keys, nil
	}

	set, err := c.fetch(ctx)
	if err != nil {
		if populated {
			// Stale keys beat no keys: the IdP rotates rarely and a
			// transient fetch failure must not lock everyone out.
			c.logger.Warn("jwks refresh failed, serving cached set", "url", c.url, "error", err)
			return keys, nil
		}
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: %v", ErrNoKeys, err)
	}
	return set, nil
}

// ForceRefresh bypasses the TTL. Used once when a token references an
// unknown kid, which usually means the IdP rotated keys mid-TTL.
func (c *KeySetCache) ForceRefresh(ctx context.Context) (jose.JSONWebKeySet, error) {
	set, err := c.fetch(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: %v", ErrNoKeys, err)
	}
	return set, nil
}

func (c *KeySetCache) fetch(ctx context.Context) (jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jose.JSONWebKeySet{}, fmt.Errorf("jwks fetch failed: %s", resp.Status)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("decode jwks: %w", err)
	}

	c.mu.Lock()
	c.keys = set
	c.expiresAt = time.Now().Add(c.ttl)
	c.populated = true
	c.mu.Unlock()

	c.logger.Debug("jwks refreshed", "url", c.url, "keys", len(set.Keys))
	return set, nil
}

func findKey(set jose.JSONWebKeySet, kid string) *jose.JSONWebKey {
	for _, k := range set.Keys {
		if k.KeyID == kid {
			key := k
			return &key
		}
	}
	return nil
}
