package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultClockSkew is the leeway applied to exp and nbf in both directions.
const DefaultClockSkew = 5 * time.Minute

// ValidatorConfig configures ID-token validation.
type ValidatorConfig struct {
	// Issuer is the expected issuer of incoming tokens.
	Issuer string
	// LegacyIssuer optionally accepts a second issuer string, for IdPs
	// that still emit the previous-generation issuer format
	// (Azure v1 sts.windows.net vs v2 login.microsoftonline.com).
	LegacyIssuer string
	// Audience is the client id that must appear in the aud list.
	Audience string
	// ClockSkew tolerance for exp/nbf. Defaults to DefaultClockSkew.
	ClockSkew time.Duration
}

// Validator verifies ID tokens against the IdP's cached signing keys and
// extracts identity claims.
type Validator struct {
	cfg    ValidatorConfig
	keys   *KeySetCache
	parser *jwt.Parser
}

// NewValidator builds a validator backed by the given key set cache.
func NewValidator(cfg ValidatorConfig, keys *KeySetCache) *Validator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	)
	return &Validator{cfg: cfg, keys: keys, parser: parser}
}

// Validate checks signature, issuer, audience, and time claims, then
// extracts the identity. All failures map onto the package sentinels.
func (v *Validator) Validate(ctx context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidSignature)
	}

	set, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	_, err = v.parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			// No key hint; the parser tries every published key.
			return verificationKeys(set)
		}
		key := findKey(set, kid)
		if key == nil {
			// The IdP may have rotated keys since the last fetch.
			if refreshed, rerr := v.keys.ForceRefresh(ctx); rerr == nil {
				key = findKey(refreshed, kid)
			}
		}
		if key == nil {
			return nil, fmt.Errorf("signing key %q not found", kid)
		}
		return key.Key, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	iss, _ := claims["iss"].(string)
	if iss != v.cfg.Issuer && (v.cfg.LegacyIssuer == "" || iss != v.cfg.LegacyIssuer) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidIssuer, iss)
	}

	if !audienceContains(claims["aud"], v.cfg.Audience) {
		return nil, fmt.Errorf("%w: expected %q", ErrInvalidAudience, v.cfg.Audience)
	}

	return extractIdentity(claims)
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrMissingClaim, err)
	default:
		// Signature failures, malformed tokens, unknown kid: all opaque
		// to the caller.
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}

func verificationKeys(set jose.JSONWebKeySet) (jwt.VerificationKeySet, error) {
	if len(set.Keys) == 0 {
		return jwt.VerificationKeySet{}, fmt.Errorf("no signing keys published")
	}
	ks := jwt.VerificationKeySet{Keys: make([]jwt.VerificationKey, 0, len(set.Keys))}
	for _, k := range set.Keys {
		ks.Keys = append(ks.Keys, k.Key)
	}
	return ks, nil
}

// audienceContains reports whether the aud claim (string or array) includes
// the expected value. Extra audiences are fine.
func audienceContains(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return v == expected
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == expected {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == expected {
				return true
			}
		}
	}
	return false
}
