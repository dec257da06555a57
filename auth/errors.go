package auth

import "errors"

// Validation failure taxonomy. Handlers map these to a coarse category for
// the client; the detailed reason stays in server logs.
var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrInvalidIssuer    = errors.New("token issuer not accepted")
	ErrInvalidAudience  = errors.New("token audience not accepted")
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not yet valid")
	ErrMissingClaim     = errors.New("token missing required claim")

	// ErrNoKeys indicates the signing key set could not be obtained at all.
	ErrNoKeys = errors.New("no signing keys available")
)
