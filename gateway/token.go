package gateway

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes is the entropy of every opaque token the gateway mints:
// state, nonce, session ids, flow ids, and one-time codes. 32 bytes gives
// 256 bits, well past guessing range.
const tokenBytes = 32

// newSecureToken returns a URL-safe random token.
func newSecureToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
