package auth

import "github.com/golang-jwt/jwt/v5"

// Identity holds the claims extracted from a validated ID token. Values are
// fixed at validation time; a fresh login produces a fresh Identity.
type Identity struct {
	Subject           string
	Email             string
	Name              string
	PreferredUsername string
	Nonce             string
}

// Claim fallback chains. IdPs vary in where they put the email and display
// name; the first present non-empty claim wins.
var (
	emailClaimChain = []string{"email", "preferred_username", "upn"}
	nameClaimChain  = []string{"name", "given_name"}
)

// extractIdentity builds an Identity from raw claims. The subject is
// mandatory; everything else is best effort.
func extractIdentity(claims jwt.MapClaims) (*Identity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrMissingClaim
	}

	id := &Identity{Subject: sub}
	id.Email = firstStringClaim(claims, emailClaimChain)
	id.Name = firstStringClaim(claims, nameClaimChain)
	if v, ok := claims["preferred_username"].(string); ok {
		id.PreferredUsername = v
	}
	if v, ok := claims["nonce"].(string); ok {
		id.Nonce = v
	}
	return id, nil
}

func firstStringClaim(claims jwt.MapClaims, chain []string) string {
	for _, name := range chain {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
