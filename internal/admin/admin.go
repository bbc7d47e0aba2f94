// Package admin authorizes operator-only calls with HS256 JWTs.
package admin

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the claim value an operator token must carry.
const Role = "admin"

// ErrForbidden is returned for missing, invalid or non-admin tokens.
var ErrForbidden = errors.New("admin: forbidden")

// Claims are the JWT claims of an operator token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Guard verifies operator tokens. A Guard without a key lets every call through.
type Guard struct {
	key []byte
	now func() time.Time
}

// NewGuard returns a guard keyed with signKey.
func NewGuard(signKey []byte) *Guard {
	return &Guard{key: signKey, now: time.Now}
}

// Enabled reports whether a signing key is configured.
func (g *Guard) Enabled() bool { return g != nil && len(g.key) > 0 }

// Mint signs an operator token for subject valid for ttl.
func (g *Guard) Mint(subject string, ttl time.Duration) (string, error) {
	if !g.Enabled() {
		return "", errors.New("admin: no signing key")
	}
	now := g.now()
	claims := Claims{
		Role: Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.key)
}

// Authorize checks raw when the guard is enabled.
func (g *Guard) Authorize(raw string) error {
	if !g.Enabled() {
		return nil
	}
	if raw == "" {
		return ErrForbidden
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return g.key, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(g.now))
	if err != nil || !parsed.Valid || claims.Role != Role {
		return ErrForbidden
	}
	return nil
}
