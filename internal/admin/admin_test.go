package admin

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGuard_Disabled(t *testing.T) {
	g := NewGuard(nil)
	require.False(t, g.Enabled())
	require.NoError(t, g.Authorize(""))
	_, err := g.Mint("ops", time.Minute)
	require.Error(t, err)

	var nilGuard *Guard
	require.NoError(t, nilGuard.Authorize("anything"))
}

func TestGuard_MintAndAuthorize(t *testing.T) {
	g := NewGuard([]byte("secret"))
	tok, err := g.Mint("ops", time.Minute)
	require.NoError(t, err)
	require.NoError(t, g.Authorize(tok))

	require.ErrorIs(t, g.Authorize(""), ErrForbidden)
	require.ErrorIs(t, g.Authorize("garbage"), ErrForbidden)

	other := NewGuard([]byte("other"))
	require.ErrorIs(t, other.Authorize(tok), ErrForbidden)
}

func TestGuard_RejectsExpiredAndNonAdmin(t *testing.T) {
	g := NewGuard([]byte("secret"))
	g.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := g.Mint("ops", time.Minute)
	require.NoError(t, err)
	g.now = time.Now
	require.ErrorIs(t, g.Authorize(expired), ErrForbidden)

	claims := Claims{Role: "user", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}}
	user, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	require.ErrorIs(t, g.Authorize(user), ErrForbidden)
}
