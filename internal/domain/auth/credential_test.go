package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

func TestInspectCredential(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	token := signed(t, jwt.MapClaims{"sub": "u-7", "username": "bob", "exp": exp.Unix()})

	claims, err := InspectCredential(token)
	require.NoError(t, err)
	assert.Equal(t, "u-7", claims.Subject)
	assert.Equal(t, "bob", claims.Username)
	assert.True(t, claims.ExpiresAt.Equal(exp))
}

func TestInspectCredential_UserIDClaim(t *testing.T) {
	token := signed(t, jwt.MapClaims{"user_id": float64(42)})

	claims, err := InspectCredential(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
}

func TestInspectCredential_Invalid(t *testing.T) {
	_, err := InspectCredential("")
	assert.Error(t, err)

	_, err = InspectCredential("not-a-token")
	assert.Error(t, err)
}

func TestExpiresWithin(t *testing.T) {
	now := time.Now()
	claims := CredentialClaims{ExpiresAt: now.Add(30 * time.Second)}

	assert.True(t, claims.ExpiresWithin(now, time.Minute))
	assert.False(t, claims.ExpiresWithin(now, 10*time.Second))
	assert.False(t, CredentialClaims{}.ExpiresWithin(now, time.Hour))
}

func TestIdentityFromCredential(t *testing.T) {
	identity, ok := IdentityFromCredential(signed(t, jwt.MapClaims{"sub": "u-1", "username": "alice"}))
	require.True(t, ok)
	assert.Equal(t, &Identity{ID: "u-1", Username: "alice"}, identity)

	_, ok = IdentityFromCredential(signed(t, jwt.MapClaims{"scope": "x"}))
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "none", Fingerprint(""))
	fp := Fingerprint("secret-token")
	assert.Len(t, fp, 8)
	assert.Equal(t, fp, Fingerprint("secret-token"))
	assert.NotContains(t, fp, "secret")
}
