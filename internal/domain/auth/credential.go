package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialClaims are the parts of an access token the client relies on.
// The signature is not verified: the client is not the audience, the server is.
type CredentialClaims struct {
	Subject   string
	Username  string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// InspectCredential reads claims from a JWT access token without verifying it.
func InspectCredential(credential string) (CredentialClaims, error) {
	if credential == "" {
		return CredentialClaims{}, errors.New("empty credential")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return CredentialClaims{}, fmt.Errorf("failed to parse credential: %w", err)
	}

	out := CredentialClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if name, ok := claims["username"].(string); ok {
		out.Username = name
	}
	if out.Subject == "" {
		// some backends put the principal id in a custom claim
		switch v := claims["user_id"].(type) {
		case string:
			out.Subject = v
		case float64:
			out.Subject = fmt.Sprintf("%.0f", v)
		}
	}
	return out, nil
}

// ExpiresWithin reports whether the credential expires before now+window.
// Credentials without an expiry never do.
func (c CredentialClaims) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(window).Before(c.ExpiresAt)
}

// IdentityFromCredential builds a minimal identity from token claims.
func IdentityFromCredential(credential string) (*Identity, bool) {
	claims, err := InspectCredential(credential)
	if err != nil || (claims.Subject == "" && claims.Username == "") {
		return nil, false
	}
	return &Identity{ID: claims.Subject, Username: claims.Username}, true
}

// Fingerprint returns a short stable digest safe to log in place of the credential.
func Fingerprint(credential string) string {
	if credential == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:4])
}
