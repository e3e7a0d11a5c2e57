package apitest

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer signs and verifies HS256 access tokens for the stub backend.
type TokenIssuer struct {
	secretKey []byte
	ttl       time.Duration
	seq       atomic.Uint64
}

// NewTokenIssuer builds a token helper using the provided secret.
func NewTokenIssuer(secretKey string) *TokenIssuer {
	return &TokenIssuer{
		secretKey: []byte(secretKey),
		ttl:       time.Hour,
	}
}

// WithTTL allows customising the expiration duration.
func (ti *TokenIssuer) WithTTL(ttl time.Duration) *TokenIssuer {
	if ttl != 0 {
		ti.ttl = ttl
	}
	return ti
}

// Issue returns a unique token for the user.
func (ti *TokenIssuer) Issue(userID, username string) (string, error) {
	if len(ti.secretKey) == 0 {
		return "", errors.New("token secret is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"jti":      fmt.Sprintf("t%d", ti.seq.Add(1)),
		"exp":      now.Add(ti.ttl).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates the token signature and expiry and returns the subject.
func (ti *TokenIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid sub claim")
	}
	return sub, nil
}
