// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum accepted length of the cookie secret.
const MinSecretLength = 32

const signingKeyInfo = "threadsync-cookie-signing"

// ErrCookieInvalid is returned for tokens that fail parsing or verification.
var ErrCookieInvalid = errors.New("cookie invalid")

// CookieClaims are the claims carried by a cookie token.
type CookieClaims struct {
	CookieID string `json:"cid"`
	jwt.RegisteredClaims
}

// CookieSigner signs and verifies cookie tokens.
type CookieSigner struct {
	key []byte
}

// NewCookieSigner creates a signer whose HMAC key is derived from secret.
//
// The secret is never used as a key directly. HKDF-SHA256 with a fixed info
// string derives a 32-byte signing key, so the same secret can safely seed
// other keys later.
//
// Parameters:
//   - secret: the configured cookie secret, at least MinSecretLength bytes
//
// Returns:
//   - Pointer to an initialized CookieSigner
//   - error if the secret is too short or key derivation fails
func NewCookieSigner(secret string) (*CookieSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("cookie secret must be at least %d characters, got %d", MinSecretLength, len(secret))
	}
	key, err := deriveKey([]byte(secret), []byte(signingKeyInfo), 32)
	if err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &CookieSigner{key: key}, nil
}

// deriveKey derives a key using HKDF-SHA256.
func deriveKey(secret, info []byte, keyLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Sign returns a token naming cookieID.
//
// Tokens carry no expiry of their own. Validity is decided by the cookie
// record, whose TTL is extended on use; a token for a deleted or expired
// record verifies but fails the store lookup.
func (s *CookieSigner) Sign(cookieID string) (string, error) {
	now := time.Now()
	claims := &CookieClaims{
		CookieID: cookieID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign cookie: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns the cookie ID it names.
//
// Validation Steps:
//  1. Parse token structure and extract claims
//  2. Reject any signing method other than HMAC (algorithm confusion)
//  3. Verify the signature against the derived key
//  4. Require a non-empty cookie ID claim
//
// Every failure wraps ErrCookieInvalid.
func (s *CookieSigner) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &CookieClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCookieInvalid, err)
	}
	claims, ok := parsed.Claims.(*CookieClaims)
	if !ok || !parsed.Valid || claims.CookieID == "" {
		return "", fmt.Errorf("%w: missing cookie id", ErrCookieInvalid)
	}
	return claims.CookieID, nil
}
