// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package auth

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/threadsync/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestSigner(t *testing.T) *CookieSigner {
	t.Helper()
	s, err := NewCookieSigner(testSecret)
	if err != nil {
		t.Fatalf("NewCookieSigner() error = %v", err)
	}
	return s
}

func TestNewCookieSigner_ShortSecret(t *testing.T) {
	if _, err := NewCookieSigner("short"); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestCookieSigner_RoundTrip(t *testing.T) {
	s := newTestSigner(t)
	token, err := s.Sign("cookie-1")
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id != "cookie-1" {
		t.Errorf("cookie id = %q", id)
	}
}

func TestCookieSigner_Rejects(t *testing.T) {
	s := newTestSigner(t)
	other, err := NewCookieSigner(strings.Repeat("z", 40))
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := other.Sign("cookie-1")
	if err != nil {
		t.Fatal(err)
	}

	// A token signed with the raw secret instead of the derived key.
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &CookieClaims{
		CookieID:         "cookie-1",
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CookieClaims{CookieID: "cookie-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	empty, err := s.Sign("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"foreign key", foreign},
		{"raw secret", raw},
		{"alg none", none},
		{"empty cookie id", empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Verify(tt.token); !errors.Is(err, ErrCookieInvalid) {
				t.Errorf("Verify() error = %v, want ErrCookieInvalid", err)
			}
		})
	}
}
