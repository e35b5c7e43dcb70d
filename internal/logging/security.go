// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package logging

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// SocketEvent is an identity- or consistency-relevant event on a sync socket.
type SocketEvent struct {
	// Event names what happened (e.g. "cookie_replaced", "socket_deauthorized").
	Event string
	// ConnID is the connection the event happened on.
	ConnID string
	// UserID is the viewer's user (empty for anonymous viewers).
	UserID string
	// CookieID is the viewer's cookie (sanitized).
	CookieID string
	// SessionID is the viewer's session (sanitized).
	SessionID string
	// RemoteAddr is the client's address.
	RemoteAddr string
	// Success is false for rejections.
	Success bool
	// Error is the failure reason.
	Error string
	// Details carries additional fields, sanitized by key.
	Details map[string]string
}

// SecurityLogger writes socket events with identifiers masked.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger tags the global logger as component=socket_auth.
func NewSecurityLogger() *SecurityLogger {
	return NewSecurityLoggerWithLogger(Logger())
}

// NewSecurityLoggerWithLogger tags logger as component=socket_auth.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("component", "socket_auth").Logger()}
}

// LogEvent writes event at info, or at warn when it records a rejection.
// Identifiers and Details values are masked before they reach the writer.
func (l *SecurityLogger) LogEvent(event *SocketEvent) {
	e, status := l.logger.Info(), "success"
	if !event.Success {
		e, status = l.logger.Warn(), "failed"
		if event.Error != "" {
			e = e.Str("error", SanitizeError(event.Error))
		}
	}
	e = e.Str("event", event.Event).Str("status", status)

	optional := [...]struct{ key, value string }{
		{"conn_id", event.ConnID},
		{"user_id", SanitizeUserID(event.UserID)},
		{"cookie_id", SanitizeToken(event.CookieID)},
		{"session_id", SanitizeSessionID(event.SessionID)},
		{"remote_addr", event.RemoteAddr},
	}
	for _, f := range optional {
		if f.value != "" {
			e = e.Str(f.key, f.value)
		}
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}
	e.Send()
}

// LogCookieReplaced logs an invalid body cookie swapped for an anonymous one.
func (l *SecurityLogger) LogCookieReplaced(connID, oldCookieID, newCookieID, remoteAddr string) {
	l.LogEvent(&SocketEvent{
		Event:      "cookie_replaced",
		ConnID:     connID,
		CookieID:   newCookieID,
		RemoteAddr: remoteAddr,
		Success:    true,
		Details:    map[string]string{"cookie": oldCookieID},
	})
}

// LogDeauthorized logs a socket closed because its cookie no longer resolves.
func (l *SecurityLogger) LogDeauthorized(connID, remoteAddr string) {
	l.LogEvent(&SocketEvent{
		Event:      "socket_deauthorized",
		ConnID:     connID,
		RemoteAddr: remoteAddr,
		Success:    false,
		Error:      "cookie invalid",
	})
}

// LogNotLoggedIn logs an anonymous viewer rejected on a logged-in-only socket.
func (l *SecurityLogger) LogNotLoggedIn(connID, cookieID string) {
	l.LogEvent(&SocketEvent{
		Event:    "not_logged_in",
		ConnID:   connID,
		CookieID: cookieID,
		Success:  false,
		Error:    "anonymous viewer",
	})
}

// LogVersionRejected logs a client below the minimum supported code version.
func (l *SecurityLogger) LogVersionRejected(connID, userID, platform string, codeVersion int) {
	l.LogEvent(&SocketEvent{
		Event:   "client_version_unsupported",
		ConnID:  connID,
		UserID:  userID,
		Success: false,
		Error:   "code version too old",
		Details: map[string]string{
			"platform":     platform,
			"code_version": strconv.Itoa(codeVersion),
		},
	})
}

// LogSessionMutated logs a socket closed because its session changed under it.
func (l *SecurityLogger) LogSessionMutated(connID, userID, sessionID string) {
	l.LogEvent(&SocketEvent{
		Event:     "session_mutated_from_socket",
		ConnID:    connID,
		UserID:    userID,
		SessionID: sessionID,
		Success:   false,
		Error:     "session changed",
	})
}

// LogStateMismatch logs a failed consistency check.
func (l *SecurityLogger) LogStateMismatch(userID, sessionID string, invalidKeys []string) {
	l.LogEvent(&SocketEvent{
		Event:     "state_mismatch",
		UserID:    userID,
		SessionID: sessionID,
		Success:   false,
		Error:     "client state diverged",
		Details:   map[string]string{"invalid_keys": strings.Join(invalidKeys, ",")},
	})
}

// mask keeps the first and last four bytes of s. Values of at most
// minLen bytes are replaced entirely.
func mask(s string, minLen int) string {
	switch {
	case s == "":
		return ""
	case len(s) <= minLen:
		return "***"
	default:
		return s[:4] + "..." + s[len(s)-4:]
	}
}

// SanitizeToken masks a cookie or device token.
// Example: "a3f1c9e2-77b0-4d2e-9c1a-5be0d3f4a812" -> "a3f1...a812"
func SanitizeToken(token string) string { return mask(token, 12) }

// SanitizeSessionID masks a session ID.
func SanitizeSessionID(sessionID string) string { return mask(sessionID, 12) }

// SanitizeUserID masks a user ID. User IDs are shorter than tokens, so
// fewer bytes suffice before partial masking kicks in.
func SanitizeUserID(userID string) string { return mask(userID, 8) }

// credentialWords mark an error message as possibly echoing a credential.
var credentialWords = []string{"password", "secret", "token", "key", "bearer", "authorization", "cookie"}

// maxErrorLength bounds error text in security events.
const maxErrorLength = 200

// SanitizeError replaces messages that mention credentials with a generic
// reason and truncates the rest.
func SanitizeError(err string) string {
	lower := strings.ToLower(err)
	for _, w := range credentialWords {
		if strings.Contains(lower, w) {
			return "authentication error"
		}
	}
	if len(err) > maxErrorLength {
		return err[:maxErrorLength] + "..."
	}
	return err
}

// maskedKeys lists Details keys whose values are credentials or session
// handles. Matching is case-insensitive.
var maskedKeys = map[string]func(string) string{
	"token":        SanitizeToken,
	"secret":       SanitizeToken,
	"cookie":       SanitizeToken,
	"cookie_id":    SanitizeToken,
	"device_token": SanitizeToken,
	"session":      SanitizeSessionID,
	"session_id":   SanitizeSessionID,
	"sessionid":    SanitizeSessionID,
	"user_id":      SanitizeUserID,
}

// SanitizeValue masks value when key names a credential or identifier.
func SanitizeValue(key, value string) string {
	if fn, ok := maskedKeys[strings.ToLower(key)]; ok {
		return fn(value)
	}
	return value
}
