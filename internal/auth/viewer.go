// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package auth

import (
	"github.com/tomtom215/threadsync/internal/models"
)

// CookieSource says where the viewer's cookie came from.
type CookieSource int

const (
	// CookieSourceHeader is the HTTP Cookie header of the upgrade request.
	CookieSourceHeader CookieSource = iota
	// CookieSourceBody is the INITIAL frame's sessionIdentification.cookie.
	CookieSourceBody
)

func (s CookieSource) String() string {
	if s == CookieSourceBody {
		return "body"
	}
	return "header"
}

// SessionInfo is the in-memory copy of the session a connection is bound to.
type SessionInfo struct {
	LastValidated int64
	LastUpdate    int64
	CalendarQuery models.CalendarQuery
}

// Viewer is the identity behind one connection. It is owned by the
// connection's goroutine and is not safe for concurrent mutation.
type Viewer struct {
	UserID           string
	LoggedIn         bool
	CookieID         string
	CookieSource     CookieSource
	CookiePairString string

	// SessionID is empty until a session is started for a body-identified
	// client that did not name one.
	SessionID   string
	SessionInfo *SessionInfo

	Platform        models.Platform
	PlatformDetails *models.PlatformDetails
	DeviceToken     string

	sessionChanged bool
}

// ID returns the user ID for logged-in viewers and the cookie ID otherwise.
func (v *Viewer) ID() string {
	if v.LoggedIn {
		return v.UserID
	}
	return v.CookieID
}

// HasSessionInfo reports whether a session record is loaded.
func (v *Viewer) HasSessionInfo() bool {
	return v.SessionInfo != nil
}

// SessionChanged reports whether the viewer's cookie or session identifier
// changed since the client last learned it.
func (v *Viewer) SessionChanged() bool {
	return v.sessionChanged
}

// MarkSessionChanged flags that the client must be told about a new identity.
func (v *Viewer) MarkSessionChanged() {
	v.sessionChanged = true
}

// ClearSessionChanged records that the new identity was handed to the client.
func (v *Viewer) ClearSessionChanged() {
	v.sessionChanged = false
}

// SetNewSession binds the viewer to a freshly created session.
func (v *Viewer) SetNewSession(id string, info SessionInfo, identifierChanged bool) {
	v.SessionID = id
	v.SessionInfo = &info
	if identifierChanged {
		v.sessionChanged = true
	}
}

// AnonymousInfo is the CurrentUserInfo handed out with a replacement cookie.
func (v *Viewer) AnonymousInfo() models.CurrentUserInfo {
	return models.CurrentUserInfo{ID: v.CookieID, Anonymous: true}
}

// NativeClient reports whether the viewer's platform uses device tokens.
func (v *Viewer) NativeClient() bool {
	return v.Platform.IsNative()
}
