// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package models

// User is the stored user record.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
}

// UserInfo is the public view of a user other than the viewer.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// CurrentUserInfo describes the viewer. Anonymous viewers only carry an ID.
type CurrentUserInfo struct {
	ID            string `json:"id"`
	Username      string `json:"username,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
	Anonymous     bool   `json:"anonymous,omitempty"`
}

// Info returns the public view of u.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username}
}

// CurrentInfo returns the viewer's own view of u.
func (u *User) CurrentInfo() CurrentUserInfo {
	return CurrentUserInfo{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
	}
}
