// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package models

// Platform identifies a client platform.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// IsNative reports whether the platform receives push notifications through a
// device token.
func (p Platform) IsNative() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// PlatformDetails describes the client build talking to the server.
type PlatformDetails struct {
	Platform     Platform `json:"platform" validate:"required,oneof=ios android web"`
	CodeVersion  int      `json:"codeVersion,omitempty" validate:"gte=0"`
	StateVersion int      `json:"stateVersion,omitempty" validate:"gte=0"`
}

// ActivityUpdate reports that the client focused or unfocused a thread.
// LatestMessage is the newest message the client saw before unfocusing.
type ActivityUpdate struct {
	Focus         bool   `json:"focus"`
	ThreadID      string `json:"threadID" validate:"required"`
	LatestMessage string `json:"latestMessage,omitempty"`
}

// ActivityUpdateResult lists threads that became unread on unfocus because
// newer messages arrived.
type ActivityUpdateResult struct {
	UnfocusedToUnread []string `json:"unfocusedToUnread"`
}
