// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package models

// UpdateType enumerates the kinds of per-user state change.
type UpdateType int

const (
	UpdateDeleteAccount UpdateType = iota
	UpdateThread
	UpdateThreadReadStatus
	UpdateDeleteThread
	UpdateJoinThread
	UpdateBadDeviceToken
	UpdateEntry
	UpdateCurrentUser
	UpdateUser
)

// String implements fmt.Stringer.
func (t UpdateType) String() string {
	switch t {
	case UpdateDeleteAccount:
		return "delete_account"
	case UpdateThread:
		return "update_thread"
	case UpdateThreadReadStatus:
		return "update_thread_read_status"
	case UpdateDeleteThread:
		return "delete_thread"
	case UpdateJoinThread:
		return "join_thread"
	case UpdateBadDeviceToken:
		return "bad_device_token"
	case UpdateEntry:
		return "update_entry"
	case UpdateCurrentUser:
		return "update_current_user"
	case UpdateUser:
		return "update_user"
	default:
		return "unknown"
	}
}

// RawUpdate is an update as stored in the log. Key names the thread, entry or
// user the update is about. An update with a TargetSessionID is only visible
// to that session of the user.
type RawUpdate struct {
	ID              string     `json:"id"`
	Type            UpdateType `json:"type"`
	UserID          string     `json:"userID"`
	Time            int64      `json:"time"`
	Key             string     `json:"key,omitempty"`
	Unread          bool       `json:"unread,omitempty"`
	DeviceToken     string     `json:"deviceToken,omitempty"`
	TargetSessionID string     `json:"targetSessionID,omitempty"`
}

// VisibleTo reports whether the update should reach sessionID.
func (u *RawUpdate) VisibleTo(sessionID string) bool {
	return u.TargetSessionID == "" || u.TargetSessionID == sessionID
}

// UpdateInfo is a hydrated update as delivered to clients. Only the fields
// relevant to Type are populated.
type UpdateInfo struct {
	Type UpdateType `json:"type"`
	ID   string     `json:"id"`
	Time int64      `json:"time"`

	DeletedUserID    string           `json:"deletedUserID,omitempty"`
	ThreadInfo       *ThreadInfo      `json:"threadInfo,omitempty"`
	ThreadID         string           `json:"threadID,omitempty"`
	Unread           *bool            `json:"unread,omitempty"`
	RawMessageInfos  []RawMessageInfo `json:"rawMessageInfos,omitempty"`
	TruncationStatus TruncationStatus `json:"truncationStatus,omitempty"`
	RawEntryInfos    []EntryInfo      `json:"rawEntryInfos,omitempty"`
	EntryInfo        *EntryInfo       `json:"entryInfo,omitempty"`
	DeviceToken      string           `json:"deviceToken,omitempty"`
	CurrentUserInfo  *CurrentUserInfo `json:"currentUserInfo,omitempty"`
	UpdatedUserID    string           `json:"updatedUserID,omitempty"`
}

// UpdatesResult carries new updates and the watermark they advance to.
type UpdatesResult struct {
	NewUpdates  []UpdateInfo `json:"newUpdates"`
	CurrentAsOf int64        `json:"currentAsOf"`
}

// MostRecentUpdateTimestamp returns the larger of previous and the newest update
// time, so a watermark never regresses.
func MostRecentUpdateTimestamp(updates []UpdateInfo, previous int64) int64 {
	latest := previous
	for i := range updates {
		if updates[i].Time > latest {
			latest = updates[i].Time
		}
	}
	return latest
}
