// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package models

import "sort"

// Thread roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Membership is a user's stored relationship with a thread.
type Membership struct {
	UserID     string `json:"userID"`
	Role       string `json:"role"`
	Subscribed bool   `json:"subscribed"`
	Unread     bool   `json:"unread"`
}

// Thread is the stored form of a thread, including per-member state.
type Thread struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Color          string       `json:"color"`
	ParentThreadID string       `json:"parentThreadID,omitempty"`
	CreationTime   int64        `json:"creationTime"`
	Members        []Membership `json:"members"`
}

// MemberInfo is the publicly visible part of a membership.
type MemberInfo struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// ThreadCurrentUserInfo is the viewer's own relationship with a thread.
type ThreadCurrentUserInfo struct {
	Role       string `json:"role,omitempty"`
	Subscribed bool   `json:"subscribed"`
	Unread     bool   `json:"unread"`
}

// ThreadInfo is a thread as seen by one viewer.
type ThreadInfo struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	Color          string                `json:"color"`
	ParentThreadID string                `json:"parentThreadID,omitempty"`
	CreationTime   int64                 `json:"creationTime"`
	Members        []MemberInfo          `json:"members"`
	CurrentUser    ThreadCurrentUserInfo `json:"currentUser"`
}

// Member returns the membership for userID, if any.
func (t *Thread) Member(userID string) (Membership, bool) {
	for _, m := range t.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Membership{}, false
}

// IsMember reports whether userID belongs to the thread.
func (t *Thread) IsMember(userID string) bool {
	_, ok := t.Member(userID)
	return ok
}

// MemberIDs returns member user IDs in sorted order.
func (t *Thread) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		ids = append(ids, m.UserID)
	}
	sort.Strings(ids)
	return ids
}

// InfoFor projects the thread for viewerID.
func (t *Thread) InfoFor(viewerID string) ThreadInfo {
	members := make([]MemberInfo, 0, len(t.Members))
	for _, m := range t.Members {
		members = append(members, MemberInfo{ID: m.UserID, Role: m.Role})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	info := ThreadInfo{
		ID:             t.ID,
		Name:           t.Name,
		Description:    t.Description,
		Color:          t.Color,
		ParentThreadID: t.ParentThreadID,
		CreationTime:   t.CreationTime,
		Members:        members,
	}
	if m, ok := t.Member(viewerID); ok {
		info.CurrentUser = ThreadCurrentUserInfo{
			Role:       m.Role,
			Subscribed: m.Subscribed,
			Unread:     m.Unread,
		}
	}
	return info
}
