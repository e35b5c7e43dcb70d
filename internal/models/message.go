// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package models

// MessageType enumerates chat message kinds.
type MessageType int

const (
	MessageText MessageType = iota
	MessageCreateThread
	MessageAddMembers
	MessageChangeSettings
	MessageRemoveMembers
	MessageCreateEntry
	MessageEditEntry
	MessageDeleteEntry
)

// DefaultNumberPerThread is the per-thread message window used for initial sync.
const DefaultNumberPerThread = 20

// RawMessageInfo is a chat message. LocalID is set by clients for messages
// still awaiting a server-assigned ID.
type RawMessageInfo struct {
	ID        string      `json:"id,omitempty"`
	LocalID   string      `json:"localID,omitempty"`
	ThreadID  string      `json:"threadID"`
	CreatorID string      `json:"creatorID"`
	Type      MessageType `json:"type"`
	Time      int64       `json:"time"`
	Text      string      `json:"text,omitempty"`
}

// TruncationStatus tells a client whether a thread's message window is complete.
type TruncationStatus string

const (
	// TruncationTruncated means more messages exist than were returned.
	TruncationTruncated TruncationStatus = "truncated"
	// TruncationExhaustive means every matching message was returned.
	TruncationExhaustive TruncationStatus = "exhaustive"
	// TruncationUnchanged means nothing new exists for the thread.
	TruncationUnchanged TruncationStatus = "unchanged"
)

// MessagesResult carries fetched messages and the watermark they advance to.
type MessagesResult struct {
	RawMessageInfos    []RawMessageInfo            `json:"rawMessageInfos"`
	TruncationStatuses map[string]TruncationStatus `json:"truncationStatuses"`
	CurrentAsOf        int64                       `json:"currentAsOf"`
}

// MostRecentMessageTimestamp returns the larger of previous and the newest
// message time.
func MostRecentMessageTimestamp(messages []RawMessageInfo, previous int64) int64 {
	latest := previous
	for i := range messages {
		if messages[i].Time > latest {
			latest = messages[i].Time
		}
	}
	return latest
}
