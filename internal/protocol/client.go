// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package protocol

import (
	"github.com/tomtom215/threadsync/internal/models"
)

// ClientMessage is one decoded client frame.
type ClientMessage interface {
	MessageType() ClientMessageType
	RequestID() int
	responses() []ClientResponse
}

// SessionIdentification names the cookie and session a client claims. Cookie
// is only sent by clients whose transport cannot carry HTTP cookies.
type SessionIdentification struct {
	Cookie    string `json:"cookie,omitempty"`
	SessionID string `json:"sessionID,omitempty"`
}

// SessionState is the client's view of what it already holds.
type SessionState struct {
	CalendarQuery       models.CalendarQuery `json:"calendarQuery"`
	MessagesCurrentAsOf int64                `json:"messagesCurrentAsOf" validate:"gte=0"`
	UpdatesCurrentAsOf  int64                `json:"updatesCurrentAsOf" validate:"gte=0"`
	WatchedIDs          []string             `json:"watchedIDs"`
}

// InitialPayload is the body of INITIAL.
type InitialPayload struct {
	SessionIdentification SessionIdentification `json:"sessionIdentification"`
	SessionState          SessionState          `json:"sessionState"`
	ClientResponses       ClientResponseList    `json:"clientResponses"`
}

// InitialMessage opens the sync session.
type InitialMessage struct {
	ID      int            `json:"id"`
	Payload InitialPayload `json:"payload"`
}

func (*InitialMessage) MessageType() ClientMessageType { return ClientInitial }
func (m *InitialMessage) RequestID() int               { return m.ID }
func (m *InitialMessage) responses() []ClientResponse  { return m.Payload.ClientResponses }

// ResponsesPayload is the body of RESPONSES.
type ResponsesPayload struct {
	ClientResponses ClientResponseList `json:"clientResponses" validate:"required"`
}

// ResponsesMessage answers earlier server requests.
type ResponsesMessage struct {
	ID      int              `json:"id"`
	Payload ResponsesPayload `json:"payload"`
}

func (*ResponsesMessage) MessageType() ClientMessageType { return ClientResponsesType }
func (m *ResponsesMessage) RequestID() int               { return m.ID }
func (m *ResponsesMessage) responses() []ClientResponse  { return m.Payload.ClientResponses }

// ActivityUpdatesPayload is the body of ACTIVITY_UPDATES.
type ActivityUpdatesPayload struct {
	ActivityUpdates []models.ActivityUpdate `json:"activityUpdates" validate:"required,dive"`
}

// ActivityUpdatesMessage reports thread focus changes.
type ActivityUpdatesMessage struct {
	ID      int                    `json:"id"`
	Payload ActivityUpdatesPayload `json:"payload"`
}

func (*ActivityUpdatesMessage) MessageType() ClientMessageType { return ClientActivityUpdates }
func (m *ActivityUpdatesMessage) RequestID() int               { return m.ID }
func (*ActivityUpdatesMessage) responses() []ClientResponse    { return nil }

// PingMessage keeps the connection alive.
type PingMessage struct {
	ID int `json:"id"`
}

func (*PingMessage) MessageType() ClientMessageType { return ClientPing }
func (m *PingMessage) RequestID() int               { return m.ID }
func (*PingMessage) responses() []ClientResponse    { return nil }

// AckUpdatesPayload is the body of ACK_UPDATES.
type AckUpdatesPayload struct {
	CurrentAsOf int64 `json:"currentAsOf" validate:"gte=0"`
}

// AckUpdatesMessage acknowledges updates up to CurrentAsOf.
type AckUpdatesMessage struct {
	ID      int               `json:"id"`
	Payload AckUpdatesPayload `json:"payload"`
}

func (*AckUpdatesMessage) MessageType() ClientMessageType { return ClientAckUpdates }
func (m *AckUpdatesMessage) RequestID() int               { return m.ID }
func (*AckUpdatesMessage) responses() []ClientResponse    { return nil }

// ReportedPlatformDetails returns the platform details carried in msg's
// client responses, or nil when it reports none.
func ReportedPlatformDetails(msg ClientMessage) *models.PlatformDetails {
	for _, resp := range msg.responses() {
		if r, ok := resp.(*PlatformDetailsResponse); ok {
			d := r.PlatformDetails
			return &d
		}
	}
	return nil
}

// ClientResponses returns the client responses carried by msg, if any.
func ClientResponses(msg ClientMessage) []ClientResponse {
	return msg.responses()
}
