// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package protocol

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/tomtom215/threadsync/internal/models"
)

// ServerMessage is one server frame.
type ServerMessage interface {
	MessageType() ServerMessageType
	// CorrelationID returns the request id this frame answers, if any.
	CorrelationID() (int, bool)
}

func optionalID(id *int) (int, bool) {
	if id == nil {
		return 0, false
	}
	return *id, true
}

// ResponseTo returns a pointer suitable for optional responseTo fields.
func ResponseTo(id int) *int {
	return &id
}

// StateSyncPayload is either a FullStateSync or an IncrementalStateSync.
type StateSyncPayload interface {
	SyncType() StateSyncPayloadType
}

// FullStateSync replaces the client's state wholesale.
type FullStateSync struct {
	MessagesResult     models.MessagesResult        `json:"messagesResult"`
	ThreadInfos        map[string]models.ThreadInfo `json:"threadInfos"`
	CurrentUserInfo    models.CurrentUserInfo       `json:"currentUserInfo"`
	RawEntryInfos      []models.EntryInfo           `json:"rawEntryInfos"`
	UserInfos          []models.UserInfo            `json:"userInfos"`
	UpdatesCurrentAsOf int64                        `json:"updatesCurrentAsOf"`
	SessionID          string                       `json:"sessionID,omitempty"`
}

// IncrementalStateSync carries only what changed since the client's watermarks.
type IncrementalStateSync struct {
	MessagesResult  models.MessagesResult `json:"messagesResult"`
	UpdatesResult   models.UpdatesResult  `json:"updatesResult"`
	DeltaEntryInfos []models.EntryInfo    `json:"deltaEntryInfos"`
	UserInfos       []models.UserInfo     `json:"userInfos"`
}

func (FullStateSync) SyncType() StateSyncPayloadType        { return StateSyncFull }
func (IncrementalStateSync) SyncType() StateSyncPayloadType { return StateSyncIncremental }

type fullStateSyncFields FullStateSync
type incrementalStateSyncFields IncrementalStateSync

// MarshalJSON implements json.Marshaler.
func (p FullStateSync) MarshalJSON() ([]byte, error) {
	return marshalTagged(int(StateSyncFull), fullStateSyncFields(p))
}

// MarshalJSON implements json.Marshaler.
func (p IncrementalStateSync) MarshalJSON() ([]byte, error) {
	return marshalTagged(int(StateSyncIncremental), incrementalStateSyncFields(p))
}

// StateSyncMessage answers INITIAL.
type StateSyncMessage struct {
	ResponseTo int              `json:"responseTo"`
	Payload    StateSyncPayload `json:"payload"`
}

func (*StateSyncMessage) MessageType() ServerMessageType { return ServerStateSync }
func (m *StateSyncMessage) CorrelationID() (int, bool)   { return m.ResponseTo, true }

// UnmarshalJSON implements json.Unmarshaler.
func (m *StateSyncMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		ResponseTo int             `json:"responseTo"`
		Payload    json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ResponseTo = raw.ResponseTo
	typ, _ := integerField(gjson.GetBytes(raw.Payload, "type"))
	switch StateSyncPayloadType(typ) {
	case StateSyncFull:
		var p fullStateSyncFields
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		m.Payload = FullStateSync(p)
	case StateSyncIncremental:
		var p incrementalStateSyncFields
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		m.Payload = IncrementalStateSync(p)
	default:
		return fmt.Errorf("unknown state sync payload type %d", typ)
	}
	return nil
}

// RequestsPayload is the body of REQUESTS.
type RequestsPayload struct {
	ServerRequests ServerRequestList `json:"serverRequests"`
}

// RequestsMessage asks the client for information.
type RequestsMessage struct {
	ResponseTo *int            `json:"responseTo,omitempty"`
	Payload    RequestsPayload `json:"payload"`
}

func (*RequestsMessage) MessageType() ServerMessageType { return ServerRequests }
func (m *RequestsMessage) CorrelationID() (int, bool)   { return optionalID(m.ResponseTo) }

// ErrorMessage reports a request-local failure.
type ErrorMessage struct {
	ResponseTo *int   `json:"responseTo,omitempty"`
	Message    string `json:"message"`
}

func (*ErrorMessage) MessageType() ServerMessageType { return ServerErrorType }
func (m *ErrorMessage) CorrelationID() (int, bool)   { return optionalID(m.ResponseTo) }

// SessionChange hands the client a replacement identity.
type SessionChange struct {
	Cookie          string                 `json:"cookie,omitempty"`
	CookieInvalid   bool                   `json:"cookieInvalidated"`
	CurrentUserInfo models.CurrentUserInfo `json:"currentUserInfo"`
}

// AuthErrorMessage reports an authorization failure. The connection closes
// right after it.
type AuthErrorMessage struct {
	ResponseTo    int            `json:"responseTo"`
	Message       string         `json:"message"`
	SessionChange *SessionChange `json:"sessionChange,omitempty"`
}

func (*AuthErrorMessage) MessageType() ServerMessageType { return ServerAuthError }
func (m *AuthErrorMessage) CorrelationID() (int, bool)   { return m.ResponseTo, true }

// ActivityUpdateResponseMessage answers ACTIVITY_UPDATES.
type ActivityUpdateResponseMessage struct {
	ResponseTo *int                        `json:"responseTo,omitempty"`
	Payload    models.ActivityUpdateResult `json:"payload"`
}

func (*ActivityUpdateResponseMessage) MessageType() ServerMessageType {
	return ServerActivityUpdateResponse
}
func (m *ActivityUpdateResponseMessage) CorrelationID() (int, bool) { return optionalID(m.ResponseTo) }

// PongMessage answers PING.
type PongMessage struct {
	ResponseTo int `json:"responseTo"`
}

func (*PongMessage) MessageType() ServerMessageType { return ServerPong }
func (m *PongMessage) CorrelationID() (int, bool)   { return m.ResponseTo, true }

// UpdatesPayload is the body of an UPDATES push.
type UpdatesPayload struct {
	UpdatesResult models.UpdatesResult `json:"updatesResult"`
	UserInfos     []models.UserInfo    `json:"userInfos"`
}

// UpdatesMessage pushes updates produced elsewhere.
type UpdatesMessage struct {
	Payload UpdatesPayload `json:"payload"`
}

func (*UpdatesMessage) MessageType() ServerMessageType { return ServerUpdates }
func (*UpdatesMessage) CorrelationID() (int, bool)     { return 0, false }

// MessagesPayload is the body of a MESSAGES push.
type MessagesPayload struct {
	MessagesResult models.MessagesResult `json:"messagesResult"`
	UserInfos      []models.UserInfo     `json:"userInfos"`
}

// MessagesMessage pushes messages produced elsewhere.
type MessagesMessage struct {
	Payload MessagesPayload `json:"payload"`
}

func (*MessagesMessage) MessageType() ServerMessageType { return ServerMessages }
func (*MessagesMessage) CorrelationID() (int, bool)     { return 0, false }
