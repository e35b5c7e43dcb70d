// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package protocol

// ClientMessageType discriminates client frames.
type ClientMessageType int

const (
	ClientInitial ClientMessageType = iota
	ClientResponsesType
	ClientActivityUpdates
	ClientPing
	ClientAckUpdates
)

func (t ClientMessageType) String() string {
	switch t {
	case ClientInitial:
		return "initial"
	case ClientResponsesType:
		return "responses"
	case ClientActivityUpdates:
		return "activity_updates"
	case ClientPing:
		return "ping"
	case ClientAckUpdates:
		return "ack_updates"
	default:
		return "unknown"
	}
}

// ServerMessageType discriminates server frames.
type ServerMessageType int

const (
	ServerStateSync ServerMessageType = iota
	ServerRequests
	ServerErrorType
	ServerAuthError
	ServerActivityUpdateResponse
	ServerPong
	ServerUpdates
	ServerMessages
)

func (t ServerMessageType) String() string {
	switch t {
	case ServerStateSync:
		return "state_sync"
	case ServerRequests:
		return "requests"
	case ServerErrorType:
		return "error"
	case ServerAuthError:
		return "auth_error"
	case ServerActivityUpdateResponse:
		return "activity_update_response"
	case ServerPong:
		return "pong"
	case ServerUpdates:
		return "updates"
	case ServerMessages:
		return "messages"
	default:
		return "unknown"
	}
}

// StateSyncPayloadType discriminates STATE_SYNC payloads.
type StateSyncPayloadType int

const (
	StateSyncFull StateSyncPayloadType = iota
	StateSyncIncremental
)

// ClientResponseType discriminates entries of clientResponses.
type ClientResponseType int

const (
	ResponsePlatform               ClientResponseType = 0
	ResponseDeviceToken            ClientResponseType = 1
	ResponseThreadInconsistency    ClientResponseType = 2
	ResponsePlatformDetails        ClientResponseType = 3
	ResponseEntryInconsistency     ClientResponseType = 5
	ResponseCheckState             ClientResponseType = 6
	ResponseInitialActivityUpdates ClientResponseType = 7
)

// ServerRequestType discriminates entries of serverRequests. Values line up
// with ClientResponseType: a client answers request N with response N.
type ServerRequestType int

const (
	RequestPlatform               ServerRequestType = 0
	RequestDeviceToken            ServerRequestType = 1
	RequestPlatformDetails        ServerRequestType = 3
	RequestCheckState             ServerRequestType = 6
	RequestInitialActivityUpdates ServerRequestType = 7
)

// Close codes sent with server-initiated closes.
const (
	CloseDeauthorized             = 4100
	CloseClientVersionUnsupported = 4101
	CloseNotLoggedIn              = 4102
	CloseSessionMutated           = 4103
)

// Error messages carried by ERROR and AUTH_ERROR frames.
const (
	ErrMsgDeauthorized             = "socket_deauthorized"
	ErrMsgClientVersionUnsupported = "client_version_unsupported"
	ErrMsgNotLoggedIn              = "not_logged_in"
	ErrMsgSessionMutated           = "session_mutated_from_socket"
	ErrMsgAlreadyInitialized       = "socket_already_initialized"
	ErrMsgUninitialized            = "socket_uninitialized"
	ErrMsgInvalidParameters        = "invalid_parameters"
	ErrMsgRateLimited              = "rate_limited"
	ErrMsgUnknown                  = "unknown_error"
)

// StateCheckStatusType is the verdict carried by a StateCheckStatus.
type StateCheckStatusType string

const (
	// StateCheck means a check should start (or continue).
	StateCheck StateCheckStatusType = "state_check"
	// StateValidated means every hash the client checked matched.
	StateValidated StateCheckStatusType = "state_validated"
	// StateInvalid means at least one hash mismatched.
	StateInvalid StateCheckStatusType = "state_invalid"
)

// StateCheckStatus is produced by the client response processor.
type StateCheckStatus struct {
	Status      StateCheckStatusType `json:"status"`
	InvalidKeys []string             `json:"invalidKeys,omitempty"`
}
