// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/tomtom215/threadsync/internal/validation"
)

// withType prepends a "type" member to an encoded JSON object.
func withType(t int, obj []byte) ([]byte, error) {
	obj = bytes.TrimSpace(obj)
	if len(obj) < 2 || obj[0] != '{' {
		return nil, fmt.Errorf("expected JSON object, got %q", obj)
	}
	out := make([]byte, 0, len(obj)+16)
	out = append(out, `{"type":`...)
	out = strconv.AppendInt(out, int64(t), 10)
	if len(bytes.TrimSpace(obj[1:len(obj)-1])) == 0 {
		return append(out, '}'), nil
	}
	out = append(out, ',')
	return append(out, obj[1:]...), nil
}

// marshalTagged encodes v as an object with the given discriminator.
func marshalTagged(t int, v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return withType(t, b)
}

// integerField reads an integral JSON number, reporting whether it was present
// and well-formed.
func integerField(r gjson.Result) (int, bool) {
	if !r.Exists() || r.Type != gjson.Number {
		return 0, false
	}
	if r.Num != math.Trunc(r.Num) || r.Num < math.MinInt32 || r.Num > math.MaxInt32 {
		return 0, false
	}
	return int(r.Num), true
}

// EncodeServerMessage serializes a server message into one frame.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	return marshalTagged(int(msg.MessageType()), msg)
}

// EncodeClientMessage serializes a client message into one frame.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	return marshalTagged(int(msg.MessageType()), msg)
}

// DecodeClientMessage parses and validates one client frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DecodeError{Reason: "malformed json"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &DecodeError{Reason: "frame is not an object"}
	}

	var id *int
	if v, ok := integerField(root.Get("id")); ok && v >= 0 {
		id = &v
	}
	typ, ok := integerField(root.Get("type"))
	if !ok {
		return nil, &DecodeError{ID: id, Reason: "missing or non-integer type"}
	}
	if id == nil {
		return nil, &DecodeError{Reason: "missing or invalid id"}
	}

	var msg ClientMessage
	switch ClientMessageType(typ) {
	case ClientInitial:
		msg = &InitialMessage{}
	case ClientResponsesType:
		msg = &ResponsesMessage{}
	case ClientActivityUpdates:
		msg = &ActivityUpdatesMessage{}
	case ClientPing:
		msg = &PingMessage{}
	case ClientAckUpdates:
		msg = &AckUpdatesMessage{}
	default:
		return nil, &DecodeError{ID: id, Reason: "unknown message type " + strconv.Itoa(typ)}
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &DecodeError{ID: id, Reason: "payload does not match " + ClientMessageType(typ).String(), Err: err}
	}
	if err := validation.ValidateStruct(msg); err != nil {
		return nil, &DecodeError{ID: id, Reason: "validation failed", Err: err}
	}
	for _, resp := range msg.responses() {
		if err := validation.ValidateStruct(resp); err != nil {
			return nil, &DecodeError{ID: id, Reason: "invalid client response", Err: err}
		}
	}
	return msg, nil
}

// DecodeServerMessage parses one server frame. Clients and tests use it; the
// server never reads its own frames back.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	typ, ok := integerField(gjson.GetBytes(data, "type"))
	if !ok {
		return nil, errors.New("server frame has no integer type")
	}
	var msg ServerMessage
	switch ServerMessageType(typ) {
	case ServerStateSync:
		msg = &StateSyncMessage{}
	case ServerRequests:
		msg = &RequestsMessage{}
	case ServerErrorType:
		msg = &ErrorMessage{}
	case ServerAuthError:
		msg = &AuthErrorMessage{}
	case ServerActivityUpdateResponse:
		msg = &ActivityUpdateResponseMessage{}
	case ServerPong:
		msg = &PongMessage{}
	case ServerUpdates:
		msg = &UpdatesMessage{}
	case ServerMessages:
		msg = &MessagesMessage{}
	default:
		return nil, fmt.Errorf("unknown server message type %d", typ)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ServerMessageType(typ), err)
	}
	return msg, nil
}
