// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package protocol

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/tomtom215/threadsync/internal/models"
)

// ClientResponse is one entry of clientResponses.
type ClientResponse interface {
	ResponseType() ClientResponseType
}

// PlatformResponse answers RequestPlatform.
type PlatformResponse struct {
	Platform models.Platform `json:"platform" validate:"required,oneof=ios android web"`
}

// DeviceTokenResponse answers RequestDeviceToken.
type DeviceTokenResponse struct {
	DeviceToken string `json:"deviceToken" validate:"required"`
}

// PlatformDetailsResponse answers RequestPlatformDetails.
type PlatformDetailsResponse struct {
	PlatformDetails models.PlatformDetails `json:"platformDetails"`
}

// CheckStateResponse answers RequestCheckState with one boolean per checked
// hash key.
type CheckStateResponse struct {
	HashResults map[string]bool `json:"hashResults" validate:"required"`
}

// InitialActivityUpdatesResponse answers RequestInitialActivityUpdates.
type InitialActivityUpdatesResponse struct {
	ActivityUpdates []models.ActivityUpdate `json:"activityUpdates" validate:"required,dive"`
}

// InconsistencyResponse is a client-detected divergence between the state it
// computed locally and the state the server pushed. The action payloads are
// opaque to the server and only relayed to the reporter.
type InconsistencyResponse struct {
	Kind         ClientResponseType `json:"-"`
	BeforeAction json.RawMessage    `json:"beforeAction,omitempty"`
	Action       json.RawMessage    `json:"action,omitempty"`
	PushResult   json.RawMessage    `json:"pushResult,omitempty"`
	LastActions  []string           `json:"lastActionTypes,omitempty"`
	Time         int64              `json:"time"`
}

func (*PlatformResponse) ResponseType() ClientResponseType        { return ResponsePlatform }
func (*DeviceTokenResponse) ResponseType() ClientResponseType     { return ResponseDeviceToken }
func (*PlatformDetailsResponse) ResponseType() ClientResponseType { return ResponsePlatformDetails }
func (*CheckStateResponse) ResponseType() ClientResponseType      { return ResponseCheckState }
func (*InitialActivityUpdatesResponse) ResponseType() ClientResponseType {
	return ResponseInitialActivityUpdates
}
func (r *InconsistencyResponse) ResponseType() ClientResponseType { return r.Kind }

// ClientResponseList is a JSON array of tagged client responses.
type ClientResponseList []ClientResponse

// MarshalJSON implements json.Marshaler.
func (l ClientResponseList) MarshalJSON() ([]byte, error) {
	return marshalTaggedList(len(l), func(i int) (int, interface{}) {
		return int(l[i].ResponseType()), l[i]
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ClientResponseList) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data)
	if arr.Type == gjson.Null {
		*l = nil
		return nil
	}
	if !arr.IsArray() {
		return fmt.Errorf("clientResponses: expected array")
	}

	out := make(ClientResponseList, 0)
	var decodeErr error
	arr.ForEach(func(_, item gjson.Result) bool {
		typ, ok := integerField(item.Get("type"))
		if !ok {
			decodeErr = fmt.Errorf("client response without integer type")
			return false
		}
		var resp ClientResponse
		switch ClientResponseType(typ) {
		case ResponsePlatform:
			resp = &PlatformResponse{}
		case ResponseDeviceToken:
			resp = &DeviceTokenResponse{}
		case ResponsePlatformDetails:
			resp = &PlatformDetailsResponse{}
		case ResponseCheckState:
			resp = &CheckStateResponse{}
		case ResponseInitialActivityUpdates:
			resp = &InitialActivityUpdatesResponse{}
		case ResponseThreadInconsistency, ResponseEntryInconsistency:
			resp = &InconsistencyResponse{Kind: ClientResponseType(typ)}
		default:
			decodeErr = fmt.Errorf("unknown client response type %d", typ)
			return false
		}
		if err := json.Unmarshal([]byte(item.Raw), resp); err != nil {
			decodeErr = fmt.Errorf("client response type %d: %w", typ, err)
			return false
		}
		out = append(out, resp)
		return true
	})
	if decodeErr != nil {
		return decodeErr
	}
	*l = out
	return nil
}

// marshalTaggedList encodes n tagged values as a JSON array.
func marshalTaggedList(n int, at func(i int) (int, interface{})) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		t, v := at(i)
		b, err := marshalTagged(t, v)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
