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

// ServerRequest is one entry of serverRequests.
type ServerRequest interface {
	RequestType() ServerRequestType
}

type PlatformRequest struct{}
type DeviceTokenRequest struct{}
type PlatformDetailsRequest struct{}
type InitialActivityUpdatesRequest struct{}

// StateChanges carries authoritative copies of the records a client got wrong.
type StateChanges struct {
	RawThreadInfos    []models.ThreadInfo     `json:"rawThreadInfos,omitempty"`
	RawEntryInfos     []models.EntryInfo      `json:"rawEntryInfos,omitempty"`
	CurrentUserInfo   *models.CurrentUserInfo `json:"currentUserInfo,omitempty"`
	UserInfos         []models.UserInfo       `json:"userInfos,omitempty"`
	DeleteThreadIDs   []string                `json:"deleteThreadIDs,omitempty"`
	DeleteEntryIDs    []string                `json:"deleteEntryIDs,omitempty"`
	DeleteUserInfoIDs []string                `json:"deleteUserInfoIDs,omitempty"`
}

// Empty reports whether no change is carried.
func (c *StateChanges) Empty() bool {
	return c == nil || (len(c.RawThreadInfos) == 0 && len(c.RawEntryInfos) == 0 &&
		c.CurrentUserInfo == nil && len(c.UserInfos) == 0 && len(c.DeleteThreadIDs) == 0 &&
		len(c.DeleteEntryIDs) == 0 && len(c.DeleteUserInfoIDs) == 0)
}

// CheckStateRequest asks the client to compare hashes of its state. When
// StateChanges is set the client applies it before hashing. FailUnmentioned
// names collections (e.g. "threadInfos") whose locally held records that have
// no entry in HashesToCheck must be reported as mismatched.
type CheckStateRequest struct {
	HashesToCheck   map[string]string `json:"hashesToCheck"`
	FailUnmentioned map[string]bool   `json:"failUnmentioned,omitempty"`
	StateChanges    *StateChanges     `json:"stateChanges,omitempty"`
}

func (PlatformRequest) RequestType() ServerRequestType        { return RequestPlatform }
func (DeviceTokenRequest) RequestType() ServerRequestType     { return RequestDeviceToken }
func (PlatformDetailsRequest) RequestType() ServerRequestType { return RequestPlatformDetails }
func (InitialActivityUpdatesRequest) RequestType() ServerRequestType {
	return RequestInitialActivityUpdates
}
func (*CheckStateRequest) RequestType() ServerRequestType { return RequestCheckState }

// ServerRequestList is a JSON array of tagged server requests.
type ServerRequestList []ServerRequest

// MarshalJSON implements json.Marshaler. A nil list encodes as [].
func (l ServerRequestList) MarshalJSON() ([]byte, error) {
	return marshalTaggedList(len(l), func(i int) (int, interface{}) {
		return int(l[i].RequestType()), l[i]
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ServerRequestList) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data)
	if !arr.IsArray() {
		*l = nil
		return nil
	}
	out := make(ServerRequestList, 0)
	var decodeErr error
	arr.ForEach(func(_, item gjson.Result) bool {
		typ, _ := integerField(item.Get("type"))
		switch ServerRequestType(typ) {
		case RequestPlatform:
			out = append(out, PlatformRequest{})
		case RequestDeviceToken:
			out = append(out, DeviceTokenRequest{})
		case RequestPlatformDetails:
			out = append(out, PlatformDetailsRequest{})
		case RequestInitialActivityUpdates:
			out = append(out, InitialActivityUpdatesRequest{})
		case RequestCheckState:
			req := &CheckStateRequest{}
			if err := json.Unmarshal([]byte(item.Raw), req); err != nil {
				decodeErr = err
				return false
			}
			out = append(out, req)
		default:
			decodeErr = fmt.Errorf("unknown server request type %d", typ)
			return false
		}
		return true
	})
	if decodeErr != nil {
		return decodeErr
	}
	*l = out
	return nil
}

// FilterRequests returns the requests whose type is not in drop.
func FilterRequests(reqs []ServerRequest, drop ...ServerRequestType) []ServerRequest {
	out := make([]ServerRequest, 0, len(reqs))
outer:
	for _, r := range reqs {
		for _, d := range drop {
			if r.RequestType() == d {
				continue outer
			}
		}
		out = append(out, r)
	}
	return out
}
