// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package responses

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/metrics"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/session"
	"github.com/tomtom215/threadsync/internal/state"
)

// Snapshots is the state a consistency check compares against.
type Snapshots interface {
	User(ctx context.Context, id string) (*models.User, error)
	ThreadInfos(ctx context.Context, viewerID string) (map[string]models.ThreadInfo, error)
	Entries(ctx context.Context, viewerID string, queries ...models.CalendarQuery) ([]models.EntryInfo, error)
	MemberUserInfos(ctx context.Context, threads map[string]models.ThreadInfo) ([]models.UserInfo, error)
}

// CheckResult is the outcome of CheckState. Either field may be empty.
type CheckResult struct {
	SessionUpdate     session.Update
	CheckStateRequest *protocol.CheckStateRequest
}

// serverState is everything a client is expected to hold, keyed by ID.
type serverState struct {
	threads     map[string]models.ThreadInfo
	entries     map[string]models.EntryInfo
	users       map[string]models.UserInfo
	currentUser models.CurrentUserInfo
}

func (p *Processor) loadState(ctx context.Context, viewer *auth.Viewer, query models.CalendarQuery) (*serverState, error) {
	st := &serverState{}
	var err error
	if viewer.LoggedIn {
		st.threads, err = p.snapshots.ThreadInfos(ctx, viewer.UserID)
		if err != nil {
			return nil, fmt.Errorf("load threads: %w", err)
		}
		entries, err := p.snapshots.Entries(ctx, viewer.UserID, query)
		if err != nil {
			return nil, fmt.Errorf("load entries: %w", err)
		}
		st.entries = make(map[string]models.EntryInfo, len(entries))
		for _, e := range entries {
			st.entries[e.ID] = e
		}
		users, err := p.snapshots.MemberUserInfos(ctx, st.threads)
		if err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
		st.users = make(map[string]models.UserInfo, len(users))
		for _, u := range users {
			st.users[u.ID] = u
		}
		u, err := p.snapshots.User(ctx, viewer.UserID)
		switch {
		case errors.Is(err, state.ErrNotFound):
			st.currentUser = viewer.AnonymousInfo()
		case err != nil:
			return nil, fmt.Errorf("load current user: %w", err)
		default:
			st.currentUser = u.CurrentInfo()
		}
		return st, nil
	}

	st.threads = map[string]models.ThreadInfo{}
	st.entries = map[string]models.EntryInfo{}
	st.users = map[string]models.UserInfo{}
	st.currentUser = viewer.AnonymousInfo()
	return st, nil
}

// CheckState advances the consistency check for status.
func (p *Processor) CheckState(ctx context.Context, viewer *auth.Viewer, status protocol.StateCheckStatus, query models.CalendarQuery) (*CheckResult, error) {
	switch status.Status {
	case protocol.StateValidated:
		now := p.now().UnixMilli()
		return &CheckResult{SessionUpdate: session.Update{LastValidated: &now}}, nil

	case protocol.StateCheck:
		st, err := p.loadState(ctx, viewer, query)
		if err != nil {
			return nil, err
		}
		req, err := collectionHashes(st)
		if err != nil {
			return nil, err
		}
		metrics.StateChecksStarted.Inc()
		return &CheckResult{CheckStateRequest: req}, nil

	case protocol.StateInvalid:
		p.reporter.ReportMismatch(ctx, viewer, status.InvalidKeys)
		st, err := p.loadState(ctx, viewer, query)
		if err != nil {
			return nil, err
		}
		req, err := repairRequest(st, status.InvalidKeys)
		if err != nil {
			return nil, err
		}
		return &CheckResult{CheckStateRequest: req}, nil

	default:
		return nil, fmt.Errorf("unknown state check status %q", status.Status)
	}
}

func collectionHashes(st *serverState) (*protocol.CheckStateRequest, error) {
	values := map[string]interface{}{
		KeyThreadInfos:     st.threads,
		KeyEntryInfos:      st.entries,
		KeyCurrentUserInfo: st.currentUser,
		KeyUserInfos:       st.users,
	}
	hashes := make(map[string]string, len(values))
	for key, v := range values {
		h, err := Hash(v)
		if err != nil {
			return nil, err
		}
		hashes[key] = h
	}
	return &protocol.CheckStateRequest{HashesToCheck: hashes}, nil
}

// repairRequest answers a failed check. A mismatched collection is broken down
// into per-record hashes; a mismatched record is sent back verbatim (or as a
// deletion when the server no longer has it) along with its new hash.
func repairRequest(st *serverState, invalidKeys []string) (*protocol.CheckStateRequest, error) {
	req := &protocol.CheckStateRequest{HashesToCheck: make(map[string]string)}
	changes := &protocol.StateChanges{}
	failUnmentioned := make(map[string]bool)

	addHash := func(key string, v interface{}) error {
		h, err := Hash(v)
		if err != nil {
			return err
		}
		req.HashesToCheck[key] = h
		return nil
	}

	for _, key := range invalidKeys {
		var err error
		switch key {
		case KeyThreadInfos:
			failUnmentioned[KeyThreadInfos] = true
			for id, t := range st.threads {
				if err = addHash(recordKey(prefixThreadInfo, id), t); err != nil {
					break
				}
			}
		case KeyEntryInfos:
			failUnmentioned[KeyEntryInfos] = true
			for id, e := range st.entries {
				if err = addHash(recordKey(prefixEntryInfo, id), e); err != nil {
					break
				}
			}
		case KeyUserInfos:
			failUnmentioned[KeyUserInfos] = true
			for id, u := range st.users {
				if err = addHash(recordKey(prefixUserInfo, id), u); err != nil {
					break
				}
			}
		case KeyCurrentUserInfo:
			cu := st.currentUser
			changes.CurrentUserInfo = &cu
			err = addHash(KeyCurrentUserInfo, cu)
		default:
			err = repairRecord(st, key, changes, addHash)
		}
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(changes.RawThreadInfos, func(i, j int) bool { return changes.RawThreadInfos[i].ID < changes.RawThreadInfos[j].ID })
	sort.Slice(changes.RawEntryInfos, func(i, j int) bool { return changes.RawEntryInfos[i].ID < changes.RawEntryInfos[j].ID })
	sort.Slice(changes.UserInfos, func(i, j int) bool { return changes.UserInfos[i].ID < changes.UserInfos[j].ID })
	if !changes.Empty() {
		req.StateChanges = changes
	}
	if len(failUnmentioned) > 0 {
		req.FailUnmentioned = failUnmentioned
	}
	return req, nil
}

func repairRecord(st *serverState, key string, changes *protocol.StateChanges, addHash func(string, interface{}) error) error {
	prefix, id, ok := splitRecordKey(key)
	if !ok {
		logging.Debug().Str("key", key).Msg("ignoring unknown state check key")
		return nil
	}
	switch prefix {
	case prefixThreadInfo:
		t, found := st.threads[id]
		if !found {
			changes.DeleteThreadIDs = append(changes.DeleteThreadIDs, id)
			return nil
		}
		changes.RawThreadInfos = append(changes.RawThreadInfos, t)
		return addHash(key, t)
	case prefixEntryInfo:
		e, found := st.entries[id]
		if !found {
			changes.DeleteEntryIDs = append(changes.DeleteEntryIDs, id)
			return nil
		}
		changes.RawEntryInfos = append(changes.RawEntryInfos, e)
		return addHash(key, e)
	case prefixUserInfo:
		u, found := st.users[id]
		if !found {
			changes.DeleteUserInfoIDs = append(changes.DeleteUserInfoIDs, id)
			return nil
		}
		changes.UserInfos = append(changes.UserInfos, u)
		return addHash(key, u)
	default:
		logging.Debug().Str("key", key).Msg("ignoring unknown state check key")
		return nil
	}
}
