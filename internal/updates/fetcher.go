// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package updates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/metrics"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/state"
)

// Snapshots is the read side of the state repository.
type Snapshots interface {
	User(ctx context.Context, id string) (*models.User, error)
	UserInfos(ctx context.Context, ids []string) ([]models.UserInfo, error)
	Thread(ctx context.Context, id string) (*models.Thread, error)
	Entry(ctx context.Context, id string) (*models.EntryInfo, error)
	Entries(ctx context.Context, viewerID string, queries ...models.CalendarQuery) ([]models.EntryInfo, error)
}

// MessageWindows supplies the message window of a newly joined thread.
type MessageWindows interface {
	ThreadWindow(ctx context.Context, threadID string, limit int) ([]models.RawMessageInfo, models.TruncationStatus, error)
}

// Result is a batch of hydrated updates.
type Result struct {
	Updates     []models.UpdateInfo
	UserInfos   []models.UserInfo
	CurrentAsOf int64
}

// UpdatesResult converts r to its wire form.
func (r *Result) UpdatesResult() models.UpdatesResult {
	return models.UpdatesResult{NewUpdates: r.Updates, CurrentAsOf: r.CurrentAsOf}
}

// Fetcher reads and hydrates updates.
type Fetcher struct {
	log       *Log
	snapshots Snapshots
	windows   MessageWindows
}

// NewFetcher creates a Fetcher.
func NewFetcher(log *Log, snapshots Snapshots, windows MessageWindows) *Fetcher {
	return &Fetcher{log: log, snapshots: snapshots, windows: windows}
}

// FetchSince returns the viewer's updates after watermark, hydrated for
// query. CurrentAsOf is the newest returned update's time, or watermark when
// nothing survives hydration.
func (f *Fetcher) FetchSince(ctx context.Context, viewer *auth.Viewer, watermark int64, query models.CalendarQuery) (*Result, error) {
	start := time.Now()
	defer func() { metrics.RecordFetch("updates", time.Since(start)) }()

	raws, err := f.log.Since(ctx, viewer.UserID, viewer.SessionID, watermark)
	if err != nil {
		return nil, err
	}
	res, err := f.Hydrate(ctx, viewer, raws, query)
	if err != nil {
		return nil, err
	}
	res.CurrentAsOf = models.MostRecentUpdateTimestamp(res.Updates, watermark)
	return res, nil
}

// Hydrate turns raw updates into update infos for viewer. Updates whose
// subject no longer exists or falls outside the query are dropped and do
// not count toward CurrentAsOf.
func (f *Fetcher) Hydrate(ctx context.Context, viewer *auth.Viewer, raws []models.RawUpdate, query models.CalendarQuery) (*Result, error) {
	res := &Result{Updates: make([]models.UpdateInfo, 0, len(raws))}
	users := make([]string, 0)
	for i := range raws {
		raw := &raws[i]
		if !raw.VisibleTo(viewer.SessionID) {
			continue
		}
		info, refs, err := f.hydrateOne(ctx, viewer, raw, query)
		if err != nil {
			return nil, fmt.Errorf("hydrate %s update %s: %w", raw.Type, raw.ID, err)
		}
		if info == nil {
			continue
		}
		res.Updates = append(res.Updates, *info)
		users = append(users, refs...)
	}

	var err error
	res.UserInfos, err = f.snapshots.UserInfos(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("fetch referenced users: %w", err)
	}
	res.CurrentAsOf = models.MostRecentUpdateTimestamp(res.Updates, 0)
	return res, nil
}

// hydrateOne returns the update info for raw, or nil when it should be
// dropped, plus the user IDs it references.
func (f *Fetcher) hydrateOne(ctx context.Context, viewer *auth.Viewer, raw *models.RawUpdate, query models.CalendarQuery) (*models.UpdateInfo, []string, error) {
	info := &models.UpdateInfo{Type: raw.Type, ID: raw.ID, Time: raw.Time}

	switch raw.Type {
	case models.UpdateDeleteAccount:
		info.DeletedUserID = raw.Key
		return info, nil, nil

	case models.UpdateThread:
		thread, err := f.thread(ctx, raw.Key)
		if thread == nil || err != nil {
			return nil, nil, err
		}
		ti := thread.InfoFor(viewer.UserID)
		info.ThreadInfo = &ti
		return info, thread.MemberIDs(), nil

	case models.UpdateThreadReadStatus:
		unread := raw.Unread
		info.ThreadID = raw.Key
		info.Unread = &unread
		return info, nil, nil

	case models.UpdateDeleteThread:
		info.ThreadID = raw.Key
		return info, nil, nil

	case models.UpdateJoinThread:
		thread, err := f.thread(ctx, raw.Key)
		if thread == nil || err != nil {
			return nil, nil, err
		}
		ti := thread.InfoFor(viewer.UserID)
		info.ThreadInfo = &ti
		window, status, err := f.windows.ThreadWindow(ctx, thread.ID, models.DefaultNumberPerThread)
		if err != nil {
			return nil, nil, err
		}
		info.RawMessageInfos = window
		info.TruncationStatus = status

		entries, err := f.snapshots.Entries(ctx, viewer.UserID, query)
		if err != nil {
			return nil, nil, err
		}
		info.RawEntryInfos = make([]models.EntryInfo, 0)
		for _, e := range entries {
			if e.ThreadID == thread.ID {
				info.RawEntryInfos = append(info.RawEntryInfos, e)
			}
		}

		refs := thread.MemberIDs()
		for _, m := range window {
			refs = append(refs, m.CreatorID)
		}
		for _, e := range info.RawEntryInfos {
			refs = append(refs, e.CreatorID)
		}
		return info, refs, nil

	case models.UpdateBadDeviceToken:
		info.DeviceToken = raw.DeviceToken
		return info, nil, nil

	case models.UpdateEntry:
		entry, err := f.snapshots.Entry(ctx, raw.Key)
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		// Deleted entries still propagate so clients can drop them.
		if !query.Covers(entry) {
			return nil, nil, nil
		}
		thread, err := f.thread(ctx, entry.ThreadID)
		if thread == nil || err != nil || !thread.IsMember(viewer.UserID) {
			return nil, nil, err
		}
		info.EntryInfo = entry
		return info, []string{entry.CreatorID}, nil

	case models.UpdateCurrentUser:
		u, err := f.snapshots.User(ctx, viewer.UserID)
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		cu := u.CurrentInfo()
		info.CurrentUserInfo = &cu
		return info, nil, nil

	case models.UpdateUser:
		info.UpdatedUserID = raw.Key
		return info, []string{raw.Key}, nil

	default:
		logging.Warn().Int("type", int(raw.Type)).Str("update_id", raw.ID).Msg("skipping update of unknown type")
		return nil, nil, nil
	}
}

func (f *Fetcher) thread(ctx context.Context, id string) (*models.Thread, error) {
	thread, err := f.snapshots.Thread(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil
	}
	return thread, err
}
