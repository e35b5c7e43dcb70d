// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package messages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/metrics"
	"github.com/tomtom215/threadsync/internal/models"
)

// Criteria selects the threads to fetch. ThreadCursors maps a thread ID to
// the last message the client has seen there ("" for none); JoinedThreads
// adds every thread the viewer belongs to.
type Criteria struct {
	ThreadCursors map[string]string
	JoinedThreads bool
}

// Result is the outcome of FetchSince.
type Result struct {
	RawMessageInfos    []models.RawMessageInfo
	TruncationStatuses map[string]models.TruncationStatus
	UserInfos          []models.UserInfo
	CurrentAsOf        int64
}

// MessagesResult converts r to its wire form.
func (r *Result) MessagesResult() models.MessagesResult {
	return models.MessagesResult{
		RawMessageInfos:    r.RawMessageInfos,
		TruncationStatuses: r.TruncationStatuses,
		CurrentAsOf:        r.CurrentAsOf,
	}
}

// Directory answers membership and user questions for the fetcher.
type Directory interface {
	JoinedThreadIDs(ctx context.Context, userID string) ([]string, error)
	UserInfos(ctx context.Context, ids []string) ([]models.UserInfo, error)
}

// Fetcher reads message windows for sync.
type Fetcher struct {
	log *Log
	dir Directory
}

// NewFetcher creates a Fetcher.
func NewFetcher(log *Log, dir Directory) *Fetcher {
	return &Fetcher{log: log, dir: dir}
}

// FetchSince returns, per selected thread, up to perThreadLimit messages newer
// than watermark (and newer than the thread's cursor message, when one is
// given), newest-first. Threads the viewer does not belong to are ignored.
func (f *Fetcher) FetchSince(ctx context.Context, viewer *auth.Viewer, criteria Criteria, watermark int64, perThreadLimit int) (*Result, error) {
	start := time.Now()
	defer func() { metrics.RecordFetch("messages", time.Since(start)) }()

	if perThreadLimit <= 0 {
		perThreadLimit = models.DefaultNumberPerThread
	}
	joined, err := f.dir.JoinedThreadIDs(ctx, viewer.UserID)
	if err != nil {
		return nil, fmt.Errorf("list joined threads: %w", err)
	}
	member := make(map[string]bool, len(joined))
	for _, id := range joined {
		member[id] = true
	}

	selected := make(map[string]string)
	for threadID, cursor := range criteria.ThreadCursors {
		if member[threadID] {
			selected[threadID] = cursor
		}
	}
	if criteria.JoinedThreads {
		for _, id := range joined {
			if _, ok := selected[id]; !ok {
				selected[id] = ""
			}
		}
	}
	threadIDs := make([]string, 0, len(selected))
	for id := range selected {
		threadIDs = append(threadIDs, id)
	}
	sort.Strings(threadIDs)

	result := &Result{
		RawMessageInfos:    make([]models.RawMessageInfo, 0),
		TruncationStatuses: make(map[string]models.TruncationStatus, len(threadIDs)),
	}
	creators := make([]string, 0)
	for _, threadID := range threadIDs {
		after := watermark
		if cursor := selected[threadID]; cursor != "" {
			m, err := f.log.Get(ctx, cursor)
			switch {
			case errors.Is(err, ErrMessageNotFound):
			case err != nil:
				return nil, err
			case m.ThreadID == threadID && m.Time > after:
				after = m.Time
			}
		}

		window, truncated, err := f.log.Window(ctx, threadID, after, perThreadLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch thread %s: %w", threadID, err)
		}
		switch {
		case len(window) == 0:
			result.TruncationStatuses[threadID] = models.TruncationUnchanged
		case truncated:
			result.TruncationStatuses[threadID] = models.TruncationTruncated
		default:
			result.TruncationStatuses[threadID] = models.TruncationExhaustive
		}
		for _, m := range window {
			creators = append(creators, m.CreatorID)
		}
		result.RawMessageInfos = append(result.RawMessageInfos, window...)
	}

	result.CurrentAsOf = models.MostRecentMessageTimestamp(result.RawMessageInfos, watermark)
	result.UserInfos, err = f.dir.UserInfos(ctx, creators)
	if err != nil {
		return nil, fmt.Errorf("fetch message creators: %w", err)
	}
	return result, nil
}

// ThreadWindow returns the newest perThreadLimit messages of one thread with
// its truncation status. Update hydration uses it for newly joined threads.
func (f *Fetcher) ThreadWindow(ctx context.Context, threadID string, limit int) ([]models.RawMessageInfo, models.TruncationStatus, error) {
	if limit <= 0 {
		limit = models.DefaultNumberPerThread
	}
	window, truncated, err := f.log.Window(ctx, threadID, 0, limit)
	if err != nil {
		return nil, "", err
	}
	if truncated {
		return window, models.TruncationTruncated, nil
	}
	return window, models.TruncationExhaustive, nil
}

// Hydrate resolves the users referenced by pushed messages.
func (f *Fetcher) Hydrate(ctx context.Context, msgs []models.RawMessageInfo) ([]models.UserInfo, error) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.CreatorID)
	}
	return f.dir.UserInfos(ctx, ids)
}
