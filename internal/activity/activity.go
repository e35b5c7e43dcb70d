// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/messages"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/state"
	"github.com/tomtom215/threadsync/internal/store"
	"github.com/tomtom215/threadsync/internal/updates"
)

const focusKeyPrefix = "focus:"

// DefaultFocusTTL is how long a focus row survives without a refresh.
const DefaultFocusTTL = 3 * time.Minute

// Threads reads and writes thread snapshots.
type Threads interface {
	Thread(ctx context.Context, id string) (*models.Thread, error)
	PutThread(ctx context.Context, t models.Thread) error
}

// Messages looks up message times.
type Messages interface {
	Get(ctx context.Context, id string) (*models.RawMessageInfo, error)
	Window(ctx context.Context, threadID string, after int64, limit int) ([]models.RawMessageInfo, bool, error)
}

// UpdateCreator records read-status changes for the user's other sessions.
type UpdateCreator interface {
	Create(ctx context.Context, raws []models.RawUpdate, opts updates.CreateOptions) ([]models.RawUpdate, error)
}

type focusRow struct {
	Time int64 `json:"time"`
}

// Service applies activity updates and keeps focus rows.
type Service struct {
	db       *store.DB
	threads  Threads
	messages Messages
	updates  UpdateCreator
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates a Service. A non-positive ttl uses DefaultFocusTTL.
func NewService(db *store.DB, threads Threads, msgs Messages, upd UpdateCreator, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultFocusTTL
	}
	return &Service{db: db, threads: threads, messages: msgs, updates: upd, ttl: ttl, now: time.Now}
}

func sessionPrefix(userID, sessionID string) string {
	return focusKeyPrefix + userID + ":" + sessionID + ":"
}

func focusKey(userID, sessionID, threadID string) string {
	return sessionPrefix(userID, sessionID) + threadID
}

// Apply processes a batch of activity updates from viewer's session and
// returns the threads that became unread on unfocus.
func (s *Service) Apply(ctx context.Context, viewer *auth.Viewer, batch []models.ActivityUpdate) (models.ActivityUpdateResult, error) {
	result := models.ActivityUpdateResult{UnfocusedToUnread: make([]string, 0)}
	if !viewer.LoggedIn || len(batch) == 0 {
		return result, nil
	}

	var readStatus []models.RawUpdate
	for _, au := range batch {
		thread, err := s.threads.Thread(ctx, au.ThreadID)
		if errors.Is(err, state.ErrNotFound) {
			continue
		}
		if err != nil {
			return result, err
		}
		member, ok := thread.Member(viewer.UserID)
		if !ok {
			continue
		}

		if au.Focus {
			if err := s.setFocus(viewer, au.ThreadID); err != nil {
				return result, err
			}
			if member.Unread {
				if err := s.setUnread(ctx, thread, viewer.UserID, false); err != nil {
					return result, err
				}
				readStatus = append(readStatus, readStatusUpdate(viewer.UserID, thread.ID, false))
			}
			continue
		}

		if err := s.clearFocus(viewer, au.ThreadID); err != nil {
			return result, err
		}
		if au.LatestMessage == "" || member.Unread {
			continue
		}
		unread, err := s.newerFromOthers(ctx, viewer.UserID, au.ThreadID, au.LatestMessage)
		if err != nil {
			return result, err
		}
		if !unread {
			continue
		}
		focused, err := s.focusedElsewhere(viewer, au.ThreadID)
		if err != nil {
			return result, err
		}
		if focused {
			continue
		}
		if err := s.setUnread(ctx, thread, viewer.UserID, true); err != nil {
			return result, err
		}
		readStatus = append(readStatus, readStatusUpdate(viewer.UserID, thread.ID, true))
		result.UnfocusedToUnread = append(result.UnfocusedToUnread, thread.ID)
	}

	if len(readStatus) > 0 {
		opts := updates.CreateOptions{ExcludeSessionID: viewer.SessionID}
		if _, err := s.updates.Create(ctx, readStatus, opts); err != nil {
			return result, fmt.Errorf("record read status: %w", err)
		}
	}
	return result, nil
}

func readStatusUpdate(userID, threadID string, unread bool) models.RawUpdate {
	return models.RawUpdate{
		Type:   models.UpdateThreadReadStatus,
		UserID: userID,
		Key:    threadID,
		Unread: unread,
	}
}

func (s *Service) setFocus(viewer *auth.Viewer, threadID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		row := focusRow{Time: s.now().UnixMilli()}
		return store.SetJSONWithTTL(txn, focusKey(viewer.UserID, viewer.SessionID, threadID), row, s.ttl)
	})
}

func (s *Service) clearFocus(viewer *auth.Viewer, threadID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return store.Delete(txn, focusKey(viewer.UserID, viewer.SessionID, threadID))
	})
}

func (s *Service) setUnread(ctx context.Context, thread *models.Thread, userID string, unread bool) error {
	next := *thread
	next.Members = append([]models.Membership(nil), thread.Members...)
	for i := range next.Members {
		if next.Members[i].UserID == userID {
			next.Members[i].Unread = unread
		}
	}
	return s.threads.PutThread(ctx, next)
}

// newerFromOthers reports whether threadID has a message from someone other
// than userID newer than latestID. An unknown latestID counts as nothing seen.
func (s *Service) newerFromOthers(ctx context.Context, userID, threadID, latestID string) (bool, error) {
	var after int64
	latest, err := s.messages.Get(ctx, latestID)
	switch {
	case errors.Is(err, messages.ErrMessageNotFound):
	case err != nil:
		return false, err
	case latest.ThreadID == threadID:
		after = latest.Time
	}
	window, _, err := s.messages.Window(ctx, threadID, after, models.DefaultNumberPerThread)
	if err != nil {
		return false, err
	}
	for _, m := range window {
		if m.CreatorID != userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) focusedElsewhere(viewer *auth.Viewer, threadID string) (bool, error) {
	prefix := focusKeyPrefix + viewer.UserID + ":"
	suffix := ":" + threadID
	own := focusKey(viewer.UserID, viewer.SessionID, threadID)
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		return store.ScanPrefix(txn, prefix, "", func(key string, _ []byte) error {
			if key != own && strings.HasSuffix(key, suffix) {
				found = true
				return store.ErrStopScan
			}
			return nil
		})
	})
	return found, err
}

// UpdateActivityTime refreshes every focus row of the viewer's session.
func (s *Service) UpdateActivityTime(ctx context.Context, viewer *auth.Viewer) error {
	if !viewer.LoggedIn || viewer.SessionID == "" {
		return nil
	}
	prefix := sessionPrefix(viewer.UserID, viewer.SessionID)
	now := s.now().UnixMilli()
	return s.db.Update(func(txn *badger.Txn) error {
		var keys []string
		err := store.ScanPrefix(txn, prefix, "", func(key string, _ []byte) error {
			keys = append(keys, key)
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := store.SetJSONWithTTL(txn, key, focusRow{Time: now}, s.ttl); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteForViewerSession removes the focus rows of the viewer's session.
func (s *Service) DeleteForViewerSession(ctx context.Context, viewer *auth.Viewer) error {
	if viewer.SessionID == "" {
		return nil
	}
	prefix := sessionPrefix(viewer.UserID, viewer.SessionID)
	err := s.db.Update(func(txn *badger.Txn) error {
		var keys []string
		err := store.ScanPrefix(txn, prefix, "", func(key string, _ []byte) error {
			keys = append(keys, key)
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := store.Delete(txn, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logging.Debug().Str("session_id", viewer.SessionID).Msg("cleared focus rows")
	return nil
}

// FocusedThreadIDs lists the threads the viewer's session has in focus.
func (s *Service) FocusedThreadIDs(ctx context.Context, viewer *auth.Viewer) ([]string, error) {
	prefix := sessionPrefix(viewer.UserID, viewer.SessionID)
	ids := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return store.ScanPrefix(txn, prefix, "", func(key string, _ []byte) error {
			ids = append(ids, strings.TrimPrefix(key, prefix))
			return nil
		})
	})
	return ids, err
}
