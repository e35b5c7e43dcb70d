// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/models"
)

// EntryFetcher loads calendar entries visible to a user.
type EntryFetcher interface {
	Entries(ctx context.Context, viewerID string, queries ...models.CalendarQuery) ([]models.EntryInfo, error)
}

// Update is a partial change to a session. Nil fields are left alone.
type Update struct {
	CalendarQuery *models.CalendarQuery
	LastValidated *int64
	LastUpdate    *int64
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.CalendarQuery == nil && u.LastValidated == nil && u.LastUpdate == nil
}

// Merge overlays other onto u.
func (u Update) Merge(other Update) Update {
	if other.CalendarQuery != nil {
		u.CalendarQuery = other.CalendarQuery
	}
	if other.LastValidated != nil {
		u.LastValidated = other.LastValidated
	}
	if other.LastUpdate != nil {
		u.LastUpdate = other.LastUpdate
	}
	return u
}

// Initialization is the outcome of InitializeOrContinue.
type Initialization struct {
	Continued    bool
	Update       Update
	DeltaEntries []models.EntryInfo
}

// Manager decides session continuation and commits session changes.
type Manager struct {
	store   Store
	entries EntryFetcher
	now     func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, entries EntryFetcher) *Manager {
	return &Manager{store: store, entries: entries, now: time.Now}
}

// SetClock replaces the manager's time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// InitializeOrContinue decides whether the viewer's session can be continued
// with the given calendar query and client update watermark.
//
// When the viewer names a session that does not exist (or belongs to someone
// else) it returns ErrSessionInvalid; the caller falls back to Start and a
// full sync. A session that exists but cannot be continued yields
// Continued=false with no error. Nothing is persisted either way.
func (m *Manager) InitializeOrContinue(ctx context.Context, viewer *auth.Viewer, query models.CalendarQuery, watermark int64) (*Initialization, error) {
	if viewer.SessionID == "" {
		return &Initialization{}, nil
	}
	sess, err := m.store.Get(ctx, viewer.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("session %s: %w", viewer.SessionID, ErrSessionInvalid)
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != viewer.UserID {
		return nil, fmt.Errorf("session %s belongs to another user: %w", viewer.SessionID, ErrSessionInvalid)
	}

	viewer.SessionInfo = &auth.SessionInfo{
		LastValidated: sess.LastValidated,
		LastUpdate:    sess.LastUpdate,
	}
	if sess.CalendarQuery != nil {
		viewer.SessionInfo.CalendarQuery = *sess.CalendarQuery
	}

	if sess.CalendarQuery == nil {
		return &Initialization{}, nil
	}
	if watermark < sess.LastUpdate {
		// The server may already have pruned updates the client still needs.
		logging.Debug().
			Str("session_id", sess.ID).
			Int64("client_watermark", watermark).
			Int64("session_last_update", sess.LastUpdate).
			Msg("client watermark behind session checkpoint")
		return &Initialization{}, nil
	}

	difference, err := models.CompareCalendarQueries(*sess.CalendarQuery, query)
	if err != nil {
		logging.Warn().Err(err).Str("session_id", sess.ID).Msg("stored calendar query unusable")
		return &Initialization{}, nil
	}

	var delta []models.EntryInfo
	if len(difference) > 0 {
		delta, err = m.entries.Entries(ctx, viewer.UserID, difference...)
		if err != nil {
			return nil, fmt.Errorf("fetch delta entries: %w", err)
		}
		delta = models.FilterEntries(delta, query)
	}
	if delta == nil {
		delta = []models.EntryInfo{}
	}

	q := query
	lastUpdate := watermark
	return &Initialization{
		Continued:    true,
		Update:       Update{CalendarQuery: &q, LastUpdate: &lastUpdate},
		DeltaEntries: delta,
	}, nil
}

// Start creates a fresh session for the full-sync path and binds the viewer
// to it. Header-identified viewers keep their cookie-derived session ID;
// everyone else gets a new ID, flagged so the client is told about it.
func (m *Manager) Start(ctx context.Context, viewer *auth.Viewer, query models.CalendarQuery, watermark int64) error {
	id := viewer.SessionID
	reuse := viewer.CookieSource == auth.CookieSourceHeader && id != "" && id == viewer.CookieID
	if !reuse {
		id = uuid.NewString()
	}

	now := m.now().UnixMilli()
	q := query
	sess := &Session{
		ID:            id,
		UserID:        viewer.UserID,
		CookieID:      viewer.CookieID,
		CalendarQuery: &q,
		LastValidated: now,
		LastUpdate:    watermark,
		CreationTime:  now,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	viewer.SetNewSession(id, auth.SessionInfo{
		LastValidated: now,
		LastUpdate:    watermark,
		CalendarQuery: query,
	}, !reuse)
	return nil
}

// Commit applies u to the viewer's in-memory session and persists it.
//
// LastValidated only moves forward and strictly increases on every commit
// that sets it; LastUpdate never regresses. If the record vanished, the
// viewer is flagged as session-changed and ErrSessionInvalid is returned.
func (m *Manager) Commit(ctx context.Context, viewer *auth.Viewer, u Update) error {
	if u.Empty() {
		return nil
	}
	if viewer.SessionInfo == nil || viewer.SessionID == "" {
		viewer.MarkSessionChanged()
		return fmt.Errorf("commit without session: %w", ErrSessionInvalid)
	}

	info := viewer.SessionInfo
	if u.CalendarQuery != nil {
		info.CalendarQuery = *u.CalendarQuery
	}
	if u.LastValidated != nil {
		info.LastValidated = nextValidated(info.LastValidated, *u.LastValidated)
	}
	if u.LastUpdate != nil && *u.LastUpdate > info.LastUpdate {
		info.LastUpdate = *u.LastUpdate
	}

	err := m.store.Update(ctx, viewer.SessionID, func(s *Session) {
		if u.CalendarQuery != nil {
			q := *u.CalendarQuery
			s.CalendarQuery = &q
		}
		if u.LastValidated != nil {
			s.LastValidated = nextValidated(s.LastValidated, *u.LastValidated)
		}
		if u.LastUpdate != nil && *u.LastUpdate > s.LastUpdate {
			s.LastUpdate = *u.LastUpdate
		}
	})
	if errors.Is(err, ErrSessionNotFound) {
		viewer.MarkSessionChanged()
		return fmt.Errorf("session %s vanished: %w", viewer.SessionID, ErrSessionInvalid)
	}
	return err
}

func nextValidated(old, proposed int64) int64 {
	if proposed <= old {
		return old + 1
	}
	return proposed
}

// Delete removes a session record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
