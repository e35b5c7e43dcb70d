// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/tomtom215/threadsync/internal/models"
)

var (
	// ErrSessionNotFound is returned by stores for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionInvalid means the session a client named cannot be used.
	ErrSessionInvalid = errors.New("session invalid")
)

// Session is the persisted session record.
type Session struct {
	ID            string                `json:"id"`
	UserID        string                `json:"userID"`
	CookieID      string                `json:"cookieID"`
	CalendarQuery *models.CalendarQuery `json:"calendarQuery,omitempty"`
	LastValidated int64                 `json:"lastValidated"`
	LastUpdate    int64                 `json:"lastUpdate"`
	CreationTime  int64                 `json:"creationTime"`
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Update applies fn to the stored record. It returns ErrSessionNotFound
	// when the record no longer exists.
	Update(ctx context.Context, id string, fn func(s *Session)) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]string, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func cloneSession(s Session) *Session {
	if s.CalendarQuery != nil {
		q := *s.CalendarQuery
		q.Filters = append([]models.CalendarFilter(nil), q.Filters...)
		s.CalendarQuery = &q
	}
	return &s
}

// Create stores s, replacing any record with the same ID.
func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *cloneSession(*s)
	return nil
}

// Get returns a copy of the record.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// Update applies fn under the store lock.
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(s *Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	updated := cloneSession(s)
	fn(updated)
	m.sessions[id] = *updated
	return nil
}

// Delete removes a record.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ListForUser returns the IDs of userID's sessions.
func (m *MemoryStore) ListForUser(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.sessions {
		if s.UserID == userID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
