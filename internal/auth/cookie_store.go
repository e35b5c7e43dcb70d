// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/store"
)

const cookieKeyPrefix = "cookie:"

// ErrCookieNotFound is returned when a cookie record does not exist or expired.
var ErrCookieNotFound = errors.New("cookie not found")

// Cookie is the stored record behind a cookie token. UserID is empty for
// anonymous cookies.
type Cookie struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"userID,omitempty"`
	Platform        models.Platform         `json:"platform,omitempty"`
	PlatformDetails *models.PlatformDetails `json:"platformDetails,omitempty"`
	DeviceToken     string                  `json:"deviceToken,omitempty"`
	CreationTime    int64                   `json:"creationTime"`
	LastUsed        int64                   `json:"lastUsed"`
}

// Anonymous reports whether the cookie belongs to no user.
func (c *Cookie) Anonymous() bool {
	return c.UserID == ""
}

// CookieStore keeps cookie records in BadgerDB with a sliding TTL.
type CookieStore struct {
	db       *store.DB
	lifetime time.Duration
}

// NewCookieStore creates a cookie store. Records expire lifetime after their
// last use; a non-positive lifetime disables expiry.
func NewCookieStore(db *store.DB, lifetime time.Duration) *CookieStore {
	return &CookieStore{db: db, lifetime: lifetime}
}

// Create stores a new cookie for userID ("" for anonymous).
func (s *CookieStore) Create(ctx context.Context, userID string, details *models.PlatformDetails, deviceToken string) (*Cookie, error) {
	now := time.Now().UnixMilli()
	c := &Cookie{
		ID:              uuid.NewString(),
		UserID:          userID,
		PlatformDetails: details,
		DeviceToken:     deviceToken,
		CreationTime:    now,
		LastUsed:        now,
	}
	if details != nil {
		c.Platform = details.Platform
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return store.SetJSONWithTTL(txn, cookieKeyPrefix+c.ID, c, s.lifetime)
	})
	if err != nil {
		return nil, fmt.Errorf("create cookie: %w", err)
	}
	return c, nil
}

// Get retrieves a cookie by ID.
func (s *CookieStore) Get(ctx context.Context, id string) (*Cookie, error) {
	var c Cookie
	err := s.db.View(func(txn *badger.Txn) error {
		return store.GetJSON(txn, cookieKeyPrefix+id, &c)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCookieNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cookie: %w", err)
	}
	return &c, nil
}

// Delete removes a cookie. Deleting a missing cookie is not an error.
func (s *CookieStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return store.Delete(txn, cookieKeyPrefix+id)
	})
}

// update applies fn to a stored cookie and rewrites it with a fresh TTL.
func (s *CookieStore) update(id string, fn func(c *Cookie)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var c Cookie
		if err := store.GetJSON(txn, cookieKeyPrefix+id, &c); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrCookieNotFound
			}
			return err
		}
		fn(&c)
		return store.SetJSONWithTTL(txn, cookieKeyPrefix+id, &c, s.lifetime)
	})
}

// Extend marks the cookie used now and pushes its expiry forward.
func (s *CookieStore) Extend(ctx context.Context, id string) error {
	now := time.Now().UnixMilli()
	return s.update(id, func(c *Cookie) { c.LastUsed = now })
}

// SetPlatform records the client's platform.
func (s *CookieStore) SetPlatform(ctx context.Context, id string, platform models.Platform) error {
	return s.update(id, func(c *Cookie) { c.Platform = platform })
}

// SetPlatformDetails records the client's platform details.
func (s *CookieStore) SetPlatformDetails(ctx context.Context, id string, details models.PlatformDetails) error {
	return s.update(id, func(c *Cookie) {
		c.Platform = details.Platform
		c.PlatformDetails = &details
	})
}

// SetDeviceToken records the client's push device token.
func (s *CookieStore) SetDeviceToken(ctx context.Context, id string, token string) error {
	return s.update(id, func(c *Cookie) { c.DeviceToken = token })
}
