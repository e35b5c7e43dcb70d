// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/threadsync/internal/store"
)

// Key prefixes for BadgerDB storage
const (
	sessionKeyPrefix     = "session:"
	sessionUserKeyPrefix = "session_user:"
)

// BadgerStore implements Store on the shared BadgerDB. Records expire ttl
// after their last write; a non-positive ttl keeps them until deleted.
type BadgerStore struct {
	db  *store.DB
	ttl time.Duration
}

// NewBadgerStore creates a BadgerDB-backed session store.
func NewBadgerStore(db *store.DB, ttl time.Duration) *BadgerStore {
	return &BadgerStore{db: db, ttl: ttl}
}

func userIndexKey(userID, id string) string {
	return sessionUserKeyPrefix + userID + ":" + id
}

// Create stores a new session and its user index entry.
func (s *BadgerStore) Create(ctx context.Context, sess *Session) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := store.SetJSONWithTTL(txn, sessionKeyPrefix+sess.ID, sess, s.ttl); err != nil {
			return fmt.Errorf("set session: %w", err)
		}
		e := badger.NewEntry([]byte(userIndexKey(sess.UserID, sess.ID)), []byte(sess.ID))
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set user mapping: %w", err)
		}
		return nil
	})
}

// Get retrieves a session by ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.View(func(txn *badger.Txn) error {
		return store.GetJSON(txn, sessionKeyPrefix+id, &sess)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// maxConflictRetries bounds retries of a conflicting Update.
const maxConflictRetries = 3

// Update applies fn inside one transaction. On a write conflict with another
// connection the read-modify-write is retried against the newer record.
func (s *BadgerStore) Update(ctx context.Context, id string, fn func(sess *Session)) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			var sess Session
			if err := store.GetJSON(txn, sessionKeyPrefix+id, &sess); err != nil {
				return err
			}
			fn(&sess)
			return store.SetJSONWithTTL(txn, sessionKeyPrefix+id, &sess, s.ttl)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Delete removes a session and its index entry.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := store.Delete(txn, sessionKeyPrefix+id); err != nil {
			return err
		}
		return store.Delete(txn, userIndexKey(sess.UserID, id))
	})
}

// ListForUser returns the IDs of userID's live sessions.
func (s *BadgerStore) ListForUser(ctx context.Context, userID string) ([]string, error) {
	prefix := sessionUserKeyPrefix + userID + ":"
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		return store.ScanPrefix(txn, prefix, "", func(key string, _ []byte) error {
			ids = append(ids, strings.TrimPrefix(key, prefix))
			return nil
		})
	})
	return ids, err
}
