// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package updates

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/store"
)

const updateKeyPrefix = "update:"

// Log stores raw updates per user in time order.
type Log struct {
	db        *store.DB
	retention time.Duration
}

// NewLog returns a Log over db. Updates expire after retention; zero keeps
// them forever.
func NewLog(db *store.DB, retention time.Duration) *Log {
	return &Log{db: db, retention: retention}
}

func userPrefix(userID string) string {
	return updateKeyPrefix + userID + ":"
}

func updateKey(u *models.RawUpdate) string {
	return userPrefix(u.UserID) + store.TimeKey(u.Time) + ":" + u.ID
}

// Append stores updates, which must already carry IDs and times.
func (l *Log) Append(ctx context.Context, raws []models.RawUpdate) error {
	return l.db.Update(func(txn *badger.Txn) error {
		for i := range raws {
			u := &raws[i]
			if u.ID == "" || u.UserID == "" {
				return fmt.Errorf("update %d: id and user are required", i)
			}
			if err := store.SetJSONWithTTL(txn, updateKey(u), u, l.retention); err != nil {
				return err
			}
		}
		return nil
	})
}

// Since returns the updates of userID visible to sessionID with a time
// strictly after watermark, in (time, id) order.
func (l *Log) Since(ctx context.Context, userID, sessionID string, watermark int64) ([]models.RawUpdate, error) {
	out := make([]models.RawUpdate, 0)
	seen := make(map[string]bool)
	prefix := userPrefix(userID)
	err := l.db.View(func(txn *badger.Txn) error {
		return store.ScanPrefix(txn, prefix, prefix+store.TimeKey(watermark+1), func(_ string, val []byte) error {
			var u models.RawUpdate
			if err := json.Unmarshal(val, &u); err != nil {
				return err
			}
			if u.Time <= watermark || seen[u.ID] || !u.VisibleTo(sessionID) {
				return nil
			}
			seen[u.ID] = true
			out = append(out, u)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan updates for %s: %w", userID, err)
	}
	return out, nil
}

// DeleteBefore removes the updates of userID targeted at sessionID with a
// time at or before before, and reports how many were removed.
func (l *Log) DeleteBefore(ctx context.Context, userID, sessionID string, before int64) (int, error) {
	if sessionID == "" {
		return 0, nil
	}
	var keys []string
	prefix := userPrefix(userID)
	err := l.db.Update(func(txn *badger.Txn) error {
		err := store.ScanPrefix(txn, prefix, "", func(key string, val []byte) error {
			var u models.RawUpdate
			if err := json.Unmarshal(val, &u); err != nil {
				return err
			}
			if u.Time > before {
				return store.ErrStopScan
			}
			if u.TargetSessionID == sessionID {
				keys = append(keys, key)
			}
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
		return 0, fmt.Errorf("delete acknowledged updates for %s: %w", sessionID, err)
	}
	return len(keys), nil
}
