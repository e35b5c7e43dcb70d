// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package messages

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/store"
)

const (
	messageKeyPrefix   = "message:"
	messageIDKeyPrefix = "message_id:"
)

// ErrMessageNotFound is returned for unknown message IDs.
var ErrMessageNotFound = errors.New("message not found")

// Log stores messages per thread in time order.
type Log struct {
	db *store.DB
}

// NewLog returns a Log over db.
func NewLog(db *store.DB) *Log {
	return &Log{db: db}
}

func threadPrefix(threadID string) string {
	return messageKeyPrefix + threadID + ":"
}

func messageKey(m *models.RawMessageInfo) string {
	return threadPrefix(m.ThreadID) + store.TimeKey(m.Time) + ":" + m.ID
}

// Append stores messages, which must already carry IDs and times.
func (l *Log) Append(ctx context.Context, msgs []models.RawMessageInfo) error {
	return l.db.Update(func(txn *badger.Txn) error {
		for i := range msgs {
			m := &msgs[i]
			if m.ID == "" || m.ThreadID == "" {
				return fmt.Errorf("message %d: id and thread are required", i)
			}
			key := messageKey(m)
			if err := store.SetJSON(txn, key, m); err != nil {
				return err
			}
			if err := txn.Set([]byte(messageIDKeyPrefix+m.ID), []byte(key)); err != nil {
				return fmt.Errorf("index message %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

// Get returns one message by ID.
func (l *Log) Get(ctx context.Context, id string) (*models.RawMessageInfo, error) {
	var m models.RawMessageInfo
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(messageIDKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		err = store.GetJSON(txn, string(key), &m)
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Window returns up to limit messages of threadID newer than after,
// newest-first, and whether older qualifying messages were left out.
func (l *Log) Window(ctx context.Context, threadID string, after int64, limit int) ([]models.RawMessageInfo, bool, error) {
	out := make([]models.RawMessageInfo, 0)
	truncated := false
	err := l.db.View(func(txn *badger.Txn) error {
		return store.ScanPrefixReverse(txn, threadPrefix(threadID), func(_ string, val []byte) error {
			var m models.RawMessageInfo
			if err := json.Unmarshal(val, &m); err != nil {
				return err
			}
			if m.Time <= after {
				return store.ErrStopScan
			}
			if len(out) == limit {
				truncated = true
				return store.ErrStopScan
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return out, truncated, nil
}
