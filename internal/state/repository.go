// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/store"
)

const (
	threadKeyPrefix = "thread:"
	entryKeyPrefix  = "entry:"
	userKeyPrefix   = "user:"
	memberKeyPrefix = "member:"
)

// ErrNotFound is returned when a thread, entry or user does not exist.
var ErrNotFound = errors.New("state: not found")

// Repository reads and writes snapshots in the shared store.
type Repository struct {
	db *store.DB
}

// NewRepository returns a Repository over db.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

func memberKey(userID, threadID string) string {
	return memberKeyPrefix + userID + ":" + threadID
}

// PutUser creates or replaces a user.
func (r *Repository) PutUser(ctx context.Context, u models.User) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return store.SetJSON(txn, userKeyPrefix+u.ID, u)
	})
}

// PutThread creates or replaces a thread and keeps the membership index in
// step with its member list.
func (r *Repository) PutThread(ctx context.Context, t models.Thread) error {
	return r.db.Update(func(txn *badger.Txn) error {
		var old models.Thread
		err := store.GetJSON(txn, threadKeyPrefix+t.ID, &old)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		for _, m := range old.Members {
			if !t.IsMember(m.UserID) {
				if err := store.Delete(txn, memberKey(m.UserID, t.ID)); err != nil {
					return err
				}
			}
		}
		for _, m := range t.Members {
			if err := txn.Set([]byte(memberKey(m.UserID, t.ID)), nil); err != nil {
				return fmt.Errorf("index member %s: %w", m.UserID, err)
			}
		}
		return store.SetJSON(txn, threadKeyPrefix+t.ID, t)
	})
}

// DeleteThread removes a thread and its membership index.
func (r *Repository) DeleteThread(ctx context.Context, id string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		var t models.Thread
		err := store.GetJSON(txn, threadKeyPrefix+id, &t)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, m := range t.Members {
			if err := store.Delete(txn, memberKey(m.UserID, id)); err != nil {
				return err
			}
		}
		return store.Delete(txn, threadKeyPrefix+id)
	})
}

// PutEntry creates or replaces a calendar entry.
func (r *Repository) PutEntry(ctx context.Context, e models.EntryInfo) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return store.SetJSON(txn, entryKeyPrefix+e.ID, e)
	})
}

// User returns one user.
func (r *Repository) User(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.db.View(func(txn *badger.Txn) error {
		return store.GetJSON(txn, userKeyPrefix+id, &u)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserInfos returns the public view of the given users, sorted by ID. Unknown
// IDs are skipped.
func (r *Repository) UserInfos(ctx context.Context, ids []string) ([]models.UserInfo, error) {
	seen := make(map[string]bool, len(ids))
	infos := make([]models.UserInfo, 0, len(ids))
	err := r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			var u models.User
			err := store.GetJSON(txn, userKeyPrefix+id, &u)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			infos = append(infos, u.Info())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Thread returns one stored thread.
func (r *Repository) Thread(ctx context.Context, id string) (*models.Thread, error) {
	var t models.Thread
	err := r.db.View(func(txn *badger.Txn) error {
		return store.GetJSON(txn, threadKeyPrefix+id, &t)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// JoinedThreadIDs returns the sorted IDs of threads userID belongs to.
func (r *Repository) JoinedThreadIDs(ctx context.Context, userID string) ([]string, error) {
	prefix := memberKeyPrefix + userID + ":"
	ids := make([]string, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		return store.ScanPrefix(txn, prefix, "", func(key string, _ []byte) error {
			ids = append(ids, strings.TrimPrefix(key, prefix))
			return nil
		})
	})
	return ids, err
}

// ThreadInfos returns every thread the viewer belongs to, projected for them.
func (r *Repository) ThreadInfos(ctx context.Context, viewerID string) (map[string]models.ThreadInfo, error) {
	ids, err := r.JoinedThreadIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	infos := make(map[string]models.ThreadInfo, len(ids))
	err = r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var t models.Thread
			err := store.GetJSON(txn, threadKeyPrefix+id, &t)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			infos[id] = t.InfoFor(viewerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// Entry returns one calendar entry.
func (r *Repository) Entry(ctx context.Context, id string) (*models.EntryInfo, error) {
	var e models.EntryInfo
	err := r.db.View(func(txn *badger.Txn) error {
		return store.GetJSON(txn, entryKeyPrefix+id, &e)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Entries returns the entries visible to viewerID that match any of the
// queries, sorted by ID. With no queries nothing is returned.
func (r *Repository) Entries(ctx context.Context, viewerID string, queries ...models.CalendarQuery) ([]models.EntryInfo, error) {
	entries := make([]models.EntryInfo, 0)
	if len(queries) == 0 {
		return entries, nil
	}
	joined, err := r.JoinedThreadIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	visible := make(map[string]bool, len(joined))
	for _, id := range joined {
		visible[id] = true
	}

	err = r.db.View(func(txn *badger.Txn) error {
		return store.ScanPrefix(txn, entryKeyPrefix, "", func(_ string, val []byte) error {
			var e models.EntryInfo
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			if !visible[e.ThreadID] {
				return nil
			}
			for i := range queries {
				if queries[i].Matches(&e) {
					entries = append(entries, e)
					break
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// MemberUserInfos returns every user sharing a thread with the viewer,
// including the viewer, sorted by ID.
func (r *Repository) MemberUserInfos(ctx context.Context, threads map[string]models.ThreadInfo) ([]models.UserInfo, error) {
	ids := make([]string, 0)
	for _, t := range threads {
		for _, m := range t.Members {
			ids = append(ids, m.ID)
		}
	}
	return r.UserInfos(ctx, ids)
}
