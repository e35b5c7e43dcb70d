// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package testinfra

import (
	"context"
	"testing"

	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/store"
)

// OpenStore opens an in-memory store closed at test cleanup.
func OpenStore(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Seeder is the write side of the snapshot repository.
type Seeder interface {
	PutUser(ctx context.Context, u models.User) error
	PutThread(ctx context.Context, t models.Thread) error
	PutEntry(ctx context.Context, e models.EntryInfo) error
}

// World is the fixture SeedWorld writes.
//
// Alice and Bob share "general"; only Alice is in "private"; Carol is in
// neither. Entries fall in January 2026.
type World struct {
	Alice, Bob, Carol models.User
	General, Private  models.Thread
	Entries           []models.EntryInfo
}

// Query returns a calendar query covering January 2026 without deleted entries.
func (w *World) Query() models.CalendarQuery {
	return models.CalendarQuery{
		StartDate: "2026-01-01",
		EndDate:   "2026-01-31",
		Filters:   []models.CalendarFilter{{Type: models.FilterNotDeleted}},
	}
}

// SeedWorld writes the fixture world through s.
func SeedWorld(t testing.TB, s Seeder) *World {
	t.Helper()
	ctx := context.Background()

	w := &World{
		Alice: models.User{ID: "u-alice", Username: "alice", Email: "alice@example.com", EmailVerified: true},
		Bob:   models.User{ID: "u-bob", Username: "bob"},
		Carol: models.User{ID: "u-carol", Username: "carol"},
	}
	w.General = models.Thread{
		ID:           "t-general",
		Name:         "general",
		Color:        "a0b1c2",
		CreationTime: 1000,
		Members: []models.Membership{
			{UserID: w.Alice.ID, Role: models.RoleAdmin, Subscribed: true},
			{UserID: w.Bob.ID, Role: models.RoleMember, Subscribed: true},
		},
	}
	w.Private = models.Thread{
		ID:           "t-private",
		Name:         "notes",
		Color:        "ffffff",
		CreationTime: 2000,
		Members:      []models.Membership{{UserID: w.Alice.ID, Role: models.RoleAdmin}},
	}
	w.Entries = []models.EntryInfo{
		{ID: "e-1", ThreadID: w.General.ID, Text: "standup", Year: 2026, Month: 1, Day: 5, CreationTime: 3000, CreatorID: w.Alice.ID},
		{ID: "e-2", ThreadID: w.Private.ID, Text: "dentist", Year: 2026, Month: 1, Day: 20, CreationTime: 3100, CreatorID: w.Alice.ID},
		{ID: "e-3", ThreadID: w.General.ID, Text: "cancelled", Year: 2026, Month: 1, Day: 9, CreationTime: 3200, CreatorID: w.Bob.ID, Deleted: true},
		{ID: "e-4", ThreadID: w.General.ID, Text: "retro", Year: 2026, Month: 2, Day: 3, CreationTime: 3300, CreatorID: w.Bob.ID},
	}

	for _, u := range []models.User{w.Alice, w.Bob, w.Carol} {
		if err := s.PutUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	for _, th := range []models.Thread{w.General, w.Private} {
		if err := s.PutThread(ctx, th); err != nil {
			t.Fatalf("seed thread %s: %v", th.ID, err)
		}
	}
	for _, e := range w.Entries {
		if err := s.PutEntry(ctx, e); err != nil {
			t.Fatalf("seed entry %s: %v", e.ID, err)
		}
	}
	return w
}
