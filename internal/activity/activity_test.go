// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package activity_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/threadsync/internal/activity"
	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/messages"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/state"
	"github.com/tomtom215/threadsync/internal/store"
	"github.com/tomtom215/threadsync/internal/testinfra"
	"github.com/tomtom215/threadsync/internal/updates"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type nopPublisher struct{}

func (nopPublisher) PublishUpdates(context.Context, string, []models.RawUpdate, string) error {
	return nil
}

func (nopPublisher) PublishMessages(context.Context, string, []models.RawMessageInfo) error {
	return nil
}

type fixture struct {
	world   *testinfra.World
	repo    *state.Repository
	svc     *activity.Service
	msgs    *messages.Writer
	updates *updates.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testinfra.OpenStore(t)
	repo := state.NewRepository(db)
	world := testinfra.SeedWorld(t, repo)
	clock := store.NewClockFrom(func() time.Time { return time.UnixMilli(1_000) })
	msgLog := messages.NewLog(db)
	updLog := updates.NewLog(db, 0)
	return &fixture{
		world:   world,
		repo:    repo,
		svc:     activity.NewService(db, repo, msgLog, updates.NewWriter(updLog, nopPublisher{}, clock), 0),
		msgs:    messages.NewWriter(msgLog, repo, nopPublisher{}, clock),
		updates: updLog,
	}
}

func (f *fixture) viewer(u models.User, sessionID string) *auth.Viewer {
	return &auth.Viewer{UserID: u.ID, LoggedIn: true, SessionID: sessionID}
}

func (f *fixture) unread(t *testing.T, threadID, userID string) bool {
	t.Helper()
	th, err := f.repo.Thread(context.Background(), threadID)
	if err != nil {
		t.Fatal(err)
	}
	m, _ := th.Member(userID)
	return m.Unread
}

func (f *fixture) post(t *testing.T, creator string) models.RawMessageInfo {
	t.Helper()
	out, err := f.msgs.Create(context.Background(), []models.RawMessageInfo{
		{ThreadID: f.world.General.ID, CreatorID: creator, Text: "x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return out[0]
}

func TestApply_UnfocusMarksUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.viewer(f.world.Alice, "s1")
	seen := f.post(t, f.world.Alice.ID)
	f.post(t, f.world.Bob.ID)

	if _, err := f.svc.Apply(ctx, alice, []models.ActivityUpdate{{Focus: true, ThreadID: f.world.General.ID}}); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Apply(ctx, alice, []models.ActivityUpdate{
		{Focus: false, ThreadID: f.world.General.ID, LatestMessage: seen.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.UnfocusedToUnread) != 1 || res.UnfocusedToUnread[0] != f.world.General.ID {
		t.Fatalf("UnfocusedToUnread = %v", res.UnfocusedToUnread)
	}
	if !f.unread(t, f.world.General.ID, f.world.Alice.ID) {
		t.Error("thread not marked unread")
	}

	// Other sessions learn about it; the acting session does not need to.
	raws, err := f.updates.Since(ctx, f.world.Alice.ID, "s2", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 1 || raws[0].Type != models.UpdateThreadReadStatus || !raws[0].Unread {
		t.Errorf("read status updates = %+v", raws)
	}
}

func TestApply_UnfocusWithoutNewerMessages(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.world.Bob.ID)
	latest := f.post(t, f.world.Alice.ID)

	res, err := f.svc.Apply(context.Background(), f.viewer(f.world.Alice, "s1"), []models.ActivityUpdate{
		{Focus: false, ThreadID: f.world.General.ID, LatestMessage: latest.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.UnfocusedToUnread) != 0 {
		t.Errorf("UnfocusedToUnread = %v, want none", res.UnfocusedToUnread)
	}
}

func TestApply_FocusedInAnotherSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seen := f.post(t, f.world.Alice.ID)
	f.post(t, f.world.Bob.ID)

	if _, err := f.svc.Apply(ctx, f.viewer(f.world.Alice, "s2"), []models.ActivityUpdate{{Focus: true, ThreadID: f.world.General.ID}}); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Apply(ctx, f.viewer(f.world.Alice, "s1"), []models.ActivityUpdate{
		{Focus: false, ThreadID: f.world.General.ID, LatestMessage: seen.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.UnfocusedToUnread) != 0 {
		t.Errorf("thread focused in s2 was marked unread")
	}
}

func TestApply_FocusClearsUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.world.General
	th.Members = append([]models.Membership(nil), th.Members...)
	th.Members[1].Unread = true
	if err := f.repo.PutThread(ctx, th); err != nil {
		t.Fatal(err)
	}

	bob := f.viewer(f.world.Bob, "s1")
	if _, err := f.svc.Apply(ctx, bob, []models.ActivityUpdate{{Focus: true, ThreadID: th.ID}}); err != nil {
		t.Fatal(err)
	}
	if f.unread(t, th.ID, f.world.Bob.ID) {
		t.Error("focus did not clear unread")
	}
	ids, err := f.svc.FocusedThreadIDs(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != th.ID {
		t.Errorf("FocusedThreadIDs() = %v", ids)
	}
}

func TestApply_IgnoresForeignThreads(t *testing.T) {
	f := newFixture(t)
	carol := f.viewer(f.world.Carol, "s1")
	res, err := f.svc.Apply(context.Background(), carol, []models.ActivityUpdate{
		{Focus: true, ThreadID: f.world.General.ID},
		{Focus: true, ThreadID: "t-missing"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.UnfocusedToUnread) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	ids, _ := f.svc.FocusedThreadIDs(context.Background(), carol)
	if len(ids) != 0 {
		t.Errorf("focus recorded for non-member: %v", ids)
	}
}

func TestDeleteForViewerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.viewer(f.world.Alice, "s1")
	s2 := f.viewer(f.world.Alice, "s2")
	focus := []models.ActivityUpdate{
		{Focus: true, ThreadID: f.world.General.ID},
		{Focus: true, ThreadID: f.world.Private.ID},
	}
	for _, v := range []*auth.Viewer{s1, s2} {
		if _, err := f.svc.Apply(ctx, v, focus); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.svc.UpdateActivityTime(ctx, s1); err != nil {
		t.Fatalf("UpdateActivityTime() error = %v", err)
	}
	if err := f.svc.DeleteForViewerSession(ctx, s1); err != nil {
		t.Fatalf("DeleteForViewerSession() error = %v", err)
	}

	left, _ := f.svc.FocusedThreadIDs(ctx, s1)
	kept, _ := f.svc.FocusedThreadIDs(ctx, s2)
	if len(left) != 0 || len(kept) != 2 {
		t.Errorf("after delete: s1=%v s2=%v", left, kept)
	}
}
