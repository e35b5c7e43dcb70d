// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/store"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewAuthenticator(newTestSigner(t), NewCookieStore(db, time.Hour), "threadsync")
}

func TestFetchViewerForSocket_HeaderCookie(t *testing.T) {
	a := newTestAuthenticator(t)
	ctx := context.Background()

	issued, err := a.IssueUserCookie(ctx, "u1", &models.PlatformDetails{Platform: models.PlatformWeb})
	if err != nil {
		t.Fatal(err)
	}

	viewer, err := a.FetchViewerForSocket(ctx, a.Token(issued), Identification{})
	if err != nil {
		t.Fatalf("FetchViewerForSocket() error = %v", err)
	}
	if viewer == nil || !viewer.LoggedIn || viewer.UserID != "u1" {
		t.Fatalf("viewer = %+v", viewer)
	}
	if viewer.CookieSource != CookieSourceHeader {
		t.Errorf("source = %v, want header", viewer.CookieSource)
	}
	if viewer.SessionID != viewer.CookieID {
		t.Errorf("header viewer session id = %q, want cookie id %q", viewer.SessionID, viewer.CookieID)
	}
	if viewer.SessionChanged() {
		t.Error("valid cookie must not flag a session change")
	}
}

func TestFetchViewerForSocket_InvalidHeaderCookie(t *testing.T) {
	a := newTestAuthenticator(t)
	viewer, err := a.FetchViewerForSocket(context.Background(), "bogus", Identification{})
	if err != nil {
		t.Fatalf("FetchViewerForSocket() error = %v", err)
	}
	if viewer != nil {
		t.Errorf("header client with bad cookie got viewer %+v", viewer)
	}
}

func TestFetchViewerForSocket_BodyCookie(t *testing.T) {
	a := newTestAuthenticator(t)
	ctx := context.Background()

	issued, err := a.IssueUserCookie(ctx, "u1", nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("valid pair string", func(t *testing.T) {
		viewer, err := a.FetchViewerForSocket(ctx, "", Identification{Cookie: issued.CookiePairString, SessionID: "s9"})
		if err != nil {
			t.Fatal(err)
		}
		if viewer.CookieSource != CookieSourceBody || viewer.SessionID != "s9" || !viewer.LoggedIn {
			t.Errorf("viewer = %+v", viewer)
		}
	})

	t.Run("deleted cookie is replaced", func(t *testing.T) {
		if err := a.DeleteCookie(ctx, issued.CookieID); err != nil {
			t.Fatal(err)
		}
		viewer, err := a.FetchViewerForSocket(ctx, "", Identification{Cookie: issued.CookiePairString})
		if err != nil {
			t.Fatal(err)
		}
		if viewer.LoggedIn || !viewer.SessionChanged() {
			t.Errorf("replacement viewer = %+v", viewer)
		}
		if viewer.CookieID == issued.CookieID {
			t.Error("replacement reused the deleted cookie")
		}
		if info := viewer.AnonymousInfo(); !info.Anonymous || info.ID != viewer.CookieID {
			t.Errorf("AnonymousInfo() = %+v", info)
		}
	})
}

func TestHeaderToken(t *testing.T) {
	a := newTestAuthenticator(t)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if got := a.HeaderToken(r); got != "" {
		t.Errorf("no cookie: got %q", got)
	}
	r.AddCookie(&http.Cookie{Name: "threadsync", Value: "tok"})
	if got := a.HeaderToken(r); got != "tok" {
		t.Errorf("HeaderToken() = %q", got)
	}
}

func TestCookieStore_Updates(t *testing.T) {
	a := newTestAuthenticator(t)
	ctx := context.Background()
	cookies := a.Cookies()

	c, err := cookies.Create(ctx, "u1", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	details := models.PlatformDetails{Platform: models.PlatformAndroid, CodeVersion: 30}
	if err := cookies.SetPlatformDetails(ctx, c.ID, details); err != nil {
		t.Fatal(err)
	}
	if err := cookies.SetDeviceToken(ctx, c.ID, "dev"); err != nil {
		t.Fatal(err)
	}
	if err := cookies.Extend(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	got, err := cookies.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Platform != models.PlatformAndroid || got.PlatformDetails.CodeVersion != 30 || got.DeviceToken != "dev" {
		t.Errorf("cookie = %+v", got)
	}

	if err := cookies.SetPlatform(ctx, "missing", models.PlatformIOS); !errors.Is(err, ErrCookieNotFound) {
		t.Errorf("SetPlatform(missing) error = %v", err)
	}
}

func TestVersionPolicy_Check(t *testing.T) {
	policy := VersionPolicy{MinCodeVersion: map[models.Platform]int{models.PlatformIOS: 10}}

	tests := []struct {
		name     string
		stored   *models.PlatformDetails
		reported *models.PlatformDetails
		wantErr  bool
	}{
		{"no details", nil, nil, false},
		{"web has no minimum", nil, &models.PlatformDetails{Platform: models.PlatformWeb}, false},
		{"new enough", nil, &models.PlatformDetails{Platform: models.PlatformIOS, CodeVersion: 10}, false},
		{"too old", nil, &models.PlatformDetails{Platform: models.PlatformIOS, CodeVersion: 9}, true},
		{"stored details used", &models.PlatformDetails{Platform: models.PlatformIOS, CodeVersion: 3}, nil, true},
		{"reported overrides stored", &models.PlatformDetails{Platform: models.PlatformIOS, CodeVersion: 3},
			&models.PlatformDetails{Platform: models.PlatformIOS, CodeVersion: 11}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(&Viewer{PlatformDetails: tt.stored}, tt.reported)
			if !tt.wantErr {
				if err != nil {
					t.Errorf("Check() error = %v", err)
				}
				return
			}
			var serverErr *protocol.ServerError
			if !errors.As(err, &serverErr) || serverErr.Message != protocol.ErrMsgClientVersionUnsupported {
				t.Fatalf("Check() error = %v, want client_version_unsupported", err)
			}
			if serverErr.PlatformDetails == nil {
				t.Error("missing platform details on version error")
			}
		})
	}
}
