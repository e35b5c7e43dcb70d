// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"context"
	"time"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/messages"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/pubsub"
	"github.com/tomtom215/threadsync/internal/responses"
	"github.com/tomtom215/threadsync/internal/session"
	"github.com/tomtom215/threadsync/internal/updates"
)

// Authenticator resolves and replaces socket identities.
type Authenticator interface {
	FetchViewerForSocket(ctx context.Context, headerToken string, ident auth.Identification) (*auth.Viewer, error)
	CreateAnonymousViewer(ctx context.Context, details *models.PlatformDetails, deviceToken string, source auth.CookieSource) (*auth.Viewer, error)
	DeleteCookie(ctx context.Context, cookieID string) error
	ExtendCookieLifespan(ctx context.Context, cookieID string) error
}

// SessionManager continues, starts and commits sessions.
type SessionManager interface {
	InitializeOrContinue(ctx context.Context, viewer *auth.Viewer, query models.CalendarQuery, watermark int64) (*session.Initialization, error)
	Start(ctx context.Context, viewer *auth.Viewer, query models.CalendarQuery, watermark int64) error
	Commit(ctx context.Context, viewer *auth.Viewer, u session.Update) error
}

// ResponseProcessor handles client responses and drives consistency checks.
type ResponseProcessor interface {
	Process(ctx context.Context, viewer *auth.Viewer, clientResponses []protocol.ClientResponse) (*responses.Result, error)
	CheckState(ctx context.Context, viewer *auth.Viewer, status protocol.StateCheckStatus, query models.CalendarQuery) (*responses.CheckResult, error)
	CheckFrequency() time.Duration
}

// MessageFetcher reads the message log.
type MessageFetcher interface {
	FetchSince(ctx context.Context, viewer *auth.Viewer, criteria messages.Criteria, watermark int64, perThreadLimit int) (*messages.Result, error)
	Hydrate(ctx context.Context, msgs []models.RawMessageInfo) ([]models.UserInfo, error)
}

// UpdateFetcher reads and hydrates the update log.
type UpdateFetcher interface {
	FetchSince(ctx context.Context, viewer *auth.Viewer, watermark int64, query models.CalendarQuery) (*updates.Result, error)
	Hydrate(ctx context.Context, viewer *auth.Viewer, raws []models.RawUpdate, query models.CalendarQuery) (*updates.Result, error)
}

// UpdatePruner drops session-targeted updates a client has acknowledged.
type UpdatePruner interface {
	DeleteBefore(ctx context.Context, userID, sessionID string, before int64) (int, error)
}

// ActivityTracker keeps thread focus bookkeeping.
type ActivityTracker interface {
	Apply(ctx context.Context, viewer *auth.Viewer, batch []models.ActivityUpdate) (models.ActivityUpdateResult, error)
	UpdateActivityTime(ctx context.Context, viewer *auth.Viewer) error
	DeleteForViewerSession(ctx context.Context, viewer *auth.Viewer) error
}

// Snapshots supplies the full-sync payload.
type Snapshots interface {
	User(ctx context.Context, id string) (*models.User, error)
	UserInfos(ctx context.Context, ids []string) ([]models.UserInfo, error)
	ThreadInfos(ctx context.Context, viewerID string) (map[string]models.ThreadInfo, error)
	Entries(ctx context.Context, viewerID string, queries ...models.CalendarQuery) ([]models.EntryInfo, error)
	MemberUserInfos(ctx context.Context, threads map[string]models.ThreadInfo) ([]models.UserInfo, error)
}

// Subscriber attaches a connection to the pub/sub bridge.
type Subscriber interface {
	Subscribe(ctx context.Context, userID, sessionID string, handle pubsub.Handler) (*pubsub.Subscription, error)
}

// Deps are the collaborators a connection calls into.
type Deps struct {
	Auth      Authenticator
	Sessions  SessionManager
	Responses ResponseProcessor
	Messages  MessageFetcher
	Updates   UpdateFetcher
	UpdateLog UpdatePruner
	Activity  ActivityTracker
	Snapshots Snapshots
	Bridge    Subscriber
	Versions  auth.VersionPolicy
}

// Config tunes connection timing and limits.
type Config struct {
	// LivenessTimeout closes a connection that sends nothing for this long.
	LivenessTimeout time.Duration
	// ActivityQuietPeriod is how long after the last client message
	// activity counts as recent. Consistency checks wait for quiet.
	ActivityQuietPeriod time.Duration
	// ActivityRefreshInterval is how often a connected socket refreshes its
	// focused-thread rows.
	ActivityRefreshInterval time.Duration
	// PerThreadLimit caps messages per thread in INITIAL.
	PerThreadLimit int
	// RateLimit is the sustained inbound message rate per connection.
	RateLimit float64
	RateBurst int
	// CleanupTimeout bounds the work done after a connection closes.
	CleanupTimeout time.Duration
	// Now is the clock used to schedule consistency checks.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LivenessTimeout:         60 * time.Second,
		ActivityQuietPeriod:     3 * time.Second,
		ActivityRefreshInterval: time.Minute,
		PerThreadLimit:          models.DefaultNumberPerThread,
		RateLimit:               20,
		RateBurst:               40,
		CleanupTimeout:          5 * time.Second,
		Now:                     time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = d.LivenessTimeout
	}
	if c.ActivityQuietPeriod <= 0 {
		c.ActivityQuietPeriod = d.ActivityQuietPeriod
	}
	if c.ActivityRefreshInterval <= 0 {
		c.ActivityRefreshInterval = d.ActivityRefreshInterval
	}
	if c.PerThreadLimit <= 0 {
		c.PerThreadLimit = d.PerThreadLimit
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = d.CleanupTimeout
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}
