// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/threadsync/internal/activity"
	"github.com/tomtom215/threadsync/internal/api"
	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/config"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/messages"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/pubsub"
	"github.com/tomtom215/threadsync/internal/responses"
	"github.com/tomtom215/threadsync/internal/session"
	"github.com/tomtom215/threadsync/internal/state"
	"github.com/tomtom215/threadsync/internal/store"
	"github.com/tomtom215/threadsync/internal/updates"
	ws "github.com/tomtom215/threadsync/internal/websocket"
)

// components holds everything main wires together. The store, bridge and
// embedded NATS server outlive the supervisor tree and are released by close.
type components struct {
	db       *store.DB
	bridge   *pubsub.Bridge
	embedded *pubsub.EmbeddedServer
	hub      *ws.Hub
	server   *ws.Server
	handler  http.Handler
}

// versionPolicy builds the per-platform minimum code versions. Zero
// entries are left out so those platforms always pass.
func versionPolicy(cfg config.AuthConfig) auth.VersionPolicy {
	p := auth.VersionPolicy{MinCodeVersion: map[models.Platform]int{}}
	for platform, v := range map[models.Platform]int{
		models.PlatformIOS:     cfg.MinIOSVersion,
		models.PlatformAndroid: cfg.MinAndroidVersion,
		models.PlatformWeb:     cfg.MinWebVersion,
	} {
		if v > 0 {
			p.MinCodeVersion[platform] = v
		}
	}
	return p
}

func connConfig(cfg config.SyncConfig) ws.Config {
	c := ws.DefaultConfig()
	c.LivenessTimeout = cfg.LivenessTimeout
	c.ActivityQuietPeriod = cfg.ActivityQuietPeriod
	c.ActivityRefreshInterval = cfg.ActivityRefreshInterval
	c.PerThreadLimit = cfg.PerThreadLimit
	c.RateLimit = cfg.RateLimit
	c.RateBurst = cfg.RateBurst
	c.CleanupTimeout = cfg.CleanupTimeout
	return c
}

func openStore(cfg config.StoreConfig) (*store.DB, error) {
	return store.Open(store.Config{
		Path:           cfg.Path,
		InMemory:       cfg.InMemory,
		SyncWrites:     cfg.SyncWrites,
		GCInterval:     cfg.GCInterval,
		GCDiscardRatio: cfg.GCDiscardRatio,
	})
}

// buildComponents opens the store and bridge and assembles the socket
// server and HTTP router on top of them.
func buildComponents(cfg *config.Config) (*components, error) {
	db, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	c := &components{db: db}

	c.bridge, c.embedded, err = initPubSub(cfg.PubSub, cfg.Logging.Level == "trace")
	if err != nil {
		c.close(context.Background())
		return nil, err
	}

	signer, err := auth.NewCookieSigner(cfg.Auth.CookieSecret)
	if err != nil {
		c.close(context.Background())
		return nil, fmt.Errorf("cookie signer: %w", err)
	}
	cookies := auth.NewCookieStore(db, cfg.Auth.CookieLifetime)
	authn := auth.NewAuthenticator(signer, cookies, cfg.Auth.CookieName)

	repo := state.NewRepository(db)
	clock := store.NewClock()

	msgLog := messages.NewLog(db)
	msgFetcher := messages.NewFetcher(msgLog, repo)
	updLog := updates.NewLog(db, cfg.Sync.UpdateRetention)
	updFetcher := updates.NewFetcher(updLog, repo, msgFetcher)
	updWriter := updates.NewWriter(updLog, c.bridge, clock)
	act := activity.NewService(db, repo, msgLog, updWriter, cfg.Sync.ActivityTTL)
	proc := responses.NewProcessor(cookies, act, responses.NewLogReporter(), repo, cfg.Sync.StateCheckFrequency)

	deps := ws.Deps{
		Auth:      authn,
		Sessions:  session.NewManager(session.NewBadgerStore(db, cfg.Sync.SessionTTL), repo),
		Responses: proc,
		Messages:  msgFetcher,
		Updates:   updFetcher,
		UpdateLog: updLog,
		Activity:  act,
		Snapshots: repo,
		Bridge:    c.bridge,
		Versions:  versionPolicy(cfg.Auth),
	}

	c.hub = ws.NewHub()
	c.server = ws.NewServer(c.hub, deps, connConfig(cfg.Sync))

	handler := api.NewHandler(c.server, authn, c.bridge, db, cfg.Security)
	mw := api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg.Security))
	c.handler = api.NewRouter(handler, mw).SetupChi()

	return c, nil
}

// close releases resources in dependency order: the bridge first so no
// publish races a closed transport, then the embedded broker, then the store.
// It is safe to call on partially built components.
func (c *components) close(ctx context.Context) {
	var errs []error
	if c.bridge != nil {
		if err := c.bridge.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bridge: %w", err))
		}
		c.bridge = nil
	}
	if c.embedded != nil {
		if err := c.embedded.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown embedded NATS: %w", err))
		}
		c.embedded = nil
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		c.db = nil
	}
	if err := errors.Join(errs...); err != nil {
		logging.Error().Err(err).Msg("error releasing resources")
	}
}
