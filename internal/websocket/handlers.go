// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/messages"
	"github.com/tomtom215/threadsync/internal/metrics"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/pubsub"
	"github.com/tomtom215/threadsync/internal/responses"
	"github.com/tomtom215/threadsync/internal/session"
	"github.com/tomtom215/threadsync/internal/updates"
)

// handleFrame runs one inbound frame through the full pipeline.
func (c *Conn) handleFrame(data []byte) {
	c.arm(timerLiveness, c.cfg.LivenessTimeout)
	start := time.Now()

	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		var responseTo *int
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			responseTo = de.ID
		}
		c.log.Debug().Err(err).Msg("rejected malformed frame")
		metrics.RecordSocketError(protocol.ErrMsgInvalidParameters)
		c.markActivityOccurred()
		c.send(&protocol.ErrorMessage{ResponseTo: responseTo, Message: protocol.ErrMsgInvalidParameters})
		return
	}

	typ := msg.MessageType().String()
	metrics.RecordMessageReceived(typ)
	defer func() { metrics.RecordHandle(typ, time.Since(start)) }()

	if !c.limiter.Allow() {
		c.handleError(msg, protocol.NewServerError(protocol.ErrMsgRateLimited))
		return
	}

	replies, err := c.process(msg)
	if err != nil {
		c.handleError(msg, err)
		return
	}
	c.send(replies...)
	if msg.MessageType() == protocol.ClientInitial {
		c.onConnected()
	}
}

// process authenticates msg and runs its handler.
func (c *Conn) process(msg protocol.ClientMessage) ([]protocol.ServerMessage, error) {
	if initial, ok := msg.(*protocol.InitialMessage); ok {
		if c.viewer != nil {
			return nil, protocol.NewServerError(protocol.ErrMsgAlreadyInitialized)
		}
		c.state = stateAuthenticating
		ident := initial.Payload.SessionIdentification
		viewer, err := c.deps.Auth.FetchViewerForSocket(c.ctx, c.info.HeaderToken, auth.Identification{
			Cookie:    ident.Cookie,
			SessionID: ident.SessionID,
		})
		if err != nil {
			c.state = stateUninitialized
			return nil, err
		}
		if viewer == nil {
			return nil, protocol.NewServerError(protocol.ErrMsgDeauthorized)
		}
		c.setViewer(viewer)
	}

	viewer := c.viewer
	if viewer == nil {
		return nil, protocol.NewServerError(protocol.ErrMsgUninitialized)
	}
	if viewer.SessionChanged() {
		return nil, protocol.NewServerError(protocol.ErrMsgDeauthorized)
	}
	if !viewer.LoggedIn {
		return nil, protocol.NewServerError(protocol.ErrMsgNotLoggedIn)
	}
	if err := c.deps.Versions.Check(viewer, protocol.ReportedPlatformDetails(msg)); err != nil {
		return nil, err
	}
	if err := c.ensureSubscribed(); err != nil {
		return nil, err
	}

	if msg.MessageType() != protocol.ClientPing {
		c.markActivityOccurred()
	}
	replies, err := c.handle(msg)
	if viewer.SessionChanged() {
		return nil, protocol.NewServerError(protocol.ErrMsgSessionMutated)
	}
	if err != nil {
		return nil, err
	}
	if err := c.ensureSubscribed(); err != nil {
		return nil, err
	}

	cookieID := viewer.CookieID
	go func() {
		if err := c.deps.Auth.ExtendCookieLifespan(c.ctx, cookieID); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Msg("failed to extend cookie lifespan")
		}
	}()
	return replies, nil
}

func (c *Conn) handle(msg protocol.ClientMessage) ([]protocol.ServerMessage, error) {
	switch m := msg.(type) {
	case *protocol.InitialMessage:
		return c.handleInitial(m)
	case *protocol.ResponsesMessage:
		return c.handleResponses(m)
	case *protocol.ActivityUpdatesMessage:
		return c.handleActivityUpdates(m)
	case *protocol.PingMessage:
		return []protocol.ServerMessage{&protocol.PongMessage{ResponseTo: m.ID}}, nil
	case *protocol.AckUpdatesMessage:
		return c.handleAckUpdates(m)
	default:
		return nil, protocol.NewServerError(protocol.ErrMsgInvalidParameters)
	}
}

func (c *Conn) setViewer(v *auth.Viewer) {
	c.viewer = v
	if v == nil {
		c.userID.Store("")
		c.log = logging.WithConnection(c.info.ID, "", "")
		return
	}
	c.userID.Store(v.UserID)
	c.log = logging.WithConnection(c.info.ID, v.UserID, v.SessionID)
}

// ensureSubscribed attaches the connection to its bridge topics, moving the
// subscription when the viewer's session ID changed. Viewers without a
// session ID yet are subscribed once one is assigned.
func (c *Conn) ensureSubscribed() error {
	v := c.viewer
	if v == nil || !v.LoggedIn || v.SessionID == "" {
		return nil
	}
	if c.sub != nil && c.subSessionID == v.SessionID {
		return nil
	}
	sub, err := c.deps.Bridge.Subscribe(c.ctx, v.UserID, v.SessionID, c.enqueuePush)
	if err != nil {
		return err
	}
	if c.sub != nil {
		c.sub.Close()
	}
	c.sub = sub
	c.subSessionID = v.SessionID
	c.log = logging.WithConnection(c.info.ID, v.UserID, v.SessionID)
	return nil
}

// handleError reports err for msg and closes the socket when err is an
// authorization failure.
func (c *Conn) handleError(msg protocol.ClientMessage, err error) {
	responseTo := msg.RequestID()
	initialFailed := msg.MessageType() == protocol.ClientInitial && c.state == stateAuthenticating

	var se *protocol.ServerError
	if !errors.As(err, &se) {
		c.log.Warn().Err(err).Str("type", msg.MessageType().String()).Msg("socket message failed")
		metrics.RecordSocketError(protocol.ErrMsgUnknown)
		if initialFailed {
			c.resetAfterFailedInitial()
		}
		c.markActivityOccurred()
		c.send(&protocol.ErrorMessage{ResponseTo: protocol.ResponseTo(responseTo), Message: err.Error()})
		return
	}

	metrics.RecordSocketError(se.Message)
	switch se.Message {
	case protocol.ErrMsgDeauthorized:
		c.security.LogDeauthorized(c.info.ID, c.info.RemoteAddr)
		authErr := &protocol.AuthErrorMessage{ResponseTo: responseTo, Message: se.Message}
		if c.viewer != nil {
			authErr.SessionChange = &protocol.SessionChange{
				Cookie:          c.viewer.CookiePairString,
				CurrentUserInfo: c.viewer.AnonymousInfo(),
			}
			c.security.LogCookieReplaced(c.info.ID, "", c.viewer.CookieID, c.info.RemoteAddr)
		}
		c.send(authErr)
		c.closeWith(protocol.CloseDeauthorized, se.Message)

	case protocol.ErrMsgClientVersionUnsupported:
		c.send(c.versionRejection(responseTo, se))
		c.closeWith(protocol.CloseClientVersionUnsupported, se.Message)

	case protocol.ErrMsgNotLoggedIn:
		c.security.LogNotLoggedIn(c.info.ID, c.viewerCookieID())
		c.send(&protocol.ErrorMessage{ResponseTo: protocol.ResponseTo(responseTo), Message: se.Message})
		c.closeWith(protocol.CloseNotLoggedIn, se.Message)

	case protocol.ErrMsgSessionMutated:
		if c.viewer != nil {
			c.security.LogSessionMutated(c.info.ID, c.viewer.UserID, c.viewer.SessionID)
		}
		c.send(&protocol.ErrorMessage{ResponseTo: protocol.ResponseTo(responseTo), Message: se.Message})
		c.closeWith(protocol.CloseSessionMutated, se.Message)

	default:
		c.log.Debug().Str("error", se.Message).Str("type", msg.MessageType().String()).Msg("socket message rejected")
		if initialFailed {
			c.resetAfterFailedInitial()
		}
		c.markActivityOccurred()
		c.send(&protocol.ErrorMessage{ResponseTo: protocol.ResponseTo(responseTo), Message: se.Message})
	}
}

// versionRejection deletes the outdated cookie and, for header clients,
// mints an anonymous replacement carrying the reported platform details.
func (c *Conn) versionRejection(responseTo int, se *protocol.ServerError) *protocol.AuthErrorMessage {
	authErr := &protocol.AuthErrorMessage{ResponseTo: responseTo, Message: se.Message}
	v := c.viewer
	if v == nil {
		return authErr
	}
	codeVersion := 0
	platform := string(v.Platform)
	if se.PlatformDetails != nil {
		codeVersion = se.PlatformDetails.CodeVersion
		platform = string(se.PlatformDetails.Platform)
	}
	c.security.LogVersionRejected(c.info.ID, v.UserID, platform, codeVersion)

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.CleanupTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.deps.Auth.DeleteCookie(gctx, v.CookieID)
	})
	var anon *auth.Viewer
	if v.CookieSource != auth.CookieSourceBody {
		g.Go(func() error {
			var err error
			anon, err = c.deps.Auth.CreateAnonymousViewer(gctx, se.PlatformDetails, v.DeviceToken, v.CookieSource)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Warn().Err(err).Msg("failed to replace outdated cookie")
	}
	if anon != nil {
		authErr.SessionChange = &protocol.SessionChange{
			Cookie:          anon.CookiePairString,
			CurrentUserInfo: anon.AnonymousInfo(),
		}
		c.security.LogCookieReplaced(c.info.ID, v.CookieID, anon.CookieID, c.info.RemoteAddr)
	}
	return authErr
}

func (c *Conn) viewerCookieID() string {
	if c.viewer == nil {
		return ""
	}
	return c.viewer.CookieID
}

// resetAfterFailedInitial lets the client retry INITIAL on the same socket.
func (c *Conn) resetAfterFailedInitial() {
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
		c.subSessionID = ""
	}
	c.setViewer(nil)
	c.state = stateUninitialized
}

func (c *Conn) handleInitial(msg *protocol.InitialMessage) ([]protocol.ServerMessage, error) {
	ctx := c.ctx
	viewer := c.viewer
	st := msg.Payload.SessionState
	query := st.CalendarQuery

	init, err := c.deps.Sessions.InitializeOrContinue(ctx, viewer, query, st.UpdatesCurrentAsOf)
	if errors.Is(err, session.ErrSessionInvalid) {
		c.log.Debug().Err(err).Msg("client session cannot be continued")
		init, err = &session.Initialization{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !init.Continued {
		if err := c.deps.Sessions.Start(ctx, viewer, query, st.UpdatesCurrentAsOf); err != nil {
			return nil, err
		}
	}

	cursors := make(map[string]string, len(st.WatchedIDs))
	for _, id := range st.WatchedIDs {
		cursors[id] = ""
	}
	criteria := messages.Criteria{ThreadCursors: cursors, JoinedThreads: true}

	var (
		fetched   *messages.Result
		processed *responses.Result
	)
	clientResponses := protocol.ClientResponses(msg)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fetched, err = c.deps.Messages.FetchSince(gctx, viewer, criteria, st.MessagesCurrentAsOf, c.cfg.PerThreadLimit)
		return err
	})
	g.Go(func() error {
		var err error
		processed, err = c.deps.Responses.Process(gctx, viewer, clientResponses)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	messagesResult := fetched.MessagesResult()
	messagesResult.CurrentAsOf = models.MostRecentMessageTimestamp(fetched.RawMessageInfos, st.MessagesCurrentAsOf)

	var payload protocol.StateSyncPayload
	if init.Continued {
		payload, err = c.incrementalSync(ctx, init, st, messagesResult, fetched.UserInfos)
		metrics.StateSyncs.WithLabelValues("incremental").Inc()
	} else {
		payload, err = c.fullSync(ctx, st, messagesResult, fetched.UserInfos)
		metrics.StateSyncs.WithLabelValues("full").Inc()
	}
	if err != nil {
		return nil, err
	}

	out := make([]protocol.ServerMessage, 0, 3)
	if processed.ActivityUpdateResult != nil {
		out = append(out, &protocol.ActivityUpdateResponseMessage{Payload: *processed.ActivityUpdateResult})
	}
	reqs := protocol.FilterRequests(processed.ServerRequests,
		protocol.RequestDeviceToken, protocol.RequestInitialActivityUpdates)
	if len(reqs) > 0 || len(clientResponses) > 0 {
		out = append(out, &protocol.RequestsMessage{Payload: protocol.RequestsPayload{ServerRequests: reqs}})
	}
	out = append(out, &protocol.StateSyncMessage{ResponseTo: msg.ID, Payload: payload})
	return out, nil
}

func (c *Conn) fullSync(ctx context.Context, st protocol.SessionState, messagesResult models.MessagesResult, messageUsers []models.UserInfo) (protocol.StateSyncPayload, error) {
	viewer := c.viewer
	var (
		threads      map[string]models.ThreadInfo
		entries      []models.EntryInfo
		user         *models.User
		knownUser    []models.UserInfo
		entryCreator []models.UserInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if threads, err = c.deps.Snapshots.ThreadInfos(gctx, viewer.UserID); err != nil {
			return err
		}
		knownUser, err = c.deps.Snapshots.MemberUserInfos(gctx, threads)
		return err
	})
	g.Go(func() error {
		var err error
		if entries, err = c.deps.Snapshots.Entries(gctx, viewer.UserID, st.CalendarQuery); err != nil {
			return err
		}
		creators := make([]string, 0, len(entries))
		for i := range entries {
			creators = append(creators, entries[i].CreatorID)
		}
		entryCreator, err = c.deps.Snapshots.UserInfos(gctx, creators)
		return err
	})
	g.Go(func() error {
		var err error
		user, err = c.deps.Snapshots.User(gctx, viewer.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.EntryInfo{}
	}

	payload := protocol.FullStateSync{
		MessagesResult:     messagesResult,
		ThreadInfos:        threads,
		CurrentUserInfo:    user.CurrentInfo(),
		RawEntryInfos:      entries,
		UserInfos:          mergeUserInfos(messageUsers, knownUser, entryCreator),
		UpdatesCurrentAsOf: st.UpdatesCurrentAsOf,
	}
	if viewer.SessionChanged() {
		// The new session ID travels in the payload, so the change is delivered.
		payload.SessionID = viewer.SessionID
		viewer.ClearSessionChanged()
	}
	return payload, nil
}

func (c *Conn) incrementalSync(ctx context.Context, init *session.Initialization, st protocol.SessionState, messagesResult models.MessagesResult, messageUsers []models.UserInfo) (protocol.StateSyncPayload, error) {
	viewer := c.viewer
	var fetched *updates.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.deps.Activity.UpdateActivityTime(gctx, viewer)
	})
	g.Go(func() error {
		_, err := c.deps.UpdateLog.DeleteBefore(gctx, viewer.UserID, viewer.SessionID, st.UpdatesCurrentAsOf)
		return err
	})
	g.Go(func() error {
		var err error
		fetched, err = c.deps.Updates.FetchSince(gctx, viewer, st.UpdatesCurrentAsOf, st.CalendarQuery)
		return err
	})
	if !init.Update.Empty() {
		g.Go(func() error {
			return c.deps.Sessions.Commit(gctx, viewer, init.Update)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	delta := init.DeltaEntries
	if delta == nil {
		delta = []models.EntryInfo{}
	}
	return protocol.IncrementalStateSync{
		MessagesResult:  messagesResult,
		UpdatesResult:   fetched.UpdatesResult(),
		DeltaEntryInfos: delta,
		UserInfos:       mergeUserInfos(messageUsers, fetched.UserInfos),
	}, nil
}

func (c *Conn) handleResponses(msg *protocol.ResponsesMessage) ([]protocol.ServerMessage, error) {
	viewer := c.viewer
	res, err := c.deps.Responses.Process(c.ctx, viewer, msg.Payload.ClientResponses)
	if err != nil {
		return nil, err
	}

	reqs := make(protocol.ServerRequestList, 0, 1)
	if status := res.StateCheckStatus; status != nil && status.Status != protocol.StateCheck {
		query := models.CalendarQuery{}
		if viewer.HasSessionInfo() {
			query = viewer.SessionInfo.CalendarQuery
		}
		check, err := c.deps.Responses.CheckState(c.ctx, viewer, *status, query)
		if err != nil {
			return nil, err
		}
		if !check.SessionUpdate.Empty() {
			if err := c.deps.Sessions.Commit(c.ctx, viewer, check.SessionUpdate); err != nil {
				return nil, err
			}
			c.setStateCheckOngoing(false)
		}
		if check.CheckStateRequest != nil {
			reqs = append(reqs, check.CheckStateRequest)
		}
	}
	return []protocol.ServerMessage{&protocol.RequestsMessage{
		ResponseTo: protocol.ResponseTo(msg.ID),
		Payload:    protocol.RequestsPayload{ServerRequests: reqs},
	}}, nil
}

func (c *Conn) handleActivityUpdates(msg *protocol.ActivityUpdatesMessage) ([]protocol.ServerMessage, error) {
	result, err := c.deps.Activity.Apply(c.ctx, c.viewer, msg.Payload.ActivityUpdates)
	if err != nil {
		return nil, err
	}
	return []protocol.ServerMessage{&protocol.ActivityUpdateResponseMessage{
		ResponseTo: protocol.ResponseTo(msg.ID),
		Payload:    result,
	}}, nil
}

func (c *Conn) handleAckUpdates(msg *protocol.AckUpdatesMessage) ([]protocol.ServerMessage, error) {
	viewer := c.viewer
	currentAsOf := msg.Payload.CurrentAsOf
	if _, err := c.deps.UpdateLog.DeleteBefore(c.ctx, viewer.UserID, viewer.SessionID, currentAsOf); err != nil {
		return nil, err
	}
	if err := c.deps.Sessions.Commit(c.ctx, viewer, session.Update{LastUpdate: &currentAsOf}); err != nil {
		return nil, err
	}
	return []protocol.ServerMessage{&protocol.RequestsMessage{
		ResponseTo: protocol.ResponseTo(msg.ID),
		Payload:    protocol.RequestsPayload{ServerRequests: protocol.ServerRequestList{}},
	}}, nil
}

// handlePush forwards one bridge event to the client.
func (c *Conn) handlePush(ev *pubsub.Event) {
	if ev.Type == pubsub.EventStartSubscription {
		c.log.Info().Str("instance_id", ev.InstanceID).Msg("session taken over by a newer socket")
		c.terminate()
		return
	}
	if c.state != stateConnected || c.viewer == nil {
		return
	}

	switch ev.Type {
	case pubsub.EventNewUpdates:
		query := models.CalendarQuery{}
		if c.viewer.HasSessionInfo() {
			query = c.viewer.SessionInfo.CalendarQuery
		}
		res, err := c.deps.Updates.Hydrate(c.ctx, c.viewer, ev.Updates, query)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to hydrate pushed updates")
			return
		}
		if len(res.Updates) == 0 {
			c.log.Debug().Int("raw", len(ev.Updates)).Msg("pushed updates hydrated to nothing")
			return
		}
		c.markActivityOccurred()
		c.send(&protocol.UpdatesMessage{Payload: protocol.UpdatesPayload{
			UpdatesResult: models.UpdatesResult{
				NewUpdates:  res.Updates,
				CurrentAsOf: models.MostRecentUpdateTimestamp(res.Updates, 0),
			},
			UserInfos: nonNilUsers(res.UserInfos),
		}})

	case pubsub.EventNewMessages:
		if len(ev.Messages) == 0 {
			c.log.Debug().Msg("empty message push")
			return
		}
		users, err := c.deps.Messages.Hydrate(c.ctx, ev.Messages)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to hydrate pushed messages")
			return
		}
		statuses := make(map[string]models.TruncationStatus)
		for i := range ev.Messages {
			statuses[ev.Messages[i].ThreadID] = models.TruncationUnchanged
		}
		c.markActivityOccurred()
		c.send(&protocol.MessagesMessage{Payload: protocol.MessagesPayload{
			MessagesResult: models.MessagesResult{
				RawMessageInfos:    ev.Messages,
				TruncationStatuses: statuses,
				CurrentAsOf:        models.MostRecentMessageTimestamp(ev.Messages, 0),
			},
			UserInfos: nonNilUsers(users),
		}})
	}
}

// mergeUserInfos concatenates lists, keeping the first info per user ID.
func mergeUserInfos(lists ...[]models.UserInfo) []models.UserInfo {
	seen := make(map[string]struct{})
	out := make([]models.UserInfo, 0)
	for _, list := range lists {
		for _, u := range list {
			if _, ok := seen[u.ID]; ok {
				continue
			}
			seen[u.ID] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

func nonNilUsers(users []models.UserInfo) []models.UserInfo {
	if users == nil {
		return []models.UserInfo{}
	}
	return users
}
