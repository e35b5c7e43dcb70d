// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/responses"
	"github.com/tomtom215/threadsync/internal/updates"
)

func TestConn_FreshHeaderClientGetsFullSync(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, v := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)

	sync := h.handshake(t, tc, 1, protocol.SessionIdentification{},
		protocol.SessionState{CalendarQuery: h.world.Query()})

	if sync.ResponseTo != 1 {
		t.Errorf("responseTo = %d, want 1", sync.ResponseTo)
	}
	full, ok := sync.Payload.(protocol.FullStateSync)
	if !ok {
		t.Fatalf("payload = %T, want FullStateSync", sync.Payload)
	}
	if full.SessionID != "" {
		t.Errorf("header client got sessionID %q; its session is keyed by cookie", full.SessionID)
	}
	if full.CurrentUserInfo.ID != h.world.Alice.ID {
		t.Errorf("currentUserInfo.id = %q, want %q", full.CurrentUserInfo.ID, h.world.Alice.ID)
	}
	if len(full.ThreadInfos) != 2 {
		t.Errorf("got %d thread infos, want 2", len(full.ThreadInfos))
	}
	ids := make(map[string]bool)
	for _, e := range full.RawEntryInfos {
		ids[e.ID] = true
	}
	if !ids["e-1"] || !ids["e-2"] || ids["e-3"] || ids["e-4"] {
		t.Errorf("entry ids = %v, want e-1 and e-2 only", ids)
	}
	if tc.conn.UserID() != h.world.Alice.ID {
		t.Errorf("UserID() = %q", tc.conn.UserID())
	}

	focused, err := h.activity.FocusedThreadIDs(context.Background(), &auth.Viewer{UserID: v.UserID, SessionID: v.CookieID})
	if err != nil {
		t.Fatalf("FocusedThreadIDs: %v", err)
	}
	if len(focused) != 0 {
		t.Errorf("fresh session has focus rows %v", focused)
	}
}

func TestConn_BodyClientReceivesSessionIDThenContinues(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	_, v := h.userToken(t, h.world.Alice.ID, webDetails)
	st := protocol.SessionState{CalendarQuery: h.world.Query()}

	first := h.connect(t, "c1", "")
	sync := h.handshake(t, first, 1, protocol.SessionIdentification{Cookie: v.CookiePairString}, st)
	full, ok := sync.Payload.(protocol.FullStateSync)
	if !ok {
		t.Fatalf("payload = %T, want FullStateSync", sync.Payload)
	}
	if full.SessionID == "" {
		t.Fatal("body client did not receive a session ID")
	}

	second := h.connect(t, "c2", "")
	sync = h.handshake(t, second, 1, protocol.SessionIdentification{
		Cookie:    v.CookiePairString,
		SessionID: full.SessionID,
	}, st)
	if _, ok := sync.Payload.(protocol.IncrementalStateSync); !ok {
		t.Fatalf("reconnect payload = %T, want IncrementalStateSync", sync.Payload)
	}
}

func TestConn_ReconnectIsIncremental(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	st := protocol.SessionState{CalendarQuery: h.world.Query()}

	first := h.connect(t, "c1", token)
	h.handshake(t, first, 1, protocol.SessionIdentification{}, st)
	first.conn.TransportClosed()
	<-first.conn.Done()

	msgs, err := h.msgWriter.Create(ctx, []models.RawMessageInfo{{
		ThreadID:  h.world.General.ID,
		CreatorID: h.world.Bob.ID,
		Type:      models.MessageText,
		Text:      "while you were away",
	}})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	upds, err := h.updWriter.Create(ctx, []models.RawUpdate{{
		Type:   models.UpdateThreadReadStatus,
		UserID: h.world.Alice.ID,
		Key:    h.world.General.ID,
		Unread: true,
	}}, updates.CreateOptions{})
	if err != nil {
		t.Fatalf("create update: %v", err)
	}

	// The client already holds everything the server has.
	st.MessagesCurrentAsOf = msgs[0].Time
	st.UpdatesCurrentAsOf = upds[0].Time

	second := h.connect(t, "c2", token)
	sync := h.handshake(t, second, 1, protocol.SessionIdentification{}, st)
	inc, ok := sync.Payload.(protocol.IncrementalStateSync)
	if !ok {
		t.Fatalf("payload = %T, want IncrementalStateSync", sync.Payload)
	}
	if inc.UpdatesResult.NewUpdates == nil || len(inc.UpdatesResult.NewUpdates) != 0 {
		t.Errorf("newUpdates = %#v, want empty list", inc.UpdatesResult.NewUpdates)
	}
	if inc.UpdatesResult.CurrentAsOf != st.UpdatesCurrentAsOf {
		t.Errorf("updates currentAsOf = %d, want %d", inc.UpdatesResult.CurrentAsOf, st.UpdatesCurrentAsOf)
	}
	if inc.MessagesResult.RawMessageInfos == nil || len(inc.MessagesResult.RawMessageInfos) != 0 {
		t.Errorf("rawMessageInfos = %#v, want empty list", inc.MessagesResult.RawMessageInfos)
	}
	if inc.MessagesResult.CurrentAsOf != st.MessagesCurrentAsOf {
		t.Errorf("messages currentAsOf = %d, want %d", inc.MessagesResult.CurrentAsOf, st.MessagesCurrentAsOf)
	}
	if len(inc.DeltaEntryInfos) != 0 {
		t.Errorf("unchanged query produced delta entries %v", inc.DeltaEntryInfos)
	}
}

func TestConn_FullSyncIncludesEntryCreators(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	guest := models.EntryInfo{
		ID: "e-guest", ThreadID: h.world.General.ID, Text: "guest talk",
		Year: 2026, Month: 1, Day: 14, CreationTime: 3400, CreatorID: h.world.Carol.ID,
	}
	if err := h.repo.PutEntry(context.Background(), guest); err != nil {
		t.Fatalf("PutEntry: %v", err)
	}
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)

	tc := h.connect(t, "c1", token)
	sync := h.handshake(t, tc, 1, protocol.SessionIdentification{},
		protocol.SessionState{CalendarQuery: h.world.Query()})
	full, ok := sync.Payload.(protocol.FullStateSync)
	if !ok {
		t.Fatalf("payload = %T, want FullStateSync", sync.Payload)
	}

	var entryFound bool
	for _, e := range full.RawEntryInfos {
		entryFound = entryFound || e.ID == guest.ID
	}
	if !entryFound {
		t.Fatalf("rawEntryInfos missing %s", guest.ID)
	}
	ids := make(map[string]bool)
	for _, u := range full.UserInfos {
		ids[u.ID] = true
	}
	if !ids[h.world.Carol.ID] {
		t.Errorf("userInfos %v missing entry creator %s", ids, h.world.Carol.ID)
	}
}

func TestConn_WidenedQueryCarriesDeltaEntries(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)

	first := h.connect(t, "c1", token)
	h.handshake(t, first, 1, protocol.SessionIdentification{},
		protocol.SessionState{CalendarQuery: h.world.Query()})
	first.conn.TransportClosed()
	<-first.conn.Done()

	wider := h.world.Query()
	wider.EndDate = "2026-02-28"
	second := h.connect(t, "c2", token)
	sync := h.handshake(t, second, 1, protocol.SessionIdentification{},
		protocol.SessionState{CalendarQuery: wider})
	inc, ok := sync.Payload.(protocol.IncrementalStateSync)
	if !ok {
		t.Fatalf("payload = %T, want IncrementalStateSync", sync.Payload)
	}
	if len(inc.DeltaEntryInfos) != 1 || inc.DeltaEntryInfos[0].ID != "e-4" {
		t.Errorf("delta = %+v, want only e-4", inc.DeltaEntryInfos)
	}
}

func TestConn_VersionUnsupportedHeaderClient(t *testing.T) {
	h := newHarness(t, harnessOptions{versions: auth.VersionPolicy{
		MinCodeVersion: map[models.Platform]int{models.PlatformWeb: 200},
	}})
	token, v := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)

	tc.send(t, initialMessage(4, protocol.SessionIdentification{},
		protocol.SessionState{CalendarQuery: h.world.Query()}))
	msg := tc.next(t)
	authErr, ok := msg.(*protocol.AuthErrorMessage)
	if !ok {
		t.Fatalf("got %T, want AuthErrorMessage", msg)
	}
	if authErr.ResponseTo != 4 || authErr.Message != protocol.ErrMsgClientVersionUnsupported {
		t.Errorf("auth error = %+v", authErr)
	}
	if authErr.SessionChange == nil || authErr.SessionChange.Cookie == "" {
		t.Fatal("header client did not receive a replacement cookie")
	}
	if !authErr.SessionChange.CurrentUserInfo.Anonymous {
		t.Error("replacement identity is not anonymous")
	}
	tc.expectClose(t, protocol.CloseClientVersionUnsupported)

	if _, err := h.authn.Cookies().Get(context.Background(), v.CookieID); !errors.Is(err, auth.ErrCookieNotFound) {
		t.Errorf("outdated cookie still present: err = %v", err)
	}
}

func TestConn_VersionUnsupportedBodyClientReportedDetails(t *testing.T) {
	h := newHarness(t, harnessOptions{versions: auth.VersionPolicy{
		MinCodeVersion: map[models.Platform]int{models.PlatformIOS: 50},
	}})
	_, v := h.userToken(t, h.world.Alice.ID, nil)
	tc := h.connect(t, "c1", "")

	tc.send(t, initialMessage(2,
		protocol.SessionIdentification{Cookie: v.CookiePairString},
		protocol.SessionState{CalendarQuery: h.world.Query()},
		&protocol.PlatformDetailsResponse{PlatformDetails: models.PlatformDetails{Platform: models.PlatformIOS, CodeVersion: 10}},
	))
	msg := tc.next(t)
	authErr, ok := msg.(*protocol.AuthErrorMessage)
	if !ok {
		t.Fatalf("got %T, want AuthErrorMessage", msg)
	}
	if authErr.Message != protocol.ErrMsgClientVersionUnsupported {
		t.Errorf("message = %q", authErr.Message)
	}
	if authErr.SessionChange != nil {
		t.Errorf("body client got a session change %+v", authErr.SessionChange)
	}
	tc.expectClose(t, protocol.CloseClientVersionUnsupported)
}

func TestConn_DuplicateInitialIsRejected(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)
	st := protocol.SessionState{CalendarQuery: h.world.Query()}
	h.handshake(t, tc, 1, protocol.SessionIdentification{}, st)

	tc.send(t, initialMessage(2, protocol.SessionIdentification{}, st))
	msg, _ := tc.until(t, protocol.ServerErrorType)
	errMsg := msg.(*protocol.ErrorMessage)
	if errMsg.Message != protocol.ErrMsgAlreadyInitialized {
		t.Errorf("message = %q", errMsg.Message)
	}
	if errMsg.ResponseTo == nil || *errMsg.ResponseTo != 2 {
		t.Errorf("responseTo = %v, want 2", errMsg.ResponseTo)
	}

	tc.send(t, &protocol.PingMessage{ID: 3})
	pong, _ := tc.until(t, protocol.ServerPong)
	if pong.(*protocol.PongMessage).ResponseTo != 3 {
		t.Error("connection unusable after duplicate INITIAL")
	}
}

func TestConn_RepliesCorrelateInOrder(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)
	h.handshake(t, tc, 1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()})

	tc.send(t, &protocol.PingMessage{ID: 11})
	tc.send(t, &protocol.AckUpdatesMessage{ID: 12, Payload: protocol.AckUpdatesPayload{CurrentAsOf: 0}})
	tc.send(t, &protocol.ActivityUpdatesMessage{ID: 13, Payload: protocol.ActivityUpdatesPayload{
		ActivityUpdates: []models.ActivityUpdate{{Focus: true, ThreadID: h.world.General.ID}},
	}})

	want := []struct {
		id  int
		typ protocol.ServerMessageType
	}{
		{11, protocol.ServerPong},
		{12, protocol.ServerRequests},
		{13, protocol.ServerActivityUpdateResponse},
	}
	for _, w := range want {
		var msg protocol.ServerMessage
		for {
			msg = tc.next(t)
			if _, ok := msg.CorrelationID(); ok {
				break
			}
		}
		id, _ := msg.CorrelationID()
		if id != w.id || msg.MessageType() != w.typ {
			t.Errorf("got %s for %d, want %s for %d", msg.MessageType(), id, w.typ, w.id)
		}
	}
}

func TestConn_PushedUpdatesArriveInOrder(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)
	h.handshake(t, tc, 1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()})

	ctx := context.Background()
	for _, unread := range []bool{true, false} {
		_, err := h.updWriter.Create(ctx, []models.RawUpdate{{
			Type:   models.UpdateThreadReadStatus,
			UserID: h.world.Alice.ID,
			Key:    h.world.General.ID,
			Unread: unread,
		}}, updates.CreateOptions{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	var last int64
	for i, want := range []bool{true, false} {
		msg, _ := tc.until(t, protocol.ServerUpdates)
		res := msg.(*protocol.UpdatesMessage).Payload.UpdatesResult
		if len(res.NewUpdates) != 1 {
			t.Fatalf("push %d carried %d updates", i, len(res.NewUpdates))
		}
		u := res.NewUpdates[0]
		if u.Unread == nil || *u.Unread != want {
			t.Errorf("push %d unread = %v, want %v", i, u.Unread, want)
		}
		if res.CurrentAsOf <= last {
			t.Errorf("push %d currentAsOf %d did not advance past %d", i, res.CurrentAsOf, last)
		}
		last = res.CurrentAsOf
	}
}

func TestConn_PushedMessages(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)
	h.handshake(t, tc, 1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()})

	created, err := h.msgWriter.Create(context.Background(), []models.RawMessageInfo{{
		ThreadID:  h.world.General.ID,
		CreatorID: h.world.Bob.ID,
		Type:      models.MessageText,
		Text:      "hello",
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	msg, _ := tc.until(t, protocol.ServerMessages)
	res := msg.(*protocol.MessagesMessage).Payload.MessagesResult
	if len(res.RawMessageInfos) != 1 || res.RawMessageInfos[0].ID != created[0].ID {
		t.Fatalf("pushed messages = %+v", res.RawMessageInfos)
	}
	if res.TruncationStatuses[h.world.General.ID] != models.TruncationUnchanged {
		t.Errorf("truncation status = %q", res.TruncationStatuses[h.world.General.ID])
	}
	if res.CurrentAsOf != created[0].Time {
		t.Errorf("currentAsOf = %d, want %d", res.CurrentAsOf, created[0].Time)
	}
}

func checkHarness(t *testing.T) (*harness, *testConn) {
	t.Helper()
	h := newHarness(t, harnessOptions{
		checkFrequency: time.Millisecond,
		cfg:            Config{ActivityQuietPeriod: 20 * time.Millisecond},
	})
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)
	h.handshake(t, tc, 1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()})
	return h, tc
}

// nextCheck waits for a server-initiated check request.
func nextCheck(t *testing.T, tc *testConn) *protocol.CheckStateRequest {
	t.Helper()
	msg, _ := tc.until(t, protocol.ServerRequests)
	req := msg.(*protocol.RequestsMessage)
	if req.ResponseTo != nil {
		t.Fatalf("check request answers %d; server-initiated checks are uncorrelated", *req.ResponseTo)
	}
	if len(req.Payload.ServerRequests) != 1 {
		t.Fatalf("got %d requests, want 1", len(req.Payload.ServerRequests))
	}
	check, ok := req.Payload.ServerRequests[0].(*protocol.CheckStateRequest)
	if !ok {
		t.Fatalf("request = %T, want CheckStateRequest", req.Payload.ServerRequests[0])
	}
	return check
}

func TestConn_AtMostOneStateCheckInFlight(t *testing.T) {
	_, tc := checkHarness(t)

	check := nextCheck(t, tc)
	for _, key := range []string{responses.KeyThreadInfos, responses.KeyEntryInfos, responses.KeyCurrentUserInfo, responses.KeyUserInfos} {
		if check.HashesToCheck[key] == "" {
			t.Errorf("missing hash for %s", key)
		}
	}

	for i := 0; i < 10; i++ {
		tc.conn.ScheduleStateCheck()
	}
	tc.expectSilence(t, 150*time.Millisecond)
}

func TestConn_ValidatedCheckAllowsTheNextOne(t *testing.T) {
	_, tc := checkHarness(t)
	check := nextCheck(t, tc)

	results := make(map[string]bool, len(check.HashesToCheck))
	for key := range check.HashesToCheck {
		results[key] = true
	}
	tc.send(t, &protocol.ResponsesMessage{ID: 7, Payload: protocol.ResponsesPayload{
		ClientResponses: protocol.ClientResponseList{&protocol.CheckStateResponse{HashResults: results}},
	}})

	msg, _ := tc.until(t, protocol.ServerRequests)
	reply := msg.(*protocol.RequestsMessage)
	if reply.ResponseTo == nil || *reply.ResponseTo != 7 {
		t.Fatalf("reply responseTo = %v, want 7", reply.ResponseTo)
	}
	if len(reply.Payload.ServerRequests) != 0 {
		t.Errorf("validated check produced requests %v", reply.Payload.ServerRequests)
	}

	nextCheck(t, tc)
}

func TestConn_MismatchedCheckGetsRepairRequest(t *testing.T) {
	_, tc := checkHarness(t)
	check := nextCheck(t, tc)

	results := make(map[string]bool, len(check.HashesToCheck))
	for key := range check.HashesToCheck {
		results[key] = key != responses.KeyThreadInfos
	}
	tc.send(t, &protocol.ResponsesMessage{ID: 8, Payload: protocol.ResponsesPayload{
		ClientResponses: protocol.ClientResponseList{&protocol.CheckStateResponse{HashResults: results}},
	}})

	msg, _ := tc.until(t, protocol.ServerRequests)
	reply := msg.(*protocol.RequestsMessage)
	if reply.ResponseTo == nil || *reply.ResponseTo != 8 {
		t.Fatalf("reply responseTo = %v, want 8", reply.ResponseTo)
	}
	if len(reply.Payload.ServerRequests) != 1 {
		t.Fatalf("got %d requests, want 1", len(reply.Payload.ServerRequests))
	}
	repair := reply.Payload.ServerRequests[0].(*protocol.CheckStateRequest)
	if !repair.FailUnmentioned[responses.KeyThreadInfos] {
		t.Error("repair request does not fail unmentioned threads")
	}
	if len(repair.HashesToCheck) != 2 {
		t.Errorf("got %d per-thread hashes, want 2", len(repair.HashesToCheck))
	}

	// The check is still unresolved, so no new one starts.
	tc.expectSilence(t, 150*time.Millisecond)
}

type blockingActivity struct {
	ActivityTracker
	entered chan struct{}
	release chan struct{}
}

func (b *blockingActivity) Apply(ctx context.Context, viewer *auth.Viewer, batch []models.ActivityUpdate) (models.ActivityUpdateResult, error) {
	close(b.entered)
	<-b.release
	return b.ActivityTracker.Apply(ctx, viewer, batch)
}

func TestConn_ShutdownWaitsForInFlightReply(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	blocker := &blockingActivity{
		ActivityTracker: h.activity,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	h.deps.Activity = blocker
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)
	h.handshake(t, tc, 1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()})

	tc.send(t, &protocol.ActivityUpdatesMessage{ID: 5, Payload: protocol.ActivityUpdatesPayload{
		ActivityUpdates: []models.ActivityUpdate{{Focus: true, ThreadID: h.world.General.ID}},
	}})
	select {
	case <-blocker.entered:
	case <-time.After(waitTimeout):
		t.Fatal("handler never ran")
	}
	tc.conn.Shutdown(gorilla.CloseGoingAway)
	close(blocker.release)

	tc.expectClose(t, gorilla.CloseGoingAway)
	var reply protocol.ServerMessage
	for len(tc.tr.frames) > 0 {
		msg, err := protocol.DecodeServerMessage(<-tc.tr.frames)
		if err != nil {
			t.Fatalf("DecodeServerMessage: %v", err)
		}
		if msg.MessageType() == protocol.ServerActivityUpdateResponse {
			reply = msg
		}
	}
	if reply == nil {
		t.Fatal("in-flight reply was not written before the close")
	}
	tc.expectTerminated(t)
}

func TestConn_RejectsBeforeInitial(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	tc := h.connect(t, "c1", "")

	tc.send(t, &protocol.PingMessage{ID: 1})
	msg := tc.next(t)
	errMsg, ok := msg.(*protocol.ErrorMessage)
	if !ok || errMsg.Message != protocol.ErrMsgUninitialized {
		t.Fatalf("got %+v, want socket_uninitialized", msg)
	}
	if errMsg.ResponseTo == nil || *errMsg.ResponseTo != 1 {
		t.Errorf("responseTo = %v, want 1", errMsg.ResponseTo)
	}
}

func TestConn_MalformedFrames(t *testing.T) {
	tests := []struct {
		name       string
		frame      string
		responseTo *int
	}{
		{name: "not json", frame: "nope"},
		{name: "unknown type keeps id", frame: `{"type":99,"id":7}`, responseTo: protocol.ResponseTo(7)},
		{name: "bad payload keeps id", frame: `{"type":4,"id":9,"payload":{"currentAsOf":-1}}`, responseTo: protocol.ResponseTo(9)},
	}
	h := newHarness(t, harnessOptions{})
	tc := h.connect(t, "c1", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc.conn.Receive([]byte(tt.frame))
			msg := tc.next(t)
			errMsg, ok := msg.(*protocol.ErrorMessage)
			if !ok || errMsg.Message != protocol.ErrMsgInvalidParameters {
				t.Fatalf("got %+v, want invalid_parameters", msg)
			}
			switch {
			case tt.responseTo == nil && errMsg.ResponseTo != nil:
				t.Errorf("responseTo = %d, want none", *errMsg.ResponseTo)
			case tt.responseTo != nil && (errMsg.ResponseTo == nil || *errMsg.ResponseTo != *tt.responseTo):
				t.Errorf("responseTo = %v, want %d", errMsg.ResponseTo, *tt.responseTo)
			}
		})
	}
}

func TestConn_Deauthorized(t *testing.T) {
	t.Run("invalid header cookie", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})
		tc := h.connect(t, "c1", "not-a-token")
		tc.send(t, initialMessage(1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()}))

		msg := tc.next(t)
		authErr, ok := msg.(*protocol.AuthErrorMessage)
		if !ok || authErr.Message != protocol.ErrMsgDeauthorized {
			t.Fatalf("got %+v, want socket_deauthorized", msg)
		}
		if authErr.SessionChange != nil {
			t.Error("header client got a session change")
		}
		tc.expectClose(t, protocol.CloseDeauthorized)
	})

	t.Run("invalid body cookie", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})
		tc := h.connect(t, "c1", "")
		tc.send(t, initialMessage(1, protocol.SessionIdentification{Cookie: "user=garbage"},
			protocol.SessionState{CalendarQuery: h.world.Query()}))

		msg := tc.next(t)
		authErr, ok := msg.(*protocol.AuthErrorMessage)
		if !ok || authErr.Message != protocol.ErrMsgDeauthorized {
			t.Fatalf("got %+v, want socket_deauthorized", msg)
		}
		if authErr.SessionChange == nil || authErr.SessionChange.Cookie == "" {
			t.Fatal("body client did not receive an anonymous replacement")
		}
		tc.expectClose(t, protocol.CloseDeauthorized)
	})
}

func TestConn_AnonymousViewerNotLoggedIn(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	anon, err := h.authn.CreateAnonymousViewer(context.Background(), webDetails, "", auth.CookieSourceHeader)
	if err != nil {
		t.Fatalf("CreateAnonymousViewer: %v", err)
	}
	tc := h.connect(t, "c1", h.authn.Token(anon))
	tc.send(t, initialMessage(1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()}))

	msg := tc.next(t)
	errMsg, ok := msg.(*protocol.ErrorMessage)
	if !ok || errMsg.Message != protocol.ErrMsgNotLoggedIn {
		t.Fatalf("got %+v, want not_logged_in", msg)
	}
	tc.expectClose(t, protocol.CloseNotLoggedIn)
}

func TestConn_SessionMutated(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, v := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)
	h.handshake(t, tc, 1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()})

	if err := h.sessStore.Delete(context.Background(), v.CookieID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	tc.send(t, &protocol.AckUpdatesMessage{ID: 3, Payload: protocol.AckUpdatesPayload{CurrentAsOf: 1}})

	msg, _ := tc.until(t, protocol.ServerErrorType)
	errMsg := msg.(*protocol.ErrorMessage)
	if errMsg.Message != protocol.ErrMsgSessionMutated {
		t.Errorf("message = %q", errMsg.Message)
	}
	if errMsg.ResponseTo == nil || *errMsg.ResponseTo != 3 {
		t.Errorf("responseTo = %v, want 3", errMsg.ResponseTo)
	}
	tc.expectClose(t, protocol.CloseSessionMutated)
}

func TestConn_NewerSocketTakesOverSession(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	st := protocol.SessionState{CalendarQuery: h.world.Query()}

	older := h.connect(t, "c1", token)
	h.handshake(t, older, 1, protocol.SessionIdentification{}, st)
	newer := h.connect(t, "c2", token)
	h.handshake(t, newer, 1, protocol.SessionIdentification{}, st)

	older.expectTerminated(t)
	select {
	case rec := <-older.tr.closes:
		t.Errorf("takeover sent close frame %d", rec.code)
	default:
	}

	newer.send(t, &protocol.PingMessage{ID: 2})
	if _, before := newer.until(t, protocol.ServerPong); len(before) != 0 {
		t.Errorf("unexpected frames before pong: %v", before)
	}
}

func TestConn_LivenessTimeout(t *testing.T) {
	h := newHarness(t, harnessOptions{cfg: Config{LivenessTimeout: 50 * time.Millisecond}})
	tc := h.connect(t, "c1", "")

	tc.expectTerminated(t)
	select {
	case <-tc.conn.Done():
	case <-time.After(waitTimeout):
		t.Fatal("connection did not finish after timing out")
	}
	select {
	case rec := <-tc.tr.closes:
		t.Errorf("timeout sent close frame %d", rec.code)
	default:
	}
}

func TestConn_RateLimited(t *testing.T) {
	h := newHarness(t, harnessOptions{cfg: Config{RateLimit: 1, RateBurst: 2}})
	tc := h.connect(t, "c1", "")

	for id := 1; id <= 3; id++ {
		tc.send(t, &protocol.PingMessage{ID: id})
	}
	want := []string{protocol.ErrMsgUninitialized, protocol.ErrMsgUninitialized, protocol.ErrMsgRateLimited}
	for i, w := range want {
		errMsg, ok := tc.next(t).(*protocol.ErrorMessage)
		if !ok || errMsg.Message != w {
			t.Fatalf("reply %d = %+v, want %s", i+1, errMsg, w)
		}
	}
}

func TestConn_CloseClearsFocusRows(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, v := h.userToken(t, h.world.Alice.ID, webDetails)
	tc := h.connect(t, "c1", token)
	h.handshake(t, tc, 1, protocol.SessionIdentification{}, protocol.SessionState{CalendarQuery: h.world.Query()})

	tc.send(t, &protocol.ActivityUpdatesMessage{ID: 2, Payload: protocol.ActivityUpdatesPayload{
		ActivityUpdates: []models.ActivityUpdate{{Focus: true, ThreadID: h.world.General.ID}},
	}})
	tc.until(t, protocol.ServerActivityUpdateResponse)

	ctx := context.Background()
	sessionViewer := &auth.Viewer{UserID: v.UserID, SessionID: v.CookieID}
	focused, err := h.activity.FocusedThreadIDs(ctx, sessionViewer)
	if err != nil {
		t.Fatalf("FocusedThreadIDs: %v", err)
	}
	if len(focused) != 1 || focused[0] != h.world.General.ID {
		t.Fatalf("focused = %v, want [%s]", focused, h.world.General.ID)
	}

	tc.conn.TransportClosed()
	<-tc.conn.Done()
	focused, err = h.activity.FocusedThreadIDs(ctx, sessionViewer)
	if err != nil {
		t.Fatalf("FocusedThreadIDs: %v", err)
	}
	if len(focused) != 0 {
		t.Errorf("focus rows survived close: %v", focused)
	}
}
