// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/threadsync/internal/activity"
	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/messages"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/pubsub"
	"github.com/tomtom215/threadsync/internal/responses"
	"github.com/tomtom215/threadsync/internal/session"
	"github.com/tomtom215/threadsync/internal/state"
	"github.com/tomtom215/threadsync/internal/store"
	"github.com/tomtom215/threadsync/internal/testinfra"
	"github.com/tomtom215/threadsync/internal/updates"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const (
	testCookieName   = "threadsync"
	testCookieSecret = "test-cookie-secret-that-is-long-enough-0123456789"
	waitTimeout      = 5 * time.Second
)

type harness struct {
	world     *testinfra.World
	repo      *state.Repository
	authn     *auth.Authenticator
	sessStore *session.BadgerStore
	updLog    *updates.Log
	updWriter *updates.Writer
	msgWriter *messages.Writer
	activity  *activity.Service
	bridge    *pubsub.Bridge
	deps      Deps
	cfg       Config
}

type harnessOptions struct {
	checkFrequency time.Duration
	cfg            Config
	versions       auth.VersionPolicy
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	db := testinfra.OpenStore(t)
	repo := state.NewRepository(db)
	world := testinfra.SeedWorld(t, repo)

	signer, err := auth.NewCookieSigner(testCookieSecret)
	if err != nil {
		t.Fatalf("NewCookieSigner: %v", err)
	}
	cookies := auth.NewCookieStore(db, 0)
	authn := auth.NewAuthenticator(signer, cookies, testCookieName)

	backend, err := pubsub.NewBackend(pubsub.DefaultConfig(), logging.NewWatermillLogger())
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	bridge := pubsub.NewBridge(backend, pubsub.DefaultBreakerConfig())
	t.Cleanup(func() { _ = bridge.Close() })

	clock := store.NewClock()
	msgLog := messages.NewLog(db)
	msgFetcher := messages.NewFetcher(msgLog, repo)
	updLog := updates.NewLog(db, time.Hour)
	updFetcher := updates.NewFetcher(updLog, repo, msgFetcher)
	updWriter := updates.NewWriter(updLog, bridge, clock)
	act := activity.NewService(db, repo, msgLog, updWriter, 0)
	proc := responses.NewProcessor(cookies, act, responses.NewLogReporter(), repo, opts.checkFrequency)
	sessStore := session.NewBadgerStore(db, 0)

	h := &harness{
		world:     world,
		repo:      repo,
		authn:     authn,
		sessStore: sessStore,
		updLog:    updLog,
		updWriter: updWriter,
		msgWriter: messages.NewWriter(msgLog, repo, bridge, clock),
		activity:  act,
		bridge:    bridge,
		cfg:       opts.cfg,
	}
	h.deps = Deps{
		Auth:      authn,
		Sessions:  session.NewManager(sessStore, repo),
		Responses: proc,
		Messages:  msgFetcher,
		Updates:   updFetcher,
		UpdateLog: updLog,
		Activity:  act,
		Snapshots: repo,
		Bridge:    bridge,
		Versions:  opts.versions,
	}
	return h
}

// userToken issues a cookie for userID and returns its bare token.
func (h *harness) userToken(t *testing.T, userID string, details *models.PlatformDetails) (string, *auth.Viewer) {
	t.Helper()
	v, err := h.authn.IssueUserCookie(context.Background(), userID, details)
	if err != nil {
		t.Fatalf("IssueUserCookie: %v", err)
	}
	return h.authn.Token(v), v
}

var webDetails = &models.PlatformDetails{Platform: models.PlatformWeb, CodeVersion: 100}

type closeRecord struct {
	code   int
	reason string
}

// fakeTransport records what a Conn writes.
type fakeTransport struct {
	frames     chan []byte
	closes     chan closeRecord
	terminated chan struct{}
	once       sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames:     make(chan []byte, 1024),
		closes:     make(chan closeRecord, 4),
		terminated: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(frames [][]byte) error {
	for _, fr := range frames {
		f.frames <- fr
	}
	return nil
}

func (f *fakeTransport) Close(code int, reason string) {
	f.closes <- closeRecord{code: code, reason: reason}
}

func (f *fakeTransport) Terminate() {
	f.once.Do(func() { close(f.terminated) })
}

type testConn struct {
	conn *Conn
	tr   *fakeTransport
}

// connect starts a Conn as if upgraded with the given header token.
func (h *harness) connect(t *testing.T, id, headerToken string) *testConn {
	t.Helper()
	tr := newFakeTransport()
	c := NewConn(ConnInfo{ID: id, RemoteAddr: "127.0.0.1:1", HeaderToken: headerToken}, tr, h.deps, h.cfg)
	go c.Run()
	t.Cleanup(func() {
		c.TransportClosed()
		select {
		case <-c.Done():
		case <-time.After(waitTimeout):
			t.Errorf("connection %s did not finish", id)
		}
	})
	return &testConn{conn: c, tr: tr}
}

func (tc *testConn) send(t *testing.T, msg protocol.ClientMessage) {
	t.Helper()
	data, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("EncodeClientMessage: %v", err)
	}
	tc.conn.Receive(data)
}

func (tc *testConn) next(t *testing.T) protocol.ServerMessage {
	t.Helper()
	select {
	case data := <-tc.tr.frames:
		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			t.Fatalf("DecodeServerMessage(%s): %v", data, err)
		}
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a server frame")
		return nil
	}
}

// until reads frames until one of type typ arrives, returning it and the
// frames read before it.
func (tc *testConn) until(t *testing.T, typ protocol.ServerMessageType) (protocol.ServerMessage, []protocol.ServerMessage) {
	t.Helper()
	var before []protocol.ServerMessage
	for {
		msg := tc.next(t)
		if msg.MessageType() == typ {
			return msg, before
		}
		before = append(before, msg)
	}
}

func (tc *testConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-tc.tr.frames:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(d):
	}
}

func (tc *testConn) expectClose(t *testing.T, code int) {
	t.Helper()
	select {
	case rec := <-tc.tr.closes:
		if rec.code != code {
			t.Fatalf("close code = %d (%s), want %d", rec.code, rec.reason, code)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for close %d", code)
	}
}

func (tc *testConn) expectTerminated(t *testing.T) {
	t.Helper()
	select {
	case <-tc.tr.terminated:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for terminate")
	}
}

func initialMessage(id int, ident protocol.SessionIdentification, st protocol.SessionState, resps ...protocol.ClientResponse) *protocol.InitialMessage {
	if st.WatchedIDs == nil {
		st.WatchedIDs = []string{}
	}
	return &protocol.InitialMessage{ID: id, Payload: protocol.InitialPayload{
		SessionIdentification: ident,
		SessionState:          st,
		ClientResponses:       protocol.ClientResponseList(resps),
	}}
}

// handshake sends INITIAL and returns the STATE_SYNC reply.
func (h *harness) handshake(t *testing.T, tc *testConn, id int, ident protocol.SessionIdentification, st protocol.SessionState) *protocol.StateSyncMessage {
	t.Helper()
	tc.send(t, initialMessage(id, ident, st))
	msg, _ := tc.until(t, protocol.ServerStateSync)
	return msg.(*protocol.StateSyncMessage)
}
