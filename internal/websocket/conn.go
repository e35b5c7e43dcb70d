// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/metrics"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/pubsub"
)

// Transport carries frames for one connection.
type Transport interface {
	// Send queues frames for writing, in order.
	Send(frames [][]byte) error
	// Close sends a close frame with code and reason, then closes.
	Close(code int, reason string)
	// Terminate drops the connection without a close handshake.
	Terminate()
}

// ConnInfo describes the upgrade request a connection came from.
type ConnInfo struct {
	ID          string
	RemoteAddr  string
	HeaderToken string
}

type connState int

const (
	stateUninitialized connState = iota
	stateAuthenticating
	stateConnected
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateAuthenticating:
		return "authenticating"
	case stateConnected:
		return "connected"
	case stateClosing:
		return "closing"
	default:
		return "closed"
	}
}

type timerKind int

const (
	timerLiveness timerKind = iota
	timerActivityQuiet
	timerStateCheck
	timerActivityRefresh
	numTimers
)

type eventKind int

const (
	evFrame eventKind = iota
	evTimer
	evTransportClosed
	evShutdown
	evScheduleCheck
)

type event struct {
	kind  eventKind
	data  []byte
	timer timerKind
	gen   uint64
	code  int
}

type timerHandle struct {
	t   *time.Timer
	gen uint64
}

// Conn is the sync protocol state machine of one socket. A single goroutine
// (Run) owns every field below the mailbox; other goroutines talk to it only
// by posting events.
type Conn struct {
	info      ConnInfo
	cfg       Config
	deps      Deps
	transport Transport
	security  *logging.SecurityLogger

	events chan event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	pushMu     sync.Mutex
	pushes     []*pubsub.Event
	pushSignal chan struct{}

	userID  atomic.Value
	onClose []func()

	state                    connState
	viewer                   *auth.Viewer
	sub                      *pubsub.Subscription
	subSessionID             string
	limiter                  *rate.Limiter
	timers                   [numTimers]*timerHandle
	timerGen                 uint64
	activityRecentlyOccurred bool
	stateCheckOngoing        bool
	log                      zerolog.Logger
}

// NewConn creates a connection in the uninitialized state. Call Run to start
// it.
func NewConn(info ConnInfo, transport Transport, deps Deps, cfg Config) *Conn {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		info:                     info,
		cfg:                      cfg,
		deps:                     deps,
		transport:                transport,
		security:                 logging.NewSecurityLogger(),
		events:                   make(chan event, 64),
		done:                     make(chan struct{}),
		ctx:                      ctx,
		cancel:                   cancel,
		pushSignal:               make(chan struct{}, 1),
		limiter:                  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		activityRecentlyOccurred: true,
		log:                      logging.WithConnection(info.ID, "", ""),
	}
	c.userID.Store("")
	return c
}

// ID returns the connection ID.
func (c *Conn) ID() string {
	return c.info.ID
}

// UserID returns the authenticated user, or "" before INITIAL succeeds.
func (c *Conn) UserID() string {
	return c.userID.Load().(string)
}

// Done is closed once the connection has fully shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// OnClose registers fn to run after cleanup. It must be called before Run.
func (c *Conn) OnClose(fn func()) {
	c.onClose = append(c.onClose, fn)
}

// Receive delivers one inbound frame. It blocks while the mailbox is full
// and returns immediately once the connection is done.
func (c *Conn) Receive(data []byte) {
	c.post(event{kind: evFrame, data: data})
}

// TransportClosed reports that the peer went away.
func (c *Conn) TransportClosed() {
	c.post(event{kind: evTransportClosed})
}

// Shutdown asks the connection to close with code.
func (c *Conn) Shutdown(code int) {
	c.post(event{kind: evShutdown, code: code})
}

// ScheduleStateCheck re-evaluates whether a consistency check should start.
func (c *Conn) ScheduleStateCheck() {
	c.post(event{kind: evScheduleCheck})
}

func (c *Conn) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// enqueuePush is the bridge handler. It never blocks so the bridge cannot
// stall on a busy connection.
func (c *Conn) enqueuePush(_ context.Context, ev *pubsub.Event) {
	c.pushMu.Lock()
	c.pushes = append(c.pushes, ev)
	c.pushMu.Unlock()
	select {
	case c.pushSignal <- struct{}{}:
	default:
	}
}

func (c *Conn) drainPushes() []*pubsub.Event {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	out := c.pushes
	c.pushes = nil
	return out
}

// Run processes events until the connection closes.
func (c *Conn) Run() {
	metrics.SocketConnections.Inc()
	defer c.finish()

	c.arm(timerLiveness, c.cfg.LivenessTimeout)
	for c.state < stateClosing {
		select {
		case ev := <-c.events:
			c.dispatch(ev)
		case <-c.pushSignal:
			for _, p := range c.drainPushes() {
				if c.state >= stateClosing {
					break
				}
				c.handlePush(p)
			}
		}
	}
}

func (c *Conn) dispatch(ev event) {
	switch ev.kind {
	case evFrame:
		c.handleFrame(ev.data)
	case evTimer:
		c.handleTimer(ev.timer, ev.gen)
	case evTransportClosed:
		c.log.Debug().Msg("peer closed socket")
		c.state = stateClosing
	case evShutdown:
		c.closeWith(ev.code, "server shutting down")
	case evScheduleCheck:
		c.stateCheckConditionsUpdated()
	}
}

func (c *Conn) finish() {
	c.state = stateClosed
	for k := timerKind(0); k < numTimers; k++ {
		c.disarm(k)
	}
	c.transport.Terminate()
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
	if c.viewer != nil && c.viewer.HasSessionInfo() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CleanupTimeout)
		if err := c.deps.Activity.DeleteForViewerSession(ctx, c.viewer); err != nil {
			c.log.Warn().Err(err).Msg("failed to delete activity for closed socket")
		}
		cancel()
	}
	c.cancel()
	close(c.done)
	metrics.SocketConnections.Dec()
	for _, fn := range c.onClose {
		fn()
	}
	c.log.Debug().Msg("socket closed")
}

// arm (re)starts a timer. Firings of earlier generations are ignored.
func (c *Conn) arm(kind timerKind, d time.Duration) {
	c.disarm(kind)
	c.timerGen++
	gen := c.timerGen
	c.timers[kind] = &timerHandle{
		gen: gen,
		t: time.AfterFunc(d, func() {
			c.post(event{kind: evTimer, timer: kind, gen: gen})
		}),
	}
}

func (c *Conn) disarm(kind timerKind) {
	if h := c.timers[kind]; h != nil {
		h.t.Stop()
		c.timers[kind] = nil
	}
}

func (c *Conn) handleTimer(kind timerKind, gen uint64) {
	h := c.timers[kind]
	if h == nil || h.gen != gen {
		return
	}
	c.timers[kind] = nil

	switch kind {
	case timerLiveness:
		c.log.Info().Dur("timeout", c.cfg.LivenessTimeout).Msg("socket timed out")
		c.terminate()
	case timerActivityQuiet:
		c.activityRecentlyOccurred = false
		c.stateCheckConditionsUpdated()
	case timerStateCheck:
		c.initiateStateCheck()
	case timerActivityRefresh:
		c.refreshActivity()
		c.arm(timerActivityRefresh, c.cfg.ActivityRefreshInterval)
	}
}

// send writes msgs in order. Sends after close are dropped.
func (c *Conn) send(msgs ...protocol.ServerMessage) {
	if c.state >= stateClosing || len(msgs) == 0 {
		return
	}
	frames := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		data, err := protocol.EncodeServerMessage(m)
		if err != nil {
			c.log.Error().Err(err).Str("type", m.MessageType().String()).Msg("failed to encode server message")
			continue
		}
		frames = append(frames, data)
		metrics.RecordMessageSent(m.MessageType().String())
	}
	if err := c.transport.Send(frames); err != nil {
		c.log.Warn().Err(err).Msg("failed to queue frames, dropping socket")
		c.terminate()
	}
}

func (c *Conn) closeWith(code int, reason string) {
	if c.state >= stateClosing {
		return
	}
	metrics.RecordSocketClose(code)
	c.transport.Close(code, reason)
	c.state = stateClosing
}

func (c *Conn) terminate() {
	if c.state >= stateClosing {
		return
	}
	c.transport.Terminate()
	c.state = stateClosing
}

// markActivityOccurred defers consistency checks until the client has been
// quiet for ActivityQuietPeriod.
func (c *Conn) markActivityOccurred() {
	c.activityRecentlyOccurred = true
	c.arm(timerActivityQuiet, c.cfg.ActivityQuietPeriod)
	c.stateCheckConditionsUpdated()
}

func (c *Conn) setStateCheckOngoing(ongoing bool) {
	c.stateCheckOngoing = ongoing
	c.stateCheckConditionsUpdated()
}

// stateCheckConditionsUpdated schedules, defers or starts a consistency
// check. A check only starts when activity has died down and none is in
// flight.
func (c *Conn) stateCheckConditionsUpdated() {
	if c.activityRecentlyOccurred || c.stateCheckOngoing {
		c.disarm(timerStateCheck)
		return
	}
	if c.timers[timerStateCheck] != nil {
		return
	}
	if c.state != stateConnected || c.viewer == nil || !c.viewer.HasSessionInfo() {
		return
	}
	due := c.viewer.SessionInfo.LastValidated + c.deps.Responses.CheckFrequency().Milliseconds()
	wait := time.Duration(due-c.cfg.Now().UnixMilli()) * time.Millisecond
	if wait <= 0 {
		c.initiateStateCheck()
		return
	}
	c.arm(timerStateCheck, wait)
}

func (c *Conn) initiateStateCheck() {
	if c.stateCheckOngoing || c.state != stateConnected {
		return
	}
	c.setStateCheckOngoing(true)

	res, err := c.deps.Responses.CheckState(c.ctx, c.viewer,
		protocol.StateCheckStatus{Status: protocol.StateCheck}, c.viewer.SessionInfo.CalendarQuery)
	if err != nil || res.CheckStateRequest == nil {
		c.log.Warn().Err(err).Msg("failed to start state check")
		c.stateCheckOngoing = false
		c.arm(timerStateCheck, c.deps.Responses.CheckFrequency())
		return
	}
	c.send(&protocol.RequestsMessage{
		Payload: protocol.RequestsPayload{ServerRequests: protocol.ServerRequestList{res.CheckStateRequest}},
	})
}

// refreshActivity keeps this session's focus rows alive. It runs in the
// background and only logs failures.
func (c *Conn) refreshActivity() {
	viewer := *c.viewer
	go func() {
		if err := c.deps.Activity.UpdateActivityTime(c.ctx, &viewer); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Msg("failed to refresh activity time")
		}
	}()
}

// onConnected starts housekeeping after a successful INITIAL.
func (c *Conn) onConnected() {
	c.state = stateConnected
	c.arm(timerActivityRefresh, c.cfg.ActivityRefreshInterval)
	c.stateCheckConditionsUpdated()
}
