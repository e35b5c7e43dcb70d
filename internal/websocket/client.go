// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/threadsync/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
	sendBufferSize = 256
)

var (
	// ErrSendBufferFull is returned when a slow client cannot keep up.
	ErrSendBufferFull = errors.New("client send buffer full")
	// ErrClientClosed is returned for sends after the socket closed.
	ErrClientClosed = errors.New("client closed")
)

type outbound struct {
	data   []byte
	close  bool
	code   int
	reason string
}

// Receiver consumes what a Client reads.
type Receiver interface {
	Receive(data []byte)
	TransportClosed()
}

// Client pumps frames between a gorilla websocket and a Receiver. It
// implements Transport.
type Client struct {
	conn *websocket.Conn
	send chan outbound
	done chan struct{}

	mu      sync.Mutex
	closing bool
	once    sync.Once
}

// NewClient wraps an upgraded websocket.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan outbound, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Start runs the read and write pumps, delivering inbound frames to r.
func (c *Client) Start(r Receiver) {
	go c.writePump()
	go c.readPump(r)
}

// Send implements Transport.
func (c *Client) Send(frames [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return ErrClientClosed
	}
	for _, f := range frames {
		select {
		case c.send <- outbound{data: f}:
		default:
			return ErrSendBufferFull
		}
	}
	return nil
}

// Close implements Transport. Queued frames are flushed before the close
// frame.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	c.closing = true
	select {
	case c.send <- outbound{close: true, code: code, reason: reason}:
	default:
		go c.shutdown()
	}
}

// Terminate implements Transport. It is a no-op once a graceful close has
// been queued; the write pump finishes that close itself.
func (c *Client) Terminate() {
	c.mu.Lock()
	graceful := c.closing
	c.closing = true
	c.mu.Unlock()
	if graceful {
		select {
		case <-c.done:
		case <-time.After(writeWait):
			c.shutdown()
		}
		return
	}
	c.shutdown()
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	})
}

// readPump pumps frames from the websocket connection to the receiver.
func (c *Client) readPump(r Receiver) {
	defer func() {
		r.TransportClosed()
		c.shutdown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Msg("unexpected websocket close error")
			}
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		r.Receive(data)
	}
}

// writePump pumps queued frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if msg.close {
				payload := websocket.FormatCloseMessage(msg.code, msg.reason)
				if err := c.conn.WriteMessage(websocket.CloseMessage, payload); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				logging.Debug().Err(err).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
