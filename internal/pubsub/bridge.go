// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/threadsync/internal/cache"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/metrics"
	"github.com/tomtom215/threadsync/internal/models"
)

// Redelivery window for per-subscription deduplication.
const (
	dedupCapacity = 1024
	dedupTTL      = 2 * time.Minute
)

// ErrBridgeClosed is returned by operations on a closed Bridge.
var ErrBridgeClosed = errors.New("pubsub bridge closed")

// Handler receives events for a subscription. It runs on the subscription's
// consumer goroutine and must not block for long.
type Handler func(ctx context.Context, ev *Event)

// Bridge publishes message and update notifications and subscribes sockets
// to them.
type Bridge struct {
	backend *Backend
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewBridge wraps backend. The bridge owns the backend and closes it on
// Close.
func NewBridge(backend *Backend, breaker BreakerConfig) *Bridge {
	return &Bridge{backend: backend, breaker: newBreaker(breaker)}
}

// BreakerState reports the publish circuit breaker state for health checks.
func (b *Bridge) BreakerState() string {
	return b.breaker.State().String()
}

// PublishUpdates announces new updates to userID's sessions, skipping
// excludeSessionID. The batch travels as one event on the user topic so every
// session sees it in producer order; updates targeted at a single session are
// filtered out by the other subscribers.
func (b *Bridge) PublishUpdates(ctx context.Context, userID string, raws []models.RawUpdate, excludeSessionID string) error {
	batch := make([]models.RawUpdate, 0, len(raws))
	for _, raw := range raws {
		if raw.TargetSessionID != "" && raw.TargetSessionID == excludeSessionID {
			continue
		}
		batch = append(batch, raw)
	}
	if len(batch) == 0 {
		return nil
	}
	ev := &Event{Type: EventNewUpdates, Updates: batch, ExcludeSessionID: excludeSessionID}
	return b.publish(ctx, UserTopic(userID), ev)
}

// PublishMessages announces new messages to all of userID's sessions.
func (b *Bridge) PublishMessages(ctx context.Context, userID string, msgs []models.RawMessageInfo) error {
	if len(msgs) == 0 {
		return nil
	}
	return b.publish(ctx, UserTopic(userID), &Event{Type: EventNewMessages, Messages: msgs})
}

func (b *Bridge) publish(ctx context.Context, topic string, ev *Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBridgeClosed
	}

	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	_, err = b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.backend.Publisher.Publish(topic, msg)
	})
	if err != nil {
		metrics.BridgePublishErrors.Inc()
		return fmt.Errorf("publish %s to %s: %w", ev.Type, topic, err)
	}
	metrics.BridgeEventsPublished.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

// Subscription is a live subscription of one socket.
type Subscription struct {
	InstanceID string

	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops delivery and waits for the consumer goroutines to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe delivers userID's events to handle. With a non-empty sessionID it
// also subscribes to the session topic and then announces a new instance
// there, so an earlier subscriber of the same session receives a
// start_subscription event carrying a foreign InstanceID. The session topic
// carries nothing else.
func (b *Bridge) Subscribe(ctx context.Context, userID, sessionID string, handle Handler) (*Subscription, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrBridgeClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{InstanceID: uuid.NewString(), cancel: cancel, done: make(chan struct{})}

	topics := []string{UserTopic(userID)}
	if sessionID != "" {
		topics = append(topics, SessionTopic(userID, sessionID))
	}

	seen := cache.NewLRU[struct{}](dedupCapacity, dedupTTL)
	var wg sync.WaitGroup
	for _, topic := range topics {
		ch, err := b.backend.Subscriber.Subscribe(subCtx, topic)
		if err != nil {
			cancel()
			wg.Wait()
			close(sub.done)
			return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.consume(subCtx, ch, seen, sessionID, sub.InstanceID, handle)
		}()
	}
	go func() {
		wg.Wait()
		close(sub.done)
	}()

	if sessionID != "" {
		start := &Event{Type: EventStartSubscription, InstanceID: sub.InstanceID}
		if err := b.publish(ctx, SessionTopic(userID, sessionID), start); err != nil {
			sub.Close()
			return nil, err
		}
	}
	return sub, nil
}

func (b *Bridge) consume(ctx context.Context, ch <-chan *message.Message, seen *cache.LRU[struct{}], sessionID, instanceID string, handle Handler) {
	for msg := range ch {
		if seen.Seen(msg.UUID) {
			msg.Ack()
			metrics.BridgeDuplicatesDropped.Inc()
			logging.Debug().Str("uuid", msg.UUID).Msg("dropping redelivered bridge event")
			continue
		}
		ev, err := decodeEvent(msg)
		msg.Ack()
		if err != nil {
			logging.Warn().Err(err).Msg("dropping undecodable bridge event")
			continue
		}
		if ev.Type == EventStartSubscription && ev.InstanceID == instanceID {
			continue
		}
		if ev.ExcludeSessionID != "" && ev.ExcludeSessionID == sessionID {
			continue
		}
		if ev.Type == EventNewUpdates && !keepVisible(ev, sessionID) {
			continue
		}
		metrics.BridgeEventsDelivered.WithLabelValues(string(ev.Type)).Inc()
		handle(ctx, ev)
	}
}

// keepVisible narrows ev.Updates to those visible to sessionID, preserving
// order, and reports whether any remain.
func keepVisible(ev *Event, sessionID string) bool {
	kept := ev.Updates[:0]
	for i := range ev.Updates {
		if ev.Updates[i].VisibleTo(sessionID) {
			kept = append(kept, ev.Updates[i])
		}
	}
	ev.Updates = kept
	return len(kept) > 0
}

// Close shuts the backend down. Open subscriptions end as their channels
// close.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.backend.Close()
}
