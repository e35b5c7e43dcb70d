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

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var errSubscriberClosed = errors.New("subscriber closed")

// redisEnvelope is the wire form of a watermill message on a Redis channel.
type redisEnvelope struct {
	UUID     string            `json:"uuid"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// redisPublisher implements message.Publisher with PUBLISH.
type redisPublisher struct {
	client *redis.Client
}

func (p *redisPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		data, err := json.Marshal(redisEnvelope{UUID: msg.UUID, Metadata: msg.Metadata, Payload: msg.Payload})
		if err != nil {
			return fmt.Errorf("encode message %s: %w", msg.UUID, err)
		}
		if err := p.client.Publish(msg.Context(), topic, data).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	}
	return nil
}

// Close is a no-op; the client is owned by the backend.
func (p *redisPublisher) Close() error { return nil }

// redisSubscriber implements message.Subscriber with SUBSCRIBE. Each
// Subscribe call holds its own Redis subscription and delivers one message
// at a time, waiting for Ack or Nack before moving on.
type redisSubscriber struct {
	client  *redis.Client
	logger  watermill.LoggerAdapter
	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

func newRedisSubscriber(client *redis.Client, logger watermill.LoggerAdapter) *redisSubscriber {
	return &redisSubscriber{client: client, logger: logger, closing: make(chan struct{})}
}

func (s *redisSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSubscriberClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	ps := s.client.Subscribe(ctx, topic)
	// The first reply confirms the subscription is active on the server.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		s.wg.Done()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	out := make(chan *message.Message)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closing:
				return
			case rm, ok := <-in:
				if !ok {
					return
				}
				var env redisEnvelope
				if err := json.Unmarshal([]byte(rm.Payload), &env); err != nil {
					s.logger.Error("Dropping undecodable redis message", err, watermill.LogFields{"topic": topic})
					continue
				}
				msg := message.NewMessage(env.UUID, env.Payload)
				for k, v := range env.Metadata {
					msg.Metadata.Set(k, v)
				}
				if !s.deliver(ctx, out, msg) {
					return
				}
			}
		}
	}()
	return out, nil
}

// deliver hands msg to the consumer, redelivering on Nack. It returns false
// once the subscription is shutting down.
func (s *redisSubscriber) deliver(ctx context.Context, out chan<- *message.Message, msg *message.Message) bool {
	for {
		msg.SetContext(ctx)
		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		}
		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			msg = msg.Copy()
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		}
	}
}

func (s *redisSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
