// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package pubsub

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Backend names accepted by NewBackend.
const (
	BackendChannel = "channel"
	BackendNATS    = "nats"
	BackendRedis   = "redis"
)

// Config selects and tunes the bridge transport.
type Config struct {
	Backend       string
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MaxReconnects int
	ReconnectWait time.Duration
	CloseTimeout  time.Duration
	Breaker       BreakerConfig
}

// DefaultConfig returns an in-process configuration.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendChannel,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		CloseTimeout:  5 * time.Second,
		Breaker:       DefaultBreakerConfig(),
	}
}

// Backend is a publisher and subscriber pair for one transport.
type Backend struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

// NewBackend builds the transport named by cfg.Backend.
func NewBackend(cfg Config, logger watermill.LoggerAdapter) (*Backend, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	switch cfg.Backend {
	case "", BackendChannel:
		return newChannelBackend(logger), nil
	case BackendNATS:
		return newNATSBackend(cfg, logger)
	case BackendRedis:
		return newRedisBackend(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown pubsub backend %q", cfg.Backend)
	}
}

// Close releases the transport.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newChannelBackend(logger watermill.LoggerAdapter) *Backend {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &Backend{Publisher: ch, Subscriber: ch, closers: []func() error{ch.Close}}
}

func natsOptions(cfg Config, logger watermill.LoggerAdapter, role string) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("threadsync-" + role),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"role": role})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"role": role, "url": nc.ConnectedUrl()})
		}),
	}
}

func newNATSBackend(cfg Config, logger watermill.LoggerAdapter) (*Backend, error) {
	if cfg.NATSURL == "" {
		return nil, errors.New("nats backend requires a URL")
	}
	// Core subjects only: bridge events are live notifications and the
	// durable copy lives in the update and message logs.
	js := wmNats.JetStreamConfig{Disabled: true}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOptions(cfg, logger, "publisher"),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   js,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOptions(cfg, logger, "subscriber"),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        js,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	return &Backend{Publisher: pub, Subscriber: sub, closers: []func() error{sub.Close, pub.Close}}, nil
}

func newRedisBackend(cfg Config, logger watermill.LoggerAdapter) (*Backend, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis backend requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	sub := newRedisSubscriber(client, logger)
	return &Backend{
		Publisher:  &redisPublisher{client: client},
		Subscriber: sub,
		closers:    []func() error{sub.Close, client.Close},
	}, nil
}
