// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package pubsub is the fan-out bridge between producers of messages and
updates and the sockets that deliver them.

Every connected socket subscribes to two topics. The user topic carries
every message and update batch for the user's sessions, one event per
producer batch, so all sessions observe pushes in producer order. Updates
targeted at one session ride along in the same batch and are filtered out
by the other subscribers. The session topic carries only start_subscription:
right after subscribing, the socket announces itself there so that an older
socket holding the same session learns it has been taken over.

Three backends implement the transport through watermill's
message.Publisher and message.Subscriber:

  - channel: in-process gochannel, for single-instance deployments and tests
  - nats: core NATS subjects via watermill-nats (JetStream disabled)
  - redis: Redis PUBLISH/SUBSCRIBE via go-redis

Publishing goes through a gobreaker circuit breaker so a broker outage fails
fast instead of stalling producers.
*/
package pubsub
