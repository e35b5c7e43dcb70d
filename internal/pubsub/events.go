// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/threadsync/internal/models"
)

// EventType identifies a bridge event.
type EventType string

const (
	EventStartSubscription EventType = "start_subscription"
	EventNewUpdates        EventType = "new_updates"
	EventNewMessages       EventType = "new_messages"
)

// metadataType carries the event type alongside the payload so consumers can
// route without decoding.
const metadataType = "event_type"

// Event is the payload carried on user and session topics.
type Event struct {
	Type             EventType               `json:"type"`
	InstanceID       string                  `json:"instanceID,omitempty"`
	Updates          []models.RawUpdate      `json:"updates,omitempty"`
	Messages         []models.RawMessageInfo `json:"messages,omitempty"`
	ExcludeSessionID string                  `json:"excludeSessionID,omitempty"`
}

// UserTopic is the topic shared by all sessions of a user.
func UserTopic(userID string) string {
	return "threadsync.user." + userID
}

// SessionTopic is the topic of a single session.
func SessionTopic(userID, sessionID string) string {
	return "threadsync.session." + userID + "." + sessionID
}

func encodeEvent(ev *Event) (*message.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataType, string(ev.Type))
	return msg, nil
}

func decodeEvent(msg *message.Message) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return &ev, nil
}
