// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package protocol

import (
	"fmt"

	"github.com/tomtom215/threadsync/internal/models"
)

// ServerError is an error whose message is safe to send to the client.
// PlatformDetails is set on client_version_unsupported so the reply can
// carry the offending client's details in logs.
type ServerError struct {
	Message         string
	PlatformDetails *models.PlatformDetails
}

// NewServerError returns a ServerError with the given wire message.
func NewServerError(message string) *ServerError {
	return &ServerError{Message: message}
}

func (e *ServerError) Error() string {
	return e.Message
}

// DecodeError reports a frame that failed parsing or validation. ID is set
// when the frame carried a usable request id.
type DecodeError struct {
	ID     *int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMsgInvalidParameters, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMsgInvalidParameters, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
