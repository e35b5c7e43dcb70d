// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package protocol defines the sync socket's wire format.

Every frame is one JSON object with an integer "type". Client frames also
carry an integer "id"; server replies echo it as "responseTo", and
unsolicited pushes (UPDATES, MESSAGES) carry none.

Both directions are modelled as tagged unions: an interface per direction
(ClientMessage, ServerMessage) with one concrete struct per variant. The
same pattern is used for the nested unions (client responses, server
requests, STATE_SYNC payloads). Encoding writes the variant's "type" in
front of the struct's own fields; decoding peeks "type" and "id" with gjson
before unmarshalling into the concrete struct and validating it.

	msg, err := protocol.DecodeClientMessage(frame)
	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) {
	    // report decodeErr.ID (if known) with ErrMsgInvalidParameters
	}

	switch m := msg.(type) {
	case *protocol.InitialMessage:
	case *protocol.PingMessage:
	...
	}

	frame, err := protocol.EncodeServerMessage(&protocol.PongMessage{ResponseTo: 3})
*/
package protocol
