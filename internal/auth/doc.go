// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package auth resolves who is on the other end of a sync socket.

Identity is carried by a cookie: an HS256-signed token naming a cookie record
kept in the store. The record says which user (if any) the cookie belongs to
and remembers the client's platform, platform details and push device token.
Records expire through a badger TTL that is pushed forward every time the
cookie is used.

Key Components:

  - CookieSigner: signs and verifies cookie tokens with a key derived from
    the configured secret via HKDF-SHA256
  - CookieStore: badger-backed cookie records
  - Authenticator: turns the upgrade request's HTTP cookie or the INITIAL
    frame's body cookie into a Viewer, issuing a fresh anonymous cookie when
    the transport can carry one
  - Viewer: the per-connection identity, including the session the
    connection is bound to
  - VersionPolicy: minimum client versions per platform

Cookie Sources:

Web clients authenticate with the HTTP Cookie header of the upgrade request
(CookieSourceHeader). A websocket cannot set HTTP cookies, so when such a
cookie is invalid the socket can only be deauthorized. Native clients send
the cookie inside the INITIAL frame (CookieSourceBody); for them an invalid
cookie is replaced in-band with a new anonymous one.

Usage Example:

	signer, err := auth.NewCookieSigner(cfg.Security.CookieSecret)
	if err != nil {
	    return err
	}
	cookies := auth.NewCookieStore(db, cfg.Security.CookieLifetime)
	authn := auth.NewAuthenticator(signer, cookies, cfg.Security.CookieName)

	viewer, err := authn.FetchViewerForSocket(ctx, headerToken, auth.Identification{
	    Cookie:    payload.SessionIdentification.Cookie,
	    SessionID: payload.SessionIdentification.SessionID,
	})
*/
package auth
