// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/models"
)

// Identification is what an INITIAL frame says about its sender.
type Identification struct {
	Cookie    string
	SessionID string
}

// Authenticator resolves viewers from cookies.
type Authenticator struct {
	signer     *CookieSigner
	cookies    *CookieStore
	cookieName string
}

// NewAuthenticator creates an Authenticator. cookieName is the HTTP cookie
// name and the prefix of cookie pair strings.
func NewAuthenticator(signer *CookieSigner, cookies *CookieStore, cookieName string) *Authenticator {
	return &Authenticator{signer: signer, cookies: cookies, cookieName: cookieName}
}

// Cookies exposes the underlying cookie store.
func (a *Authenticator) Cookies() *CookieStore {
	return a.cookies
}

// CookieName returns the HTTP cookie name.
func (a *Authenticator) CookieName() string {
	return a.cookieName
}

// HeaderToken extracts the cookie token from an upgrade request, or "".
func (a *Authenticator) HeaderToken(r *http.Request) string {
	c, err := r.Cookie(a.cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// pairString renders the cookie the way clients store it.
func (a *Authenticator) pairString(token string) string {
	return a.cookieName + "=" + token
}

// tokenFromPair accepts either "name=token" or a bare token.
func (a *Authenticator) tokenFromPair(pair string) string {
	if rest, ok := strings.CutPrefix(pair, a.cookieName+"="); ok {
		return rest
	}
	return pair
}

// FetchViewerForSocket resolves the viewer for an INITIAL frame.
//
// headerToken is the HTTP cookie of the upgrade request. When it is present
// the viewer is header-sourced, and an invalid cookie yields (nil, nil): the
// socket cannot hand a header client a new cookie, so the caller must
// deauthorize. Otherwise the body cookie is used, and an invalid or missing
// cookie is replaced by a new anonymous one, flagged as a session change.
func (a *Authenticator) FetchViewerForSocket(ctx context.Context, headerToken string, ident Identification) (*Viewer, error) {
	source := CookieSourceBody
	token := a.tokenFromPair(ident.Cookie)
	if headerToken != "" {
		source = CookieSourceHeader
		token = headerToken
	}

	cookie, err := a.lookup(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, ErrCookieInvalid), errors.Is(err, ErrCookieNotFound):
		logging.Debug().Err(err).Str("source", source.String()).Msg("socket cookie rejected")
		CookieRejections.WithLabelValues(source.String()).Inc()
		if source == CookieSourceHeader {
			return nil, nil
		}
		viewer, err := a.CreateAnonymousViewer(ctx, nil, "", CookieSourceBody)
		if err != nil {
			return nil, err
		}
		viewer.MarkSessionChanged()
		return viewer, nil
	default:
		return nil, err
	}

	viewer := a.viewerFor(cookie, token, source)
	viewer.SessionID = ident.SessionID
	if viewer.SessionID == "" && source == CookieSourceHeader {
		// Header clients are identified by their cookie.
		viewer.SessionID = cookie.ID
	}
	return viewer, nil
}

func (a *Authenticator) lookup(ctx context.Context, token string) (*Cookie, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: no cookie", ErrCookieNotFound)
	}
	id, err := a.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	return a.cookies.Get(ctx, id)
}

func (a *Authenticator) viewerFor(c *Cookie, token string, source CookieSource) *Viewer {
	return &Viewer{
		UserID:           c.UserID,
		LoggedIn:         !c.Anonymous(),
		CookieID:         c.ID,
		CookieSource:     source,
		CookiePairString: a.pairString(token),
		Platform:         c.Platform,
		PlatformDetails:  c.PlatformDetails,
		DeviceToken:      c.DeviceToken,
	}
}

// CreateAnonymousViewer issues a new anonymous cookie and returns its viewer.
func (a *Authenticator) CreateAnonymousViewer(ctx context.Context, details *models.PlatformDetails, deviceToken string, source CookieSource) (*Viewer, error) {
	return a.issue(ctx, "", details, deviceToken, source)
}

// IssueUserCookie issues a cookie for a logged-in user. Login itself happens
// outside the socket; this is how such flows (and tests) mint cookies.
func (a *Authenticator) IssueUserCookie(ctx context.Context, userID string, details *models.PlatformDetails) (*Viewer, error) {
	if userID == "" {
		return nil, errors.New("user cookie requires a user id")
	}
	return a.issue(ctx, userID, details, "", CookieSourceHeader)
}

func (a *Authenticator) issue(ctx context.Context, userID string, details *models.PlatformDetails, deviceToken string, source CookieSource) (*Viewer, error) {
	c, err := a.cookies.Create(ctx, userID, details, deviceToken)
	if err != nil {
		return nil, err
	}
	token, err := a.signer.Sign(c.ID)
	if err != nil {
		return nil, err
	}
	kind := "user"
	if c.Anonymous() {
		kind = "anonymous"
	}
	CookiesIssued.WithLabelValues(kind).Inc()
	return a.viewerFor(c, token, source), nil
}

// Token returns the bare token of a viewer's cookie pair string.
func (a *Authenticator) Token(v *Viewer) string {
	return a.tokenFromPair(v.CookiePairString)
}

// DeleteCookie removes a viewer's cookie.
func (a *Authenticator) DeleteCookie(ctx context.Context, cookieID string) error {
	return a.cookies.Delete(ctx, cookieID)
}

// ExtendCookieLifespan pushes a cookie's expiry forward.
func (a *Authenticator) ExtendCookieLifespan(ctx context.Context, cookieID string) error {
	return a.cookies.Extend(ctx, cookieID)
}
