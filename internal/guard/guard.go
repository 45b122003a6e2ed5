// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package guard implements the route guard for the local gateway: a
// request-intercepting policy evaluated before any protected handler runs.
//
// Policy, per navigation:
//  1. An allow-list of path prefixes (health check, the auth pages
//     themselves, static assets, metadata files) bypasses all checks.
//  2. The bearer token is read from the auth_token cookie, falling back to
//     the Authorization header for non-browser callers.
//  3. No token: redirect to the login page with the original address in a
//     redirectUrl parameter so the client can resume after authentication.
//  4. Token present: a blocking call to the backend verification endpoint;
//     a non-success result clears local auth state and redirects the same
//     way. Every protected navigation is therefore a network round trip.
package guard

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
)

// LoginPath is where unauthenticated navigations are sent.
const LoginPath = "/login"

// DefaultAllowPrefixes lists path prefixes that bypass the guard.
var DefaultAllowPrefixes = []string{
	"/ping",
	"/login",
	"/register",
	"/auth/",
	"/api/files",
	"/static/",
	"/favicon",
	"/sitemap",
	"/robots",
}

// =============================================================================
// GUARD
// =============================================================================

// Guard denies protected routes to callers without a backend-confirmed
// token.
type Guard struct {
	client        *api.Client
	session       *auth.Session
	allowPrefixes []string
}

// New creates a route guard that verifies tokens against the given backend
// and clears the session's local auth state when verification fails.
func New(client *api.Client, session *auth.Session) *Guard {
	return &Guard{
		client:        client,
		session:       session,
		allowPrefixes: DefaultAllowPrefixes,
	}
}

// WithAllowPrefixes overrides the allow-list.
func (g *Guard) WithAllowPrefixes(prefixes []string) *Guard {
	g.allowPrefixes = prefixes
	return g
}

// Middleware evaluates the guard policy before the next handler.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.allowed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := auth.TokenFromRequest(r)
		if token == "" {
			log.Printf("GUARD_DENIED | path=%s reason=no_token", r.URL.Path)
			g.redirectToLogin(w, r)
			return
		}

		// The navigation blocks on this round trip: no page renders on
		// a token the backend no longer accepts.
		ok, err := g.client.Verify(r.Context(), token)
		if err != nil || !ok {
			log.Printf("GUARD_DENIED | path=%s reason=verify_failed err=%v", r.URL.Path, err)
			if clearErr := g.session.Clear(w); clearErr != nil {
				log.Printf("GUARD_CLEAR_FAILED | err=%v", clearErr)
			}
			g.redirectToLogin(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowed reports whether the path bypasses the guard.
func (g *Guard) allowed(path string) bool {
	for _, prefix := range g.allowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// redirectToLogin sends the caller to the login page, carrying the
// originally requested address so the client can resume afterwards.
func (g *Guard) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	original := originalURL(r)
	target := LoginPath + "?redirectUrl=" + url.QueryEscape(original)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// originalURL reconstructs the full requested address.
func originalURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.RequestURI
}
