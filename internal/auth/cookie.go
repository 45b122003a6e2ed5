// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jeranaias/chatterm/internal/model"
)

// Cookie names mirroring the durable store's two values.
const (
	TokenCookie = "auth_token"
	UserCookie  = "auth_user"

	// CookieMaxAge is the cookie lifetime: 24 hours.
	CookieMaxAge = 24 * 60 * 60
)

// WriteCookies sets the cookie representation of the identity on a gateway
// response. Attributes restrict cross-site sending (SameSite=Lax) and the
// pair expires after 24 hours.
func WriteCookies(w http.ResponseWriter, id Identity) {
	userJSON, _ := json.Marshal(id.User)

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    id.Token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     UserCookie,
		Value:    url.QueryEscape(string(userJSON)),
		Path:     "/",
		MaxAge:   CookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookies expires both cookies.
func ClearCookies(w http.ResponseWriter) {
	for _, name := range []string{TokenCookie, UserCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// TokenFromRequest extracts the bearer token from an inbound request: the
// auth_token cookie when present, otherwise the Authorization header (the
// fallback path for non-browser callers). Returns "" when neither is set.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// UserFromRequest decodes the auth_user cookie, if present and well formed.
func UserFromRequest(r *http.Request) (model.User, bool) {
	c, err := r.Cookie(UserCookie)
	if err != nil || c.Value == "" {
		return model.User{}, false
	}
	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return model.User{}, false
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return model.User{}, false
	}
	return u, true
}
