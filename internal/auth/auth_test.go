// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/model"
)

func testIdentity() Identity {
	return Identity{
		Token: "tok-1",
		User:  model.User{ID: "u1", Email: "u@example.com", Type: model.UserKindRegular},
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	store := NewCredentialStore(t.TempDir())

	// Absent file: no identity, no error.
	id, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, id)

	require.NoError(t, store.Save(testIdentity()))

	id, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "tok-1", id.Token)
	assert.Equal(t, "u1", id.User.ID)

	require.NoError(t, store.Clear())
	id, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, id)

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}

func TestCredentialStoreEncryptsAtRest(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(dir)
	require.NoError(t, store.Save(testIdentity()))

	raw, err := os.ReadFile(filepath.Join(dir, credentialFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok-1", "token must not appear in plaintext")
	assert.NotContains(t, string(raw), "u@example.com")

	info, err := os.Stat(filepath.Join(dir, keyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSessionEstablishThenCurrentIdentity(t *testing.T) {
	s := NewSession(api.NewClient("http://127.0.0.1:1"), NewCredentialStore(t.TempDir()))

	assert.Nil(t, s.CurrentIdentity())
	assert.Empty(t, s.AuthHeader().Get("Authorization"))
	assert.True(t, s.IsGuest(), "signed out counts as guest")

	require.NoError(t, s.Establish(testIdentity(), nil))

	id := s.CurrentIdentity()
	require.NotNil(t, id)
	assert.Equal(t, "tok-1", id.Token)
	assert.Equal(t, "Bearer tok-1", s.AuthHeader().Get("Authorization"))
	assert.False(t, s.IsGuest())

	require.NoError(t, s.Clear(nil))
	assert.Nil(t, s.CurrentIdentity())
	assert.Empty(t, s.AuthHeader().Get("Authorization"))
}

func TestSessionSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	client := api.NewClient("http://127.0.0.1:1")

	s1 := NewSession(client, NewCredentialStore(dir))
	require.NoError(t, s1.Establish(testIdentity(), nil))

	// A fresh session over the same store sees the identity.
	s2 := NewSession(client, NewCredentialStore(dir))
	id := s2.CurrentIdentity()
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.User.ID)
}

func TestVerifyRemotelyFailsClosed(t *testing.T) {
	// Unreachable backend: not verified.
	s := NewSession(api.NewClient("http://127.0.0.1:1"), NewCredentialStore(t.TempDir()))
	require.NoError(t, s.Establish(testIdentity(), nil))
	assert.False(t, s.VerifyRemotely(context.Background()))

	// Backend rejecting the token: not verified.
	deny := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer deny.Close()
	s = NewSession(api.NewClient(deny.URL), NewCredentialStore(t.TempDir()))
	require.NoError(t, s.Establish(testIdentity(), nil))
	assert.False(t, s.VerifyRemotely(context.Background()))

	// Backend accepting it: verified.
	allow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer allow.Close()
	s = NewSession(api.NewClient(allow.URL), NewCredentialStore(t.TempDir()))
	require.NoError(t, s.Establish(testIdentity(), nil))
	assert.True(t, s.VerifyRemotely(context.Background()))
}

func TestLoginEstablishesBothRepresentations(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-9",
			"token_type":   "bearer",
			"user":         map[string]string{"id": "u9", "email": "x@example.com", "type": "regular"},
		})
	}))
	defer backend.Close()

	s := NewSession(api.NewClient(backend.URL), NewCredentialStore(t.TempDir()))
	rec := httptest.NewRecorder()

	id, err := s.Login(context.Background(), "x@example.com", "pw", rec)
	require.NoError(t, err)
	assert.Equal(t, "tok-9", id.Token)

	// Durable representation.
	require.NotNil(t, s.CurrentIdentity())

	// Cookie representation.
	cookies := rec.Result().Cookies()
	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}
	require.Contains(t, byName, TokenCookie)
	require.Contains(t, byName, UserCookie)
	assert.Equal(t, "tok-9", byName[TokenCookie].Value)
	assert.Equal(t, CookieMaxAge, byName[TokenCookie].MaxAge)
	assert.Equal(t, "/", byName[TokenCookie].Path)
	assert.Equal(t, http.SameSiteLaxMode, byName[TokenCookie].SameSite)
}

func TestLoginSurfacesBackendDetail(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "잘못된 이메일 또는 비밀번호입니다"})
	}))
	defer backend.Close()

	s := NewSession(api.NewClient(backend.URL), NewCredentialStore(t.TempDir()))
	_, err := s.Login(context.Background(), "x@example.com", "bad", nil)
	require.Error(t, err)
	assert.Equal(t, "잘못된 이메일 또는 비밀번호입니다", api.DetailOf(err, "fallback"))
	assert.Nil(t, s.CurrentIdentity(), "failed login must not establish an identity")
}

func TestTokenFromRequestPrefersCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chat/abc", nil)
	assert.Empty(t, TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header-tok")
	assert.Equal(t, "header-tok", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "cookie-tok"})
	assert.Equal(t, "cookie-tok", TokenFromRequest(r), "cookie wins over header")
}

func TestCookieRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteCookies(rec, testIdentity())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}

	assert.Equal(t, "tok-1", TokenFromRequest(r))
	u, ok := UserFromRequest(r)
	require.True(t, ok)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "u@example.com", u.Email)

	// ClearCookies expires both.
	rec = httptest.NewRecorder()
	ClearCookies(rec)
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge)
	}
}
