// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/history"
	"github.com/jeranaias/chatterm/internal/model"
)

// fakeBackend fakes the chat backend the gateway proxies to.
type fakeBackend struct {
	*httptest.Server
	historyCalls int64
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.AuthResponse{
			AccessToken: "token-u1",
			TokenType:   "bearer",
			User:        model.User{ID: "u1", Email: "u1@example.com"},
		})
	})
	mux.HandleFunc("POST /auth/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-u1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /chat/message", func(w http.ResponseWriter, r *http.Request) {
		var req api.MessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(api.MessageResponse{Response: "echo: " + req.Message})
	})
	mux.HandleFunc("GET /chat/history", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fb.historyCalls, 1)
		json.NewEncoder(w).Encode(map[string][]model.ChatSummary{
			"chats": {{ID: "c1", Title: "첫 대화", UserID: r.URL.Query().Get("userId")}},
		})
	})
	mux.HandleFunc("PATCH /chat/{id}/title", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

// newTestGateway wires a gateway against the fake backend.
func newTestGateway(t *testing.T, fb *fakeBackend) (*Server, *history.Cache) {
	t.Helper()
	client := api.NewClient(fb.URL)
	session := auth.NewSession(client, auth.NewCredentialStore(t.TempDir()))
	cache := history.NewCache(history.NewBus())

	cfg := config.Default()
	cfg.Gateway.RateLimitPerSec = 0 // keep tests deterministic
	return New(cfg, client, session, cache), cache
}

func authedRequest(method, target string, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.AddCookie(&http.Cookie{Name: auth.TokenCookie, Value: "token-u1"})
	return r
}

func TestPingIsUnguarded(t *testing.T) {
	gw, _ := newTestGateway(t, newFakeBackend(t))

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pong") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGuardedRouteRedirectsWithoutToken(t *testing.T) {
	gw, _ := newTestGateway(t, newFakeBackend(t))

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/chat/history?userId=u1", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?redirectUrl=") {
		t.Errorf("Location = %q", loc)
	}
}

func TestLoginSetsCookies(t *testing.T) {
	gw, _ := newTestGateway(t, newFakeBackend(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"email":"u1@example.com","password":"pw"}`))
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var tokenSet, userSet bool
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case auth.TokenCookie:
			tokenSet = c.Value == "token-u1"
		case auth.UserCookie:
			userSet = c.Value != ""
		}
	}
	if !tokenSet || !userSet {
		t.Errorf("cookies = %+v", rec.Result().Cookies())
	}
}

func TestLoginRejectsMissingFields(t *testing.T) {
	gw, _ := newTestGateway(t, newFakeBackend(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"email":"u1@example.com"}`))
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatMessageProxiesAndInvalidates(t *testing.T) {
	fb := newFakeBackend(t)
	gw, cache := newTestGateway(t, fb)

	key := history.Key{Endpoint: history.Endpoint, UserID: "u1", Cursor: ""}
	cache.Put(key, []model.ChatSummary{{ID: "c1", UserID: "u1"}})

	rec := httptest.NewRecorder()
	req := authedRequest("POST", "/chat/message", `{"message":"hello","chat_id":"c1","user_id":"u1","selected_model":"gemma3:4b"}`)
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp api.MessageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "echo: hello" {
		t.Errorf("response = %q", resp.Response)
	}
	if _, ok := cache.Get(key); ok {
		t.Error("send must invalidate the sender's cached history")
	}
}

func TestChatHistoryUsesCache(t *testing.T) {
	fb := newFakeBackend(t)
	gw, _ := newTestGateway(t, fb)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		gw.Handler().ServeHTTP(rec, authedRequest("GET", "/chat/history?userId=u1&limit=20", ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "첫 대화") {
			t.Errorf("body = %s", rec.Body.String())
		}
	}

	if calls := atomic.LoadInt64(&fb.historyCalls); calls != 1 {
		t.Errorf("backend history calls = %d, want 1 (cached)", calls)
	}
}

// A gateway wired without a cache degrades to fetching the backend on
// every history request instead of panicking.
func TestChatHistoryWithoutCacheFetchesBackend(t *testing.T) {
	fb := newFakeBackend(t)
	client := api.NewClient(fb.URL)
	session := auth.NewSession(client, auth.NewCredentialStore(t.TempDir()))

	cfg := config.Default()
	cfg.Gateway.RateLimitPerSec = 0
	gw := New(cfg, client, session, nil)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		gw.Handler().ServeHTTP(rec, authedRequest("GET", "/chat/history?userId=u1&limit=20", ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	}

	if calls := atomic.LoadInt64(&fb.historyCalls); calls != 2 {
		t.Errorf("backend history calls = %d, want 2 (uncached)", calls)
	}
}

func TestTitleUpdateInvalidatesRenamingUser(t *testing.T) {
	fb := newFakeBackend(t)
	gw, cache := newTestGateway(t, fb)

	key := history.Key{Endpoint: history.Endpoint, UserID: "u1", Cursor: ""}
	cache.Put(key, []model.ChatSummary{{ID: "c1", Title: "old", UserID: "u1"}})

	req := authedRequest("PATCH", "/chat/c1/title", `{"title":"new title"}`)
	req.AddCookie(&http.Cookie{
		Name:  auth.UserCookie,
		Value: `%7B%22id%22%3A%22u1%22%2C%22email%22%3A%22u1%40example.com%22%7D`,
	})
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if _, ok := cache.Get(key); ok {
		t.Error("rename must invalidate the renaming user's cache")
	}
}

func TestSignoutClearsCookies(t *testing.T) {
	gw, _ := newTestGateway(t, newFakeBackend(t))

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, authedRequest("POST", "/auth/signout", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if (c.Name == auth.TokenCookie || c.Name == auth.UserCookie) && c.MaxAge >= 0 {
			t.Errorf("cookie %s not expired: MaxAge=%d", c.Name, c.MaxAge)
		}
	}
}

func TestLoginPageEscapesRedirect(t *testing.T) {
	gw, _ := newTestGateway(t, newFakeBackend(t))

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/login?redirectUrl=%3Cscript%3E", nil))

	if strings.Contains(rec.Body.String(), "<script>") {
		t.Error("redirectUrl must be HTML-escaped")
	}
}
