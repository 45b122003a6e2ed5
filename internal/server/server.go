// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/guard"
	"github.com/jeranaias/chatterm/internal/history"
	"github.com/jeranaias/chatterm/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default gateway listen address.
	DefaultAddr = "localhost:8787"

	// MaxRequestBodySize caps inbound bodies. SECURITY: prevents memory
	// exhaustion from oversized payloads.
	MaxRequestBodySize = 1 * 1024 * 1024

	// shutdownGrace bounds graceful shutdown.
	shutdownGrace = 10 * time.Second
)

// ============================================================================
// GATEWAY STATS
// ============================================================================

// Stats tracks gateway usage counters.
type Stats struct {
	TotalRequests int64     `json:"total_requests"`
	ChatSends     int64     `json:"chat_sends"`
	AuthFailures  int64     `json:"auth_failures"`
	StartTime     time.Time `json:"start_time"`
}

// statsCounter is the mutable backing for Stats.
type statsCounter struct {
	totalRequests int64
	chatSends     int64
	authFailures  int64
	startTime     time.Time
}

func (c *statsCounter) snapshot() Stats {
	return Stats{
		TotalRequests: atomic.LoadInt64(&c.totalRequests),
		ChatSends:     atomic.LoadInt64(&c.chatSends),
		AuthFailures:  atomic.LoadInt64(&c.authFailures),
		StartTime:     c.startTime,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the local HTTP gateway. It proxies chat traffic to the
// backend, owns the cookie representation of the session, and guards
// every protected route.
type Server struct {
	addr   string
	mux    *http.ServeMux
	server *http.Server

	client  *api.Client
	session *auth.Session
	cache   *history.Cache
	stats   *statsCounter

	mu sync.RWMutex
}

// New creates a gateway from the effective configuration.
func New(cfg *config.Config, client *api.Client, session *auth.Session, cache *history.Cache) *Server {
	s := &Server{
		addr:    cfg.Gateway.Addr,
		mux:     http.NewServeMux(),
		client:  client,
		session: session,
		cache:   cache,
		stats:   &statsCounter{startTime: time.Now()},
	}
	if s.addr == "" {
		s.addr = DefaultAddr
	}
	s.setupRoutes()

	g := guard.New(client, session)
	if len(cfg.Gateway.AllowPrefixes) > 0 {
		g = g.WithAllowPrefixes(append(guard.DefaultAllowPrefixes, cfg.Gateway.AllowPrefixes...))
	}

	middlewares := []func(http.Handler) http.Handler{
		guard.RecoveryMiddleware(),
		guard.LoggingMiddleware(log.Default()),
	}
	if cfg.Gateway.RateLimitPerSec > 0 {
		limiter := guard.NewRateLimiter(cfg.Gateway.RateLimitPerSec, cfg.Gateway.RateLimitBurst)
		middlewares = append(middlewares, guard.RateLimitMiddleware(limiter))
	}
	middlewares = append(middlewares, s.countRequests, g.Middleware)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           guard.Chain(middlewares...)(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // sends can wait on slow model output
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /ping", s.handlePing)
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("GET /stats", s.handleStats)

	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/guest", s.handleGuest)
	s.mux.HandleFunc("POST /auth/signout", s.handleSignout)

	s.mux.HandleFunc("POST /chat/message", s.handleChatMessage)
	s.mux.HandleFunc("GET /chat/history", s.handleChatHistory)
	s.mux.HandleFunc("GET /chat/models", s.handleChatModels)
	s.mux.HandleFunc("GET /chat/{id}/messages", s.handleChatMessages)
	s.mux.HandleFunc("PATCH /chat/{id}/title", s.handleChatTitle)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.stats.totalRequests, 1)
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// UNGUARDED HANDLERS
// ============================================================================

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
}

// handleLoginPage is the redirect target for denied navigations. The
// gateway has no browser UI; it reports where the caller was headed so
// a client can resume after authenticating.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("redirectUrl")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h1>chatterm</h1><p>Authentication required.")
	if redirect != "" {
		fmt.Fprintf(w, " After logging in you will be returned to <code>%s</code>.", html.EscapeString(redirect))
	}
	fmt.Fprint(w, "</p></body></html>")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.snapshot())
}

// ============================================================================
// AUTH HANDLERS
// ============================================================================

// credentials is the body accepted by login and register.
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.handleCredentialAuth(w, r, s.session.Login)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.handleCredentialAuth(w, r, s.session.Register)
}

func (s *Server) handleCredentialAuth(w http.ResponseWriter, r *http.Request, do func(context.Context, string, string, http.ResponseWriter) (*auth.Identity, error)) {
	var creds credentials
	if !s.readJSON(w, r, &creds) {
		return
	}
	if creds.Email == "" || creds.Password == "" {
		s.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	id, err := do(r.Context(), creds.Email, creds.Password, w)
	if err != nil {
		atomic.AddInt64(&s.stats.authFailures, 1)
		s.writeError(w, http.StatusUnauthorized, api.DetailOf(err, "authentication failed"))
		return
	}
	s.writeJSON(w, http.StatusOK, id.User)
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	id, err := s.session.CreateGuest(r.Context(), w)
	if err != nil {
		atomic.AddInt64(&s.stats.authFailures, 1)
		s.writeError(w, http.StatusBadGateway, api.DetailOf(err, "guest provisioning failed"))
		return
	}
	s.writeJSON(w, http.StatusOK, id.User)
}

func (s *Server) handleSignout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Clear(w); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req api.MessageRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Message == "" || req.ChatID == "" {
		s.writeError(w, http.StatusBadRequest, "message and chat_id are required")
		return
	}
	if req.UserID == "" {
		req.UserID = model.GuestUserID
	}
	if req.SelectedModel == "" {
		req.SelectedModel = model.DefaultChatModel
	}

	resp, err := s.client.SendMessage(r.Context(), auth.TokenFromRequest(r), req)
	if err != nil {
		s.writeUpstreamError(w, err, "send failed")
		return
	}
	atomic.AddInt64(&s.stats.chatSends, 1)

	// The send mutated the user's chat list on the backend; every cached
	// page for that user is now suspect.
	if s.cache != nil {
		s.cache.Invalidate(req.UserID)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	token := auth.TokenFromRequest(r)
	fetch := func(ctx context.Context) ([]model.ChatSummary, error) {
		return s.client.History(ctx, token, userID, limit)
	}

	var chats []model.ChatSummary
	var err error
	if s.cache != nil {
		key := history.Key{Endpoint: history.Endpoint, UserID: userID, Cursor: r.URL.Query().Get("cursor")}
		chats, err = s.cache.GetOrFetch(r.Context(), key, fetch)
	} else {
		chats, err = fetch(r.Context())
	}
	if err != nil {
		s.writeUpstreamError(w, err, "history fetch failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]model.ChatSummary{"chats": chats})
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.client.Messages(r.Context(), auth.TokenFromRequest(r), r.PathValue("id"))
	if err != nil {
		s.writeUpstreamError(w, err, "message fetch failed")
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChatTitle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := s.client.UpdateTitle(r.Context(), auth.TokenFromRequest(r), r.PathValue("id"), req.Title); err != nil {
		s.writeUpstreamError(w, err, "title update failed")
		return
	}

	// Renames reorder nothing but retitle everything; cached pages for
	// the renaming user are stale.
	if s.cache != nil {
		if user, ok := auth.UserFromRequest(r); ok {
			s.cache.Invalidate(user.ID)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChatModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.client.ListModels(r.Context()))
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start runs the gateway until it fails or Shutdown is called.
func (s *Server) Start() error {
	log.Printf("GATEWAY_START | addr=%s", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains the gateway.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("GATEWAY_STOP | addr=%s", s.addr)
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler exposes the fully wrapped handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("GATEWAY_WRITE_FAILED | error=%v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

// writeUpstreamError maps a backend failure onto the gateway response,
// preserving the backend's status and detail where available.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error, fallback string) {
	status := http.StatusBadGateway
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Status > 0 {
		status = apiErr.Status
	}
	s.writeError(w, status, api.DetailOf(err, fallback))
}
