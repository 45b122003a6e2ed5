// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/jeranaias/chatterm/internal/api"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is the single source of truth for the current caller. It is
// passed explicitly to every component that needs identity; there is no
// package-level singleton.
//
// Session is the sole writer of both identity representations (credential
// file and cookies), which is what keeps them from diverging.
type Session struct {
	mu       sync.Mutex
	client   *api.Client
	store    *CredentialStore
	identity *Identity // in-memory mirror of the durable store
}

// NewSession creates a session backed by the given store, loading any
// previously established identity. A corrupt credential file is treated as
// signed out.
func NewSession(client *api.Client, store *CredentialStore) *Session {
	s := &Session{client: client, store: store}
	id, err := store.Load()
	if err != nil {
		log.Printf("AUTH_LOAD_FAILED | err=%v", err)
		id = nil
	}
	s.identity = id
	return s
}

// CurrentIdentity returns the established identity, or nil when signed
// out. Synchronous and non-blocking: it reads the in-memory mirror of the
// durable store.
func (s *Session) CurrentIdentity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Token returns the current bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.Token
}

// IsGuest reports whether the current identity is a guest. Signed-out
// counts as guest for UI purposes.
func (s *Session) IsGuest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return true
	}
	return s.identity.User.IsGuest()
}

// AuthHeader derives the bearer header set from the current token. Returns
// an empty header set when unauthenticated; it never fails.
func (s *Session) AuthHeader() http.Header {
	h := http.Header{}
	if token := s.Token(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// Establish writes both identity representations together: the durable
// credential file, and, when w is non-nil (gateway responses), the cookie
// pair read by the route guard.
func (s *Session) Establish(id Identity, w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(id); err != nil {
		return fmt.Errorf("failed to persist identity: %w", err)
	}
	if w != nil {
		WriteCookies(w, id)
	}
	s.identity = &id
	return nil
}

// Clear removes both identity representations together. Used on explicit
// sign-out and on failed remote verification.
func (s *Session) Clear(w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		return err
	}
	if w != nil {
		ClearCookies(w)
	}
	s.identity = nil
	return nil
}

// VerifyRemotely sends the held token to the backend's verification
// endpoint. Network failure counts as "not verified": verification fails
// closed.
func (s *Session) VerifyRemotely(ctx context.Context) bool {
	ok, err := s.client.Verify(ctx, s.Token())
	if err != nil {
		log.Printf("AUTH_VERIFY_FAILED | err=%v", err)
		return false
	}
	return ok
}

// =============================================================================
// CREDENTIAL FLOWS
// =============================================================================

// Login authenticates with email and password, establishing the returned
// identity on success. Backend detail text is preserved in the error.
func (s *Session) Login(ctx context.Context, email, password string, w http.ResponseWriter) (*Identity, error) {
	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return s.establishFrom(resp, w)
}

// Register creates a new account and establishes its identity.
func (s *Session) Register(ctx context.Context, email, password string, w http.ResponseWriter) (*Identity, error) {
	resp, err := s.client.Register(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return s.establishFrom(resp, w)
}

// CreateGuest provisions and establishes an anonymous guest identity.
func (s *Session) CreateGuest(ctx context.Context, w http.ResponseWriter) (*Identity, error) {
	resp, err := s.client.CreateGuest(ctx)
	if err != nil {
		return nil, fmt.Errorf("guest creation failed: %w", err)
	}
	return s.establishFrom(resp, w)
}

func (s *Session) establishFrom(resp *api.AuthResponse, w http.ResponseWriter) (*Identity, error) {
	id := Identity{Token: resp.AccessToken, User: resp.User}
	if err := s.Establish(id, w); err != nil {
		return nil, err
	}
	return &id, nil
}
