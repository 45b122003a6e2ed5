// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/chatterm/internal/model"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is the default backend address.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds every backend call. The send path has no
	// retry; a hung call resolves here instead of wedging the engine
	// in streaming forever.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// One shared HTTP client backs every backend request.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// REQUEST / RESPONSE SHAPES
// =============================================================================

// AuthResponse is the shape shared by the login, register and guest
// endpoints.
type AuthResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

// MessageRequest is the body of POST /chat/message.
type MessageRequest struct {
	Message       string `json:"message"`
	ChatID        string `json:"chat_id"`
	UserID        string `json:"user_id"`
	SelectedModel string `json:"selected_model"`

	// ActionResponse carries the chosen confirmation value. It is a
	// dedicated field, not user text, so the backend can distinguish a
	// confirmation reply from new conversation content.
	ActionResponse string `json:"action_response,omitempty"`
}

// MessageResponse is the body returned by POST /chat/message. A non-empty
// Buttons list asks the client to raise a confirmation prompt.
type MessageResponse struct {
	Response string         `json:"response"`
	Buttons  []model.Choice `json:"buttons,omitempty"`
}

// historyResponse is the body returned by GET /chat/history.
type historyResponse struct {
	Chats []model.ChatSummary `json:"chats"`
}

// titleRequest is the body of PATCH /chat/{id}/title.
type titleRequest struct {
	Title string `json:"title"`
}

// credentialsRequest is the body shared by login and register.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// errorResponse is the backend's error body.
type errorResponse struct {
	Detail string `json:"detail"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chatterm backend. The zero value is not usable;
// construct with NewClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a backend client for the given base URL. An empty URL
// falls back to DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: sharedHTTPClient,
		userAgent:  "chatterm/0.1.0",
	}
}

// WithHTTPClient sets a custom HTTP client. Used by tests and by callers
// that need a different timeout.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the backend address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

// Login exchanges credentials for a bearer token and user identity.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", credentialsRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a new account and returns its first session.
func (c *Client) Register(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", "", credentialsRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateGuest provisions an anonymous guest identity.
func (c *Client) CreateGuest(ctx context.Context) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/guest", "", struct{}{}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the backend whether the bearer token is still valid. Any
// non-success status or transport failure counts as "not verified": token
// verification fails closed.
func (c *Client) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/verify", token, struct{}{}, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// CHAT ENDPOINTS
// =============================================================================

// SendMessage delivers one user message (or confirmation reply) and returns
// the assistant's response. Send errors are never retried here; the engine
// converts them into timeline state.
func (c *Client) SendMessage(ctx context.Context, token string, req MessageRequest) (*MessageResponse, error) {
	var out MessageResponse
	err := c.do(ctx, http.MethodPost, "/chat/message", token, req, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches the user's chat list, newest first.
func (c *Client) History(ctx context.Context, token, userID string, limit int) ([]model.ChatSummary, error) {
	path := fmt.Sprintf("/chat/history?userId=%s&limit=%d", url.QueryEscape(userID), limit)
	var out historyResponse
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// Messages loads the stored messages of an existing chat.
func (c *Client) Messages(ctx context.Context, token, chatID string) ([]*model.Message, error) {
	path := "/chat/" + url.PathEscape(chatID) + "/messages"
	var out []*model.Message
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	// Older rows may predate the parts column; synthesize a text part so
	// the timeline invariant (non-empty parts) holds.
	for _, msg := range out {
		if len(msg.Parts) == 0 {
			msg.Parts = []model.Part{{Type: "text", Text: msg.Content}}
		}
	}
	return out, nil
}

// UpdateTitle renames a chat.
func (c *Client) UpdateTitle(ctx context.Context, token, chatID, title string) error {
	path := "/chat/" + url.PathEscape(chatID) + "/title"
	return c.do(ctx, http.MethodPatch, path, token, titleRequest{Title: title}, nil)
}

// ListModels fetches the selectable model list. Failures degrade silently
// to the fixed fallback list; this method never returns an error.
func (c *Client) ListModels(ctx context.Context) []model.ChatModel {
	var out []model.ChatModel
	if err := c.do(ctx, http.MethodGet, "/chat/models", "", nil, &out); err != nil {
		log.Printf("MODELS_FALLBACK | err=%v", err)
		return model.FallbackChatModels
	}
	if len(out) == 0 {
		return model.FallbackChatModels
	}
	return out
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do performs one backend request. body and out may be nil. A bearer header
// is attached when token is non-empty.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, token)

	c.logRequest(req)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	data, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// setHeaders sets the required headers for backend requests.
func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// logRequest logs an API request without exposing sensitive data.
// Headers (may contain auth) and bodies (may contain message text) are
// never logged.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
}

// logResponse logs the status code and duration of an API response.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d %s (%v)", resp.StatusCode, resp.Status, duration)
}

// readResponse reads the response body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return data, nil
}

// newError converts a non-success response into a *Error, extracting the
// backend's detail text when the body parses.
func newError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Detail != "" {
		return &Error{Status: status, Detail: er.Detail}
	}
	return &Error{Status: status, Detail: strings.TrimSpace(string(body))}
}
