// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/history"
	"github.com/jeranaias/chatterm/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Status is the engine's send-cycle state.
type Status string

const (
	// StatusReady accepts a new send.
	StatusReady Status = "ready"

	// StatusSubmitted is a confirmation reply in flight (no placeholder).
	StatusSubmitted Status = "submitted"

	// StatusStreaming is a plain send in flight with a live placeholder.
	StatusStreaming Status = "streaming"

	// StatusError is the transient failure state; the engine settles back
	// to ready before Resolve returns, so callers never observe a sticky
	// error.
	StatusError Status = "error"
)

const (
	// PlaceholderText is the provisional assistant content shown while a
	// send is in flight.
	PlaceholderText = "생각 중..."

	// SendFailureText replaces the placeholder when a send fails.
	SendFailureText = "죄송합니다. 응답을 생성하는 중 오류가 발생했습니다."

	// SendTimeout bounds one backend send. The upstream protocol has no
	// timeout of its own; without this a hung call would leave the engine
	// streaming forever.
	SendTimeout = 120 * time.Second
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrBusy          = errors.New("a send is already in flight")
	ErrNoUserMessage = errors.New("no user message to resend")
)

// =============================================================================
// ENGINE
// =============================================================================

// Ticket is one prepared backend send. PlaceholderID is empty for the
// confirmation-reply path, which appends the assistant reply instead of
// replacing a placeholder.
type Ticket struct {
	PlaceholderID string
	Request       api.MessageRequest
}

// Engine owns the message timeline for a single conversation id.
//
// All state transitions happen under the engine's lock; only the engine
// writes status. At most one send is in flight: Send, Choose and Reload
// reject with ErrBusy unless status is ready.
type Engine struct {
	mu sync.Mutex

	client  *api.Client
	session *auth.Session
	cache   *history.Cache

	chatID        string
	selectedModel string

	status       Status
	messages     []*model.Message
	pending      *model.Confirmation
	bootstrapped bool

	// notify surfaces transient failure text to the UI layer.
	notify func(string)
}

// New creates an engine for one conversation. session and cache may be nil
// (an unauthenticated engine sends as the guest sentinel and emits no
// invalidation signals).
func New(client *api.Client, session *auth.Session, cache *history.Cache, chatID string) *Engine {
	return &Engine{
		client:        client,
		session:       session,
		cache:         cache,
		chatID:        chatID,
		selectedModel: model.DefaultChatModel,
		status:        StatusReady,
		notify:        func(reason string) { log.Printf("SEND_NOTICE | reason=%q", reason) },
	}
}

// WithModel selects the backend model identifier carried on every send.
func (e *Engine) WithModel(id string) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id != "" {
		e.selectedModel = id
	}
	return e
}

// WithNotify replaces the transient-notification callback.
func (e *Engine) WithNotify(fn func(string)) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn != nil {
		e.notify = fn
	}
	return e
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Status returns the current send-cycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// ChatID returns the conversation identifier.
func (e *Engine) ChatID() string {
	return e.chatID
}

// SelectedModel returns the model identifier carried on sends.
func (e *Engine) SelectedModel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedModel
}

// Messages returns the timeline in send order. The slice is a copy; the
// messages themselves are shared and immutable once finalized.
func (e *Engine) Messages() []*model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// SeedMessages installs previously-persisted messages as the timeline.
// Used when reopening an existing conversation; only legal before the
// first send.
func (e *Engine) SeedMessages(msgs []*model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.messages) == 0 {
		e.messages = append(e.messages, msgs...)
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send appends a user message and a loading placeholder, transitions to
// streaming, and returns the ticket for the backend call. Empty or
// whitespace-only input is rejected with ErrEmptyMessage; a send already
// in flight is rejected with ErrBusy (no queueing).
//
// A pending confirmation is silently abandoned: typing ordinary text
// while the backend is waiting on a choice drops the question unresolved.
func (e *Engine) Send(text string) (*Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked(text)
}

func (e *Engine) sendLocked(text string) (*Ticket, error) {
	// UNICODE: normalize to NFC so composed and decomposed Hangul (or
	// accented latin) compare and render identically downstream.
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if e.status != StatusReady {
		return nil, ErrBusy
	}
	if e.pending != nil {
		log.Printf("CONFIRMATION_ABANDONED | chat=%s", e.chatID)
		e.pending = nil
	}

	e.messages = append(e.messages, model.NewUserMessage(text))
	placeholder := model.NewPlaceholderMessage(PlaceholderText)
	e.messages = append(e.messages, placeholder)
	e.status = StatusStreaming

	log.Printf("SEND_START | chat=%s placeholder=%s model=%s", e.chatID, placeholder.ID, e.selectedModel)
	return &Ticket{
		PlaceholderID: placeholder.ID,
		Request: api.MessageRequest{
			Message:       text,
			ChatID:        e.chatID,
			UserID:        e.userID(),
			SelectedModel: e.selectedModel,
		},
	}, nil
}

// Reload prepares a resend of the most recent user message. Prior
// messages are kept; a fresh placeholder is appended for the new reply.
func (e *Engine) Reload() (*Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusReady {
		return nil, ErrBusy
	}
	var last *model.Message
	for i := len(e.messages) - 1; i >= 0; i-- {
		if e.messages[i].Role == model.RoleUser {
			last = e.messages[i]
			break
		}
	}
	if last == nil {
		return nil, ErrNoUserMessage
	}

	placeholder := model.NewPlaceholderMessage(PlaceholderText)
	e.messages = append(e.messages, placeholder)
	e.status = StatusStreaming

	log.Printf("SEND_RELOAD | chat=%s placeholder=%s", e.chatID, placeholder.ID)
	return &Ticket{
		PlaceholderID: placeholder.ID,
		Request: api.MessageRequest{
			Message:       last.Text(),
			ChatID:        e.chatID,
			UserID:        e.userID(),
			SelectedModel: e.selectedModel,
		},
	}, nil
}

// Stop force-returns the engine to ready. It does not cancel the
// in-flight request: a late response still resolves against its
// placeholder if that placeholder is live. Stop only unblocks new input.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusReady {
		log.Printf("ENGINE_STOPPED | chat=%s from=%s", e.chatID, e.status)
	}
	e.status = StatusReady
}

// BootstrapQuery performs the one-shot synthetic send for a conversation
// opened with inbound query text. It fires at most once per engine, so a
// caller that re-runs its mount path cannot resend; (nil, nil) means
// there was nothing to do.
func (e *Engine) BootstrapQuery(text string) (*Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bootstrapped {
		return nil, nil
	}
	e.bootstrapped = true
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return e.sendLocked(text)
}

// =============================================================================
// RESOLVE
// =============================================================================

// Resolve applies a settled backend call to the timeline and reports
// whether it changed state. A false return means the caller should not
// surface anything either (no notice, no focus change).
//
// Stale guard: a ticket whose placeholder is no longer live (already
// finalized, or never existed in this timeline) is dropped without any
// state change: a superseded response must be a no-op.
//
// On success the placeholder is finalized in place (or, for a
// confirmation reply, the assistant message is appended), a non-empty
// button list raises a confirmation, status returns to ready, and a
// history invalidation scoped to the sending user is emitted. On failure
// the placeholder becomes the fixed failure text, the reason is surfaced
// through the notify callback, and the engine settles back to ready.
func (e *Engine) Resolve(t *Ticket, resp *api.MessageResponse, sendErr error) bool {
	e.mu.Lock()

	var placeholder *model.Message
	if t.PlaceholderID != "" {
		placeholder = e.livePlaceholder(t.PlaceholderID)
		if placeholder == nil {
			e.mu.Unlock()
			log.Printf("STALE_RESPONSE_DROPPED | chat=%s placeholder=%s", e.chatID, t.PlaceholderID)
			return false
		}
	}

	if sendErr != nil {
		if placeholder != nil {
			placeholder.Finalize(SendFailureText)
		}
		e.status = StatusError
		reason := api.DetailOf(sendErr, "응답을 받지 못했습니다.")
		notify := e.notify
		e.status = StatusReady
		e.mu.Unlock()

		log.Printf("SEND_FAILED | chat=%s error=%v", e.chatID, sendErr)
		notify(reason)
		return true
	}

	if placeholder != nil {
		placeholder.Finalize(resp.Response)
	} else {
		e.messages = append(e.messages, model.NewAssistantMessage(resp.Response))
	}

	// A confirmation is raised only off a plain send; a reply to a
	// confirmation never chains into another one.
	if len(resp.Buttons) > 0 && t.Request.ActionResponse == "" {
		e.pending = &model.Confirmation{
			OriginalMessage: resp.Response,
			Choices:         append([]model.Choice(nil), resp.Buttons...),
		}
		log.Printf("CONFIRMATION_RAISED | chat=%s choices=%d", e.chatID, len(resp.Buttons))
	}

	e.status = StatusReady
	cache := e.cache
	userID := t.Request.UserID
	e.mu.Unlock()

	log.Printf("SEND_OK | chat=%s", e.chatID)
	if cache != nil {
		cache.Invalidate(userID)
	}
	return true
}

// livePlaceholder finds the unfinalized placeholder with the given id.
func (e *Engine) livePlaceholder(id string) *model.Message {
	for i := len(e.messages) - 1; i >= 0; i-- {
		if m := e.messages[i]; m.ID == id && m.Placeholder {
			return m
		}
	}
	return nil
}

// Dispatch performs the backend call for a ticket and resolves it. This
// is the synchronous path used by the REPL; the TUI uses SendCmd instead.
func (e *Engine) Dispatch(ctx context.Context, t *Ticket) error {
	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	resp, err := e.client.SendMessage(ctx, e.token(), t.Request)
	e.Resolve(t, resp, err)
	return err
}

// =============================================================================
// IDENTITY
// =============================================================================

// userID is the caller identity carried on sends, or the guest sentinel
// when no session is established.
func (e *Engine) userID() string {
	if e.session == nil {
		return model.GuestUserID
	}
	id := e.session.CurrentIdentity()
	if id == nil {
		return model.GuestUserID
	}
	return id.User.ID
}

func (e *Engine) token() string {
	if e.session == nil {
		return ""
	}
	return e.session.Token()
}
