// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/history"
	"github.com/jeranaias/chatterm/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(api.NewClient("http://localhost:0"), nil, nil, "chat-1")
}

// sessionFor builds an established session for the given user id.
func sessionFor(t *testing.T, userID string) *auth.Session {
	t.Helper()
	client := api.NewClient("http://localhost:0")
	sess := auth.NewSession(client, auth.NewCredentialStore(t.TempDir()))
	err := sess.Establish(auth.Identity{
		Token: "tok-" + userID,
		User:  model.User{ID: userID, Email: userID + "@example.com"},
	}, nil)
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	return sess
}

func TestSendAppendsUserAndPlaceholder(t *testing.T) {
	e := newTestEngine(t)

	ticket, err := e.Send("hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "hello" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if !msgs[1].Placeholder || msgs[1].Content != PlaceholderText {
		t.Errorf("placeholder = %+v", msgs[1])
	}
	if ticket.PlaceholderID != msgs[1].ID {
		t.Error("ticket must reference the appended placeholder")
	}
	if e.Status() != StatusStreaming {
		t.Errorf("status = %s, want streaming", e.Status())
	}
	if ticket.Request.UserID != model.GuestUserID {
		t.Errorf("sessionless send must carry the guest sentinel, got %q", ticket.Request.UserID)
	}
}

func TestSendRejectsEmptyAndWhitespace(t *testing.T) {
	e := newTestEngine(t)

	for _, input := range []string{"", "   ", "\n\t "} {
		if _, err := e.Send(input); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) err = %v, want ErrEmptyMessage", input, err)
		}
	}
	if len(e.Messages()) != 0 {
		t.Error("rejected sends must not touch the timeline")
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s", e.Status())
	}
}

func TestSendRejectsWhileInFlight(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Send("first"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := e.Send("second"); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping send err = %v, want ErrBusy", err)
	}
	if len(e.Messages()) != 2 {
		t.Error("rejected send must not append")
	}
}

func TestSendNormalizesInput(t *testing.T) {
	e := newTestEngine(t)

	// Decomposed Hangul "한" (U+1112 U+1161 U+11AB) must arrive composed.
	ticket, err := e.Send("한")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ticket.Request.Message != "한" {
		t.Errorf("message = %q, want composed form", ticket.Request.Message)
	}
}

// The hello/hi-there cycle: placeholder replaced in place, status settles
// to ready, and a history invalidation scoped to the sending user fires.
func TestResolveSuccessReplacesPlaceholder(t *testing.T) {
	bus := history.NewBus()
	cache := history.NewCache(bus)
	key := history.Key{Endpoint: history.Endpoint, UserID: "u1", Cursor: ""}
	cache.Put(key, []model.ChatSummary{{ID: "c1", UserID: "u1"}})

	notified, cancel := bus.Subscribe()
	defer cancel()

	sess := sessionFor(t, "u1")
	e := New(api.NewClient("http://localhost:0"), sess, cache, "chat-1")

	ticket, err := e.Send("hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ticket.Request.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", ticket.Request.UserID)
	}
	placeholderID := ticket.PlaceholderID

	e.Resolve(ticket, &api.MessageResponse{Response: "hi there"}, nil)

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (replace, not append)", len(msgs))
	}
	if msgs[1].ID != placeholderID || msgs[1].Content != "hi there" || msgs[1].Placeholder {
		t.Errorf("placeholder after resolve = %+v", msgs[1])
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s, want ready", e.Status())
	}
	if _, ok := cache.Get(key); ok {
		t.Error("u1's history entry must be invalidated after a successful send")
	}
	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Error("expected a history-changed broadcast")
	}
}

func TestResolveFailureUsesFixedTextAndSettles(t *testing.T) {
	e := newTestEngine(t)

	var notice string
	e.WithNotify(func(reason string) { notice = reason })

	ticket, err := e.Send("hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	e.Resolve(ticket, nil, &api.Error{Status: 429, Detail: "요청이 너무 많습니다"})

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (no duplicate on failure)", len(msgs))
	}
	if msgs[1].Content != SendFailureText || msgs[1].Placeholder {
		t.Errorf("failed placeholder = %+v", msgs[1])
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s, want ready (error is not sticky)", e.Status())
	}
	if notice != "요청이 너무 많습니다" {
		t.Errorf("notice = %q", notice)
	}

	// The next send is always permitted.
	if _, err := e.Send("again"); err != nil {
		t.Errorf("send after failure rejected: %v", err)
	}
}

func TestResolveStaleResponseIsNoOp(t *testing.T) {
	e := newTestEngine(t)

	ticket, err := e.Send("hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !e.Resolve(ticket, &api.MessageResponse{Response: "first"}, nil) {
		t.Fatal("live resolve must report that it applied")
	}

	before := e.Messages()

	// The same ticket settling a second time must not mutate anything:
	// its placeholder is already finalized.
	if e.Resolve(ticket, &api.MessageResponse{Response: "late duplicate"}, nil) {
		t.Error("stale success resolve must report not applied")
	}
	if e.Resolve(ticket, nil, errors.New("late failure")) {
		t.Error("stale failure resolve must report not applied")
	}

	after := e.Messages()
	if len(after) != len(before) {
		t.Fatalf("stale resolve changed message count: %d -> %d", len(before), len(after))
	}
	if after[1].Content != "first" {
		t.Errorf("stale resolve rewrote content: %q", after[1].Content)
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s", e.Status())
	}
}

func TestMessagesOnlyGrow(t *testing.T) {
	e := newTestEngine(t)

	prev := 0
	step := func() {
		n := len(e.Messages())
		if n < prev {
			t.Fatalf("message count shrank: %d -> %d", prev, n)
		}
		prev = n
	}

	t1, _ := e.Send("one")
	step()
	e.Resolve(t1, &api.MessageResponse{Response: "ok"}, nil)
	step()

	t2, _ := e.Send("two")
	step()
	e.Resolve(t2, nil, errors.New("boom"))
	step()

	t3, _ := e.Reload()
	step()
	e.Resolve(t3, &api.MessageResponse{Response: "retried"}, nil)
	step()

	if e.Status() != StatusReady {
		t.Errorf("status = %s, want ready after every settled cycle", e.Status())
	}
}

func TestReloadResendsLastUserMessage(t *testing.T) {
	e := newTestEngine(t)

	t1, _ := e.Send("original question")
	e.Resolve(t1, nil, errors.New("network down"))

	t2, err := e.Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if t2.Request.Message != "original question" {
		t.Errorf("reload message = %q", t2.Request.Message)
	}

	msgs := e.Messages()
	if got := msgs[len(msgs)-1]; !got.Placeholder {
		t.Error("reload must append a fresh placeholder")
	}

	e.Resolve(t2, &api.MessageResponse{Response: "better answer"}, nil)
	msgs = e.Messages()
	if msgs[len(msgs)-1].Content != "better answer" {
		t.Errorf("last = %+v", msgs[len(msgs)-1])
	}
	// The failed attempt's messages are still present.
	if msgs[1].Content != SendFailureText {
		t.Errorf("prior failure message must be kept, got %q", msgs[1].Content)
	}
}

func TestReloadRequiresUserMessage(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Reload(); !errors.Is(err, ErrNoUserMessage) {
		t.Errorf("err = %v, want ErrNoUserMessage", err)
	}
}

func TestStopUnblocksWithoutCancelling(t *testing.T) {
	e := newTestEngine(t)

	ticket, _ := e.Send("slow question")
	e.Stop()
	if e.Status() != StatusReady {
		t.Fatalf("status = %s after stop", e.Status())
	}

	// Stop is not cancellation: the placeholder is still live, so the
	// eventual response still lands in its slot.
	e.Resolve(ticket, &api.MessageResponse{Response: "late but valid"}, nil)
	msgs := e.Messages()
	if msgs[1].Content != "late but valid" {
		t.Errorf("late response dropped: %+v", msgs[1])
	}
}

func TestBootstrapQueryFiresOnce(t *testing.T) {
	e := newTestEngine(t)

	ticket, err := e.BootstrapQuery("seed question")
	if err != nil || ticket == nil {
		t.Fatalf("first bootstrap = %v, %v", ticket, err)
	}
	e.Resolve(ticket, &api.MessageResponse{Response: "ok"}, nil)

	again, err := e.BootstrapQuery("seed question")
	if err != nil || again != nil {
		t.Errorf("second bootstrap must be a no-op, got %v, %v", again, err)
	}
	if len(e.Messages()) != 2 {
		t.Errorf("messages = %d", len(e.Messages()))
	}
}

func TestSeedMessages(t *testing.T) {
	e := newTestEngine(t)
	e.SeedMessages([]*model.Message{
		model.NewUserMessage("earlier"),
		model.NewAssistantMessage("reply"),
	})
	if len(e.Messages()) != 2 {
		t.Fatalf("messages = %d", len(e.Messages()))
	}

	// Seeding after the timeline has content is ignored.
	e.SeedMessages([]*model.Message{model.NewUserMessage("dupe")})
	if len(e.Messages()) != 2 {
		t.Error("second seed must be ignored")
	}
}

func TestDispatchAgainstBackend(t *testing.T) {
	var got api.MessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/message" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(api.MessageResponse{Response: "echo: " + got.Message})
	}))
	defer srv.Close()

	e := New(api.NewClient(srv.URL), nil, nil, "chat-9")
	ticket, err := e.Send("ping")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := e.Dispatch(context.Background(), ticket); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if got.ChatID != "chat-9" || got.SelectedModel != model.DefaultChatModel {
		t.Errorf("request = %+v", got)
	}
	msgs := e.Messages()
	if msgs[1].Content != "echo: ping" {
		t.Errorf("reply = %q", msgs[1].Content)
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s", e.Status())
	}
}
