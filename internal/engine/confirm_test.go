// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"errors"
	"testing"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/model"
)

var yesNo = []model.Choice{
	{Label: "Yes", Value: "yes"},
	{Label: "No", Value: "no"},
}

// raiseConfirmation runs one plain send whose response carries buttons.
func raiseConfirmation(t *testing.T, e *Engine) {
	t.Helper()
	ticket, err := e.Send("delete everything")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	e.Resolve(ticket, &api.MessageResponse{Response: "Proceed?", Buttons: yesNo}, nil)
}

func TestButtonsRaiseConfirmation(t *testing.T) {
	e := newTestEngine(t)
	raiseConfirmation(t, e)

	pending := e.PendingConfirmation()
	if pending == nil {
		t.Fatal("expected a pending confirmation")
	}
	if pending.OriginalMessage != "Proceed?" {
		t.Errorf("original = %q", pending.OriginalMessage)
	}
	if len(pending.Choices) != 2 || pending.Choices[0].Value != "yes" {
		t.Errorf("choices = %+v", pending.Choices)
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s", e.Status())
	}
}

func TestChooseYes(t *testing.T) {
	e := newTestEngine(t)
	raiseConfirmation(t, e)
	before := len(e.Messages())

	ticket, err := e.Choose("yes")
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}

	// A synthetic user message with the mapped label, not the raw value.
	msgs := e.Messages()
	if len(msgs) != before+1 {
		t.Fatalf("messages = %d, want %d", len(msgs), before+1)
	}
	last := msgs[len(msgs)-1]
	if last.Role != model.RoleUser || last.Content != "예" {
		t.Errorf("choice message = %+v", last)
	}

	// The follow-up send carries the original assistant text plus the
	// chosen value in the dedicated action-response field.
	if ticket.Request.Message != "Proceed?" || ticket.Request.ActionResponse != "yes" {
		t.Errorf("request = %+v", ticket.Request)
	}
	if ticket.PlaceholderID != "" {
		t.Error("confirmation replies do not use a placeholder")
	}
	if e.PendingConfirmation() != nil {
		t.Error("confirmation must be cleared on choose")
	}
	if e.Status() != StatusSubmitted {
		t.Errorf("status = %s, want submitted", e.Status())
	}

	// The reply appends a new assistant message.
	e.Resolve(ticket, &api.MessageResponse{Response: "완료되었습니다"}, nil)
	msgs = e.Messages()
	if msgs[len(msgs)-1].Content != "완료되었습니다" {
		t.Errorf("last = %+v", msgs[len(msgs)-1])
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s", e.Status())
	}
}

func TestChooseNoMapsLabel(t *testing.T) {
	e := newTestEngine(t)
	raiseConfirmation(t, e)

	if _, err := e.Choose("no"); err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	msgs := e.Messages()
	if got := msgs[len(msgs)-1].Content; got != "아니오" {
		t.Errorf("content = %q, want 아니오", got)
	}
}

func TestChooseUnknownValue(t *testing.T) {
	e := newTestEngine(t)
	raiseConfirmation(t, e)

	if _, err := e.Choose("maybe"); !errors.Is(err, ErrUnknownChoice) {
		t.Errorf("err = %v, want ErrUnknownChoice", err)
	}
	if e.PendingConfirmation() == nil {
		t.Error("a bad value must not consume the confirmation")
	}
}

func TestChooseWithoutPending(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Choose("yes"); !errors.Is(err, ErrNoConfirmation) {
		t.Errorf("err = %v, want ErrNoConfirmation", err)
	}
}

// Typing ordinary text while a confirmation is pending abandons it
// unresolved. This is deliberate: any change here must be a conscious
// product decision, not an accident.
func TestSendAbandonsPendingConfirmation(t *testing.T) {
	e := newTestEngine(t)
	raiseConfirmation(t, e)

	ticket, err := e.Send("actually, something else")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if e.PendingConfirmation() != nil {
		t.Error("pending confirmation must be abandoned on a plain send")
	}
	if ticket.Request.ActionResponse != "" {
		t.Error("an abandoning send must not carry an action response")
	}
}

func TestAtMostOneConfirmation(t *testing.T) {
	e := newTestEngine(t)
	raiseConfirmation(t, e)
	raiseConfirmation(t, e) // abandons the first, raises a second

	pending := e.PendingConfirmation()
	if pending == nil {
		t.Fatal("expected the replacement confirmation")
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s", e.Status())
	}
}

// A reply to a confirmation never chains into another confirmation, even
// if the backend echoes buttons back.
func TestConfirmationReplyCannotChain(t *testing.T) {
	e := newTestEngine(t)
	raiseConfirmation(t, e)

	ticket, err := e.Choose("yes")
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	e.Resolve(ticket, &api.MessageResponse{Response: "Again?", Buttons: yesNo}, nil)

	if e.PendingConfirmation() != nil {
		t.Error("confirmation replies must not raise a new confirmation")
	}
}

func TestChooseFailureLeavesMessagesIntact(t *testing.T) {
	e := newTestEngine(t)
	raiseConfirmation(t, e)

	var notice string
	e.WithNotify(func(reason string) { notice = reason })

	ticket, err := e.Choose("yes")
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	before := len(e.Messages())

	e.Resolve(ticket, nil, errors.New("connection reset"))

	// No placeholder existed, so nothing is replaced and nothing is
	// appended; the failure only surfaces as a notice.
	if got := len(e.Messages()); got != before {
		t.Errorf("messages = %d, want %d", got, before)
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %s", e.Status())
	}
	if notice == "" {
		t.Error("expected a failure notice")
	}
}
