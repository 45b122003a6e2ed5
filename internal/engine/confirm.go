// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"errors"
	"log"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/model"
)

// =============================================================================
// CONFIRMATION PROTOCOL
// =============================================================================

var (
	ErrNoConfirmation = errors.New("no confirmation pending")
	ErrUnknownChoice  = errors.New("value does not match a pending choice")
)

// PendingConfirmation returns a copy of the outstanding confirmation, or
// nil. At most one exists at any time.
func (e *Engine) PendingConfirmation() *model.Confirmation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	c := *e.pending
	c.Choices = append([]model.Choice(nil), e.pending.Choices...)
	return &c
}

// Choose resolves the pending confirmation with one of its choices.
//
// It appends a user message carrying the choice's display label, clears
// the confirmation, transitions to submitted, and returns a ticket whose
// request carries the original assistant text plus the chosen value in
// the action-response field (a dedicated field, not user text), so the
// backend can tell a confirmation reply from new conversation content.
func (e *Engine) Choose(value string) (*Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil {
		return nil, ErrNoConfirmation
	}
	if e.status != StatusReady {
		return nil, ErrBusy
	}
	choice, ok := e.pending.Find(value)
	if !ok {
		return nil, ErrUnknownChoice
	}

	e.messages = append(e.messages, model.NewUserMessage(model.DisplayLabel(choice)))
	original := e.pending.OriginalMessage
	e.pending = nil
	e.status = StatusSubmitted

	log.Printf("CONFIRMATION_RESOLVED | chat=%s value=%s", e.chatID, choice.Value)
	return &Ticket{
		Request: api.MessageRequest{
			Message:        original,
			ChatID:         e.chatID,
			UserID:         e.userID(),
			SelectedModel:  e.selectedModel,
			ActionResponse: choice.Value,
		},
	}, nil
}
