// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatterm/internal/api"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// SendResultMsg carries a settled backend send back into the update loop.
// Feed it to Engine.Resolve.
type SendResultMsg struct {
	Ticket *Ticket
	Resp   *api.MessageResponse
	Err    error
}

// HistoryChangedMsg signals that the chat list changed somewhere; it
// carries no payload; listeners refetch rather than read data from it.
type HistoryChangedMsg struct{}

// NotifyMsg is a transient user-visible notice.
type NotifyMsg struct {
	Text string
}

// =============================================================================
// COMMANDS
// =============================================================================

// SendCmd performs the backend call for a ticket off the update loop and
// returns the result as a SendResultMsg.
func (e *Engine) SendCmd(t *Ticket) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
		defer cancel()

		resp, err := e.client.SendMessage(ctx, e.token(), t.Request)
		return SendResultMsg{Ticket: t, Resp: resp, Err: err}
	}
}

// WaitForHistory blocks on a history-bus subscription and converts the
// next notification into a HistoryChangedMsg. Re-issue it after each
// receipt to keep listening.
func WaitForHistory(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return HistoryChangedMsg{}
	}
}
