// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine implements the conversation state machine: the message
// timeline for one chat, optimistic placeholder replacement, the
// confirmation sub-protocol, and the history invalidation signals that
// keep sidebar views honest.
//
// # State Machine
//
// Status moves ready → streaming → ready for a plain send (a placeholder
// assistant message is appended immediately and later replaced in place),
// and ready → submitted → ready for a confirmation reply (no placeholder;
// the assistant reply is appended when it arrives). A failed send passes
// through error before settling back to ready; error is never sticky.
//
// # Split Send
//
// Sends are split into two phases so the UI loop stays single-writer:
// Send/Choose/Reload mutate local state synchronously and return a Ticket
// describing the backend request; the caller performs the network call
// (directly via Dispatch, or asynchronously via SendCmd) and feeds the
// outcome back through Resolve. Resolve guards on the ticket's placeholder
// id: a response arriving for a placeholder that is no longer live is
// dropped without touching state.
//
// # Key Types
//
//   - Engine: per-conversation state machine
//   - Ticket: one prepared backend send awaiting resolution
//   - SendResultMsg: Bubble Tea message carrying a settled send
package engine
