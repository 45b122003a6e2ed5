// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses command-line arguments and implements the
// non-TUI entry points of chatterm: the line-based chat REPL, the
// one-shot ask command, and the auth commands (login, register,
// guest, signout).
//
// The TUI itself lives in internal/ui; the local gateway in
// internal/server. This package only decides which of those to run
// and drives the simpler text-mode flows.
package cli
