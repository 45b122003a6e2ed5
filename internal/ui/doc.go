// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the Bubble Tea terminal interface for chatterm.
//
// The interface is a chat view (viewport + textarea + spinner) with a
// collapsible sidebar listing the user's chats, a model picker, and a
// confirmation prompt overlay for server-issued yes/no questions.
//
// All conversation state lives in the engine; the UI renders engine
// state and translates key presses into engine calls. Backend traffic
// runs off the update loop through engine commands.
package ui
