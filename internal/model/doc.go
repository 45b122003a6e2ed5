// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared across the chatterm
// client: messages and their content parts, user identities, confirmation
// prompts, chat summaries and the selectable model list.
package model
