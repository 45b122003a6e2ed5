// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// ChatSummary is one row of the user's chat history sidebar.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    string    `json:"userId"`
}

// ChatModel describes a selectable inference model.
type ChatModel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultChatModel is used when no model was picked explicitly.
const DefaultChatModel = "gemma3:4b"

// FallbackChatModels is served when the backend's model list is
// unreachable. Model-list failures degrade silently to this list.
var FallbackChatModels = []ChatModel{
	{
		ID:          "gemma3:4b",
		Name:        "Gemma 3 4B",
		Description: "Default model",
	},
	{
		ID:          "llama3.2:3b",
		Name:        "Llama 3.2 3B",
		Description: "Lightweight fallback model",
	},
}
