// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in the conversation timeline.
//
// A message may start life as a loading placeholder: a provisional assistant
// message appended immediately when the user sends, later replaced in place
// once the real response arrives. Its position in the timeline is fixed at
// creation; only its content is replaced, never its slot. Once Placeholder
// is false the message is immutable.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt"`

	// Placeholder marks a provisional assistant message awaiting its
	// backend response. Replacement is only legal while this is true.
	Placeholder bool `json:"-"`

	// Attachments carried by user messages (files, images).
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Part is one typed content fragment of a message.
type Part struct {
	Type string `json:"type"` // currently always "text"
	Text string `json:"text"`
}

// Attachment references uploaded content attached to a user message.
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// NewUserMessage creates a finalized user message with a generated ID.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Parts:     []Part{{Type: "text", Text: content}},
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates a finalized assistant message with a
// generated ID.
func NewAssistantMessage(content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Parts:     []Part{{Type: "text", Text: content}},
		CreatedAt: time.Now(),
	}
}

// NewPlaceholderMessage creates a provisional assistant message shown while
// a send is in flight.
func NewPlaceholderMessage(content string) *Message {
	msg := NewAssistantMessage(content)
	msg.Placeholder = true
	return msg
}

// Finalize replaces the placeholder's content with the real response text
// and freezes the message. Calling Finalize on a non-placeholder message is
// a no-op: finalized messages are immutable.
func (m *Message) Finalize(content string) bool {
	if !m.Placeholder {
		return false
	}
	m.Content = content
	m.Parts = []Part{{Type: "text", Text: content}}
	m.Placeholder = false
	return true
}

// Text returns the concatenated text of all text parts, falling back to
// Content for messages without parts.
func (m *Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	out := ""
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}
