// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/util"
)

// =============================================================================
// SIDEBAR
// =============================================================================

// Sidebar lists the user's chats and supports optimistic renames: the
// displayed title changes immediately and rolls back if the backend
// rejects the update.
type Sidebar struct {
	chats    []model.ChatSummary
	selected int

	// rename state
	renaming   bool
	renameBuf  string
	renameID   string
	priorTitle string

	width  int
	height int
}

// SetChats replaces the chat list, clamping the selection.
func (s *Sidebar) SetChats(chats []model.ChatSummary) {
	s.chats = chats
	if s.selected >= len(chats) {
		s.selected = len(chats) - 1
	}
	if s.selected < 0 {
		s.selected = 0
	}
}

// Chats returns the current list.
func (s *Sidebar) Chats() []model.ChatSummary {
	return s.chats
}

// Selected returns the highlighted chat, if any.
func (s *Sidebar) Selected() (model.ChatSummary, bool) {
	if len(s.chats) == 0 {
		return model.ChatSummary{}, false
	}
	return s.chats[s.selected], true
}

// Move shifts the selection by delta, clamped to the list.
func (s *Sidebar) Move(delta int) {
	s.selected += delta
	if s.selected < 0 {
		s.selected = 0
	}
	if s.selected >= len(s.chats) {
		s.selected = len(s.chats) - 1
	}
}

// SetSize updates the rendering bounds.
func (s *Sidebar) SetSize(width, height int) {
	s.width = width
	s.height = height
}

// =============================================================================
// RENAME
// =============================================================================

// BeginRename enters rename mode for the selected chat.
func (s *Sidebar) BeginRename() bool {
	sel, ok := s.Selected()
	if !ok {
		return false
	}
	s.renaming = true
	s.renameID = sel.ID
	s.priorTitle = sel.Title
	s.renameBuf = sel.Title
	return true
}

// Renaming reports whether rename mode is active.
func (s *Sidebar) Renaming() bool {
	return s.renaming
}

// RenameInput mutates the rename buffer from a key press. Printable
// runes append; backspace deletes.
func (s *Sidebar) RenameInput(r rune, backspace bool) {
	if backspace {
		runes := []rune(s.renameBuf)
		if len(runes) > 0 {
			s.renameBuf = string(runes[:len(runes)-1])
		}
		return
	}
	s.renameBuf += string(r)
}

// CommitRename applies the buffered title optimistically and returns the
// chat id and new title for the backend call. The prior title is kept
// for rollback.
func (s *Sidebar) CommitRename() (chatID, title string, ok bool) {
	if !s.renaming {
		return "", "", false
	}
	s.renaming = false
	title = strings.TrimSpace(s.renameBuf)
	if title == "" || title == s.priorTitle {
		return "", "", false
	}
	s.applyTitle(s.renameID, title)
	return s.renameID, title, true
}

// CancelRename leaves rename mode without changes.
func (s *Sidebar) CancelRename() {
	s.renaming = false
}

// RollbackRename restores the pre-edit title after a failed update.
func (s *Sidebar) RollbackRename(chatID string) {
	if chatID == s.renameID {
		s.applyTitle(chatID, s.priorTitle)
	}
}

func (s *Sidebar) applyTitle(chatID, title string) {
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			s.chats[i].Title = title
			return
		}
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the sidebar.
func (s *Sidebar) View(theme *Theme, focused bool) string {
	var b strings.Builder
	b.WriteString(theme.SidebarTitle.Render("대화 목록"))
	b.WriteString("\n")

	if len(s.chats) == 0 {
		b.WriteString(theme.Placeholder.Render("(no chats)"))
		return theme.Sidebar.Render(b.String())
	}

	maxTitle := s.width - 4
	if maxTitle < 8 {
		maxTitle = 8
	}
	for i, chat := range s.chats {
		title := chat.Title
		if title == "" {
			title = chat.ID
		}
		if s.renaming && chat.ID == s.renameID {
			title = s.renameBuf + "▏"
		}
		line := util.TruncateWidth(title, maxTitle)
		if i == s.selected && focused {
			line = theme.SidebarSelected.Render(fmt.Sprintf("> %s", line))
		} else {
			line = theme.SidebarItem.Render(fmt.Sprintf("  %s", line))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return theme.Sidebar.Render(b.String())
}
