// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styled components for the interface, adjusted to the
// terminal's color capability.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Header   lipgloss.Style
	Brand    lipgloss.Style
	StatusOK lipgloss.Style
	StatusHi lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Placeholder    lipgloss.Style
	ErrorText      lipgloss.Style
	Notice         lipgloss.Style

	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style

	InputBox     lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	ConfirmBox      lipgloss.Style
	ConfirmQuestion lipgloss.Style
	ButtonActive    lipgloss.Style
	ButtonInactive  lipgloss.Style
}

// NewTheme builds a theme for the requested mode: "dark", "light", or
// "auto" (detect from the terminal background).
func NewTheme(mode string) *Theme {
	isDark := mode != "light"
	if mode == "auto" {
		isDark = termenv.HasDarkBackground()
	}

	accent := lipgloss.Color("#7D56F4")
	subtle := lipgloss.Color("#6C6C6C")
	body := lipgloss.Color("#FAFAFA")
	errRed := lipgloss.Color("#FF5F5F")
	if !isDark {
		accent = lipgloss.Color("#5A3FC0")
		subtle = lipgloss.Color("#8A8A8A")
		body = lipgloss.Color("#1A1A1A")
		errRed = lipgloss.Color("#D70000")
	}

	border := lipgloss.RoundedBorder()
	return &Theme{
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),

		Header:   lipgloss.NewStyle().Foreground(body).Bold(true),
		Brand:    lipgloss.NewStyle().Foreground(accent).Bold(true),
		StatusOK: lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD700")),
		StatusHi: lipgloss.NewStyle().Foreground(accent),

		UserLabel:      lipgloss.NewStyle().Foreground(accent).Bold(true),
		AssistantLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("#00AFAF")).Bold(true),
		Placeholder:    lipgloss.NewStyle().Foreground(subtle).Italic(true),
		ErrorText:      lipgloss.NewStyle().Foreground(errRed),
		Notice:         lipgloss.NewStyle().Foreground(errRed).Bold(true),

		Sidebar:         lipgloss.NewStyle().Border(border, false, true, false, false).BorderForeground(subtle).PaddingRight(1),
		SidebarTitle:    lipgloss.NewStyle().Foreground(accent).Bold(true).Underline(true),
		SidebarItem:     lipgloss.NewStyle().Foreground(body),
		SidebarSelected: lipgloss.NewStyle().Foreground(accent).Bold(true),

		InputBox:     lipgloss.NewStyle().Border(border).BorderForeground(subtle).Padding(0, 1),
		ShortcutKey:  lipgloss.NewStyle().Foreground(accent),
		ShortcutDesc: lipgloss.NewStyle().Foreground(subtle),

		ConfirmBox:      lipgloss.NewStyle().Border(border).BorderForeground(accent).Padding(1, 2),
		ConfirmQuestion: lipgloss.NewStyle().Foreground(body).Bold(true),
		ButtonActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(accent).Padding(0, 2).Bold(true),
		ButtonInactive:  lipgloss.NewStyle().Foreground(subtle).Padding(0, 2),
	}
}
