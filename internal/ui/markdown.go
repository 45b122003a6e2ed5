// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// Renderer turns assistant markdown into styled terminal output.
type Renderer struct {
	enabled bool
	width   int
	tr      *glamour.TermRenderer
}

// NewRenderer builds a renderer for the given wrap width. When markdown
// is disabled, or glamour cannot initialize for this terminal, Render
// degrades to plain text.
func NewRenderer(enabled bool, width int) *Renderer {
	r := &Renderer{enabled: enabled, width: width}
	if !enabled {
		return r
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		r.enabled = false
		return r
	}
	r.tr = tr
	return r
}

// Render formats assistant content. When glamour is unavailable the
// prose passes through as plain text with fenced code blocks colored
// directly; a response must never be lost to a styling bug.
func (r *Renderer) Render(content string) string {
	if !r.enabled || r.tr == nil {
		return highlightFenced(content)
	}
	out, err := r.tr.Render(content)
	if err != nil {
		return highlightFenced(content)
	}
	return strings.TrimRight(out, "\n")
}

// highlightFenced colors fenced code blocks in otherwise plain output.
// Prose lines are untouched; an unterminated fence is emitted verbatim.
func highlightFenced(content string) string {
	if !strings.Contains(content, "```") {
		return content
	}

	var out strings.Builder
	var block []string
	lang := ""
	inBlock := false

	for _, line := range strings.Split(content, "\n") {
		switch {
		case !inBlock && strings.HasPrefix(line, "```"):
			inBlock = true
			lang = strings.TrimSpace(strings.TrimPrefix(line, "```"))
			block = block[:0]
		case inBlock && strings.HasPrefix(line, "```"):
			inBlock = false
			out.WriteString(strings.TrimRight(HighlightCode(strings.Join(block, "\n"), lang), "\n"))
			out.WriteString("\n")
		case inBlock:
			block = append(block, line)
		default:
			out.WriteString(line)
			out.WriteString("\n")
		}
	}

	if inBlock {
		out.WriteString("```" + lang + "\n")
		out.WriteString(strings.Join(block, "\n"))
		return out.String()
	}
	return strings.TrimSuffix(out.String(), "\n")
}

// HighlightCode renders a standalone code snippet with syntax coloring,
// falling back to the raw source when the language is unknown.
func HighlightCode(source, lang string) string {
	var sb strings.Builder
	if err := quick.Highlight(&sb, source, lang, "terminal256", "monokai"); err != nil {
		return source
	}
	return sb.String()
}
