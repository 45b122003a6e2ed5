// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Line-based chat REPL for plain terminals.
//
// USABILITY: readline-style editing with persistent input history
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/engine"
	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/ui"
)

// replHistoryFile is the input-history file name under the config dir.
const replHistoryFile = "repl_history"

// REPL is the line-based chat loop used when a full-screen TUI is
// unwanted or unavailable.
type REPL struct {
	line     *liner.State
	client   *api.Client
	session  *auth.Session
	eng      *engine.Engine
	renderer *ui.Renderer
	histPath string
	quiet    bool
}

// NewREPL creates the REPL and loads persisted input history.
func NewREPL(cfg *config.Config, client *api.Client, session *auth.Session, eng *engine.Engine, quiet bool) *REPL {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	histPath := ""
	if dir, err := config.Dir(); err == nil {
		histPath = filepath.Join(dir, replHistoryFile)
	}

	r := &REPL{
		line:     line,
		client:   client,
		session:  session,
		eng:      eng,
		renderer: ui.NewRenderer(cfg.UI.Markdown && IsStdoutTTY(), TerminalWidth()),
		histPath: histPath,
		quiet:    quiet,
	}
	r.loadHistory()
	return r
}

// Close persists input history and restores the terminal.
func (r *REPL) Close() {
	r.saveHistory()
	r.line.Close()
}

func (r *REPL) loadHistory() {
	if r.histPath == "" {
		return
	}
	f, err := os.Open(r.histPath)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.ReadHistory(f)
}

func (r *REPL) saveHistory() {
	if r.histPath == "" {
		return
	}
	// SECURITY: history may contain message text, keep it owner-only
	f, err := os.OpenFile(r.histPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Run executes the read-send-print loop until the user exits.
func (r *REPL) Run(ctx context.Context) error {
	if !r.quiet {
		fmt.Printf("chatterm %s — model %s. Type /help for commands, /exit to quit.\n\n", Version, r.eng.SelectedModel())
	}

	for {
		input, err := r.line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if done := r.handleSlash(ctx, input); done {
				return nil
			}
			continue
		}

		r.send(ctx, input)
	}
}

// handleSlash processes slash commands. Returns true when the loop
// should terminate.
func (r *REPL) handleSlash(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "/exit", "/quit", "/q":
		return true

	case "/help", "/?":
		fmt.Println("Commands:")
		fmt.Println("  /model [name]   Show or switch the model")
		fmt.Println("  /models         List available models")
		fmt.Println("  /reload         Regenerate the last reply")
		fmt.Println("  /history        List recent conversations")
		fmt.Println("  /whoami         Show the current identity")
		fmt.Println("  /exit           Quit")

	case "/model":
		if len(fields) > 1 {
			r.eng.WithModel(fields[1])
			fmt.Printf("Model set to %s\n", fields[1])
		} else {
			fmt.Printf("Current model: %s\n", r.eng.SelectedModel())
		}

	case "/models":
		for _, m := range r.client.ListModels(ctx) {
			fmt.Printf("  %-16s %s\n", m.ID, m.Description)
		}

	case "/reload":
		t, err := r.eng.Reload()
		if err != nil {
			fmt.Fprintf(os.Stderr, "reload: %v\n", err)
			return false
		}
		r.dispatch(ctx, t)

	case "/history":
		r.printHistory(ctx)

	case "/whoami":
		if id := r.session.CurrentIdentity(); id != nil {
			kind := "user"
			if id.User.IsGuest() {
				kind = "guest"
			}
			fmt.Printf("%s (%s)\n", id.User.DisplayName(), kind)
		} else {
			fmt.Println("signed out")
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %s (try /help)\n", cmd)
	}
	return false
}

// send runs one message round trip and prints the reply.
func (r *REPL) send(ctx context.Context, text string) {
	t, err := r.eng.Send(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		return
	}
	r.dispatch(ctx, t)
}

// dispatch performs the network call, prints the settled reply, and
// walks the user through any confirmation the reply raised.
func (r *REPL) dispatch(ctx context.Context, t *engine.Ticket) {
	if err := r.eng.Dispatch(ctx, t); err != nil {
		// Dispatch already settled the timeline with the failure text;
		// the rendered reply below shows it.
		fmt.Fprintf(os.Stderr, "%s\n", api.DetailOf(err, "request failed"))
	}
	r.printLastReply()

	for pending := r.eng.PendingConfirmation(); pending != nil; pending = r.eng.PendingConfirmation() {
		choice, ok := r.promptChoice(pending)
		if !ok {
			// Next plain send abandons the pending confirmation.
			return
		}
		reply, err := r.eng.Choose(choice.Value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "choose: %v\n", err)
			return
		}
		if err := r.eng.Dispatch(ctx, reply); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", api.DetailOf(err, "request failed"))
		}
		r.printLastReply()
	}
}

// promptChoice asks the user to pick one of the confirmation buttons.
// Empty input or an abort declines without answering.
func (r *REPL) promptChoice(pending *model.Confirmation) (model.Choice, bool) {
	fmt.Println()
	for i, c := range pending.Choices {
		fmt.Printf("  [%d] %s\n", i+1, model.DisplayLabel(c))
	}

	input, err := r.line.Prompt("choice> ")
	if err != nil {
		return model.Choice{}, false
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return model.Choice{}, false
	}

	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(pending.Choices) {
		return pending.Choices[n-1], true
	}
	if c, ok := pending.Find(input); ok {
		return c, true
	}
	fmt.Fprintln(os.Stderr, "unrecognized choice")
	return model.Choice{}, false
}

// printLastReply renders the newest assistant message to stdout.
func (r *REPL) printLastReply() {
	msgs := r.eng.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			fmt.Println(r.renderer.Render(msgs[i].Text()))
			return
		}
	}
}

// printHistory lists the caller's recent conversations.
func (r *REPL) printHistory(ctx context.Context) {
	userID := model.GuestUserID
	if id := r.session.CurrentIdentity(); id != nil {
		userID = id.User.ID
	}
	chats, err := r.client.History(ctx, r.session.Token(), userID, 20)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return
	}
	if len(chats) == 0 {
		fmt.Println("no conversations yet")
		return
	}
	for _, c := range chats {
		fmt.Printf("  %s  %s  %s\n", c.ID, c.CreatedAt.Format("2006-01-02 15:04"), c.Title)
	}
}
