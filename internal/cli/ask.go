// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/engine"
	"github.com/jeranaias/chatterm/internal/history"
	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/ui"
)

// HandleAsk sends a single question and prints the rendered reply.
// Confirmations raised by the reply are declined: a one-shot command
// has no second round trip to answer them with.
func HandleAsk(ctx context.Context, cfg *config.Config, client *api.Client, session *auth.Session, cache *history.Cache, query, modelID string) error {
	if query == "" {
		return errors.New("nothing to ask")
	}
	if modelID == "" {
		modelID = cfg.Backend.DefaultModel
	}

	eng := engine.New(client, session, cache, "").WithModel(modelID)
	t, err := eng.BootstrapQuery(query)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if err := eng.Dispatch(ctx, t); err != nil {
		return fmt.Errorf("%s", api.DetailOf(err, "request failed"))
	}

	renderer := ui.NewRenderer(cfg.UI.Markdown && IsStdoutTTY(), TerminalWidth())
	msgs := eng.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			fmt.Println(renderer.Render(msgs[i].Text()))
			break
		}
	}
	return nil
}

// HandleHistory prints the caller's recent conversations.
func HandleHistory(ctx context.Context, client *api.Client, session *auth.Session, limit int) error {
	userID := model.GuestUserID
	if id := session.CurrentIdentity(); id != nil {
		userID = id.User.ID
	}
	chats, err := client.History(ctx, session.Token(), userID, limit)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println("no conversations yet")
		return nil
	}
	for _, c := range chats {
		fmt.Printf("%s  %s  %s\n", c.ID, c.CreatedAt.Format("2006-01-02 15:04"), c.Title)
	}
	return nil
}

// HandleModels prints the selectable models.
func HandleModels(ctx context.Context, client *api.Client) error {
	for _, m := range client.ListModels(ctx) {
		fmt.Printf("%-16s %-20s %s\n", m.ID, m.Name, m.Description)
	}
	return nil
}
