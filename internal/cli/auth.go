// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth.go - Login, register, guest, and signout commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/chatterm/internal/auth"
)

// ErrNotATerminal is returned when a command needs interactive input
// but stdin is not a TTY.
var ErrNotATerminal = errors.New("interactive input requires a terminal")

// HandleLogin signs in with email and password and persists the
// resulting identity to the credential store.
func HandleLogin(ctx context.Context, session *auth.Session, email string) error {
	email, password, err := promptCredentials(email)
	if err != nil {
		return err
	}
	id, err := session.Login(ctx, email, password, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", id.User.DisplayName())
	return nil
}

// HandleRegister creates an account and persists its identity.
func HandleRegister(ctx context.Context, session *auth.Session, email string) error {
	email, password, err := promptCredentials(email)
	if err != nil {
		return err
	}
	id, err := session.Register(ctx, email, password, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Account created. Signed in as %s\n", id.User.DisplayName())
	return nil
}

// HandleGuest provisions an anonymous guest identity.
func HandleGuest(ctx context.Context, session *auth.Session) error {
	id, err := session.CreateGuest(ctx, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Guest session started (%s)\n", id.User.ID)
	return nil
}

// HandleSignout clears the persisted identity.
func HandleSignout(session *auth.Session) error {
	if err := session.Clear(nil); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

// promptCredentials fills in whichever of email/password the command
// line did not provide. The password is never echoed.
func promptCredentials(email string) (string, string, error) {
	if !IsTTY() {
		return "", "", ErrNotATerminal
	}

	reader := bufio.NewReader(os.Stdin)
	if email == "" {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return "", "", errors.New("email is required")
	}

	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", "", errors.New("password is required")
	}

	return email, password, nil
}
