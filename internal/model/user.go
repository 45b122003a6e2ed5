// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "regexp"

// User kinds as reported by the backend.
const (
	UserKindRegular = "regular"
	UserKindGuest   = "guest"
)

// GuestUserID is the sentinel identity carried on sends when no
// authenticated user is available.
const GuestUserID = "guest"

// guestEmailPattern matches the email convention used by backend-provisioned
// guest accounts. Guest detection is lexical rather than flag-based: a
// regular user whose email happens to match would be misclassified. The
// backend never issues such addresses, but nothing here enforces that.
var guestEmailPattern = regexp.MustCompile(`^guest-\d+$`)

// User identifies the authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Type  string `json:"type"` // "regular" or "guest"
}

// IsGuest reports whether the user is a transient guest identity. Anywhere
// this returns true the UI offers "log in" instead of "sign out".
func (u User) IsGuest() bool {
	return guestEmailPattern.MatchString(u.Email)
}

// DisplayName returns the label shown for the user in prompts and status
// lines: the email when present, otherwise the raw ID.
func (u User) DisplayName() string {
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
