// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Choice is one selectable option of a confirmation prompt.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Confirmation is a server-issued request for the user to pick one of a
// small set of discrete choices before the conversation proceeds.
//
// At most one confirmation exists at a time. It is created when a response
// to a plain send carries a non-empty choice list, consumed when the user
// picks a choice, and never persisted across a restart.
type Confirmation struct {
	// OriginalMessage is the assistant text the confirmation refers to.
	// It is echoed back on the follow-up send so the backend can attach
	// the chosen value to the right action.
	OriginalMessage string

	Choices []Choice
}

// Find returns the choice with the given value, if present.
func (c *Confirmation) Find(value string) (Choice, bool) {
	for _, choice := range c.Choices {
		if choice.Value == value {
			return choice, true
		}
	}
	return Choice{}, false
}

// DisplayLabel returns the user-visible text appended to the timeline when
// a choice is selected. Yes/no answers render in Korean regardless of the
// label the backend sent; anything else falls back to the button label.
func DisplayLabel(choice Choice) string {
	switch choice.Value {
	case "yes":
		return "예"
	case "no":
		return "아니오"
	default:
		return choice.Label
	}
}
