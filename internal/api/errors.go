// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error variables for common backend failures.
var (
	// ErrUnauthorized indicates the bearer token was missing, invalid
	// or expired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the chat or resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates the daily message quota was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// Error is a typed backend error carrying the HTTP status and the
// backend's detail text (FastAPI-style {"detail": "..."} body).
type Error struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// Unwrap maps well-known status codes onto sentinel errors so callers can
// branch with errors.Is without inspecting status codes.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// DetailOf extracts the backend detail text from an error, falling back to
// the given message when the error carries none. Used to surface backend
// validation messages ("Invalid credentials", ...) in notifications.
func DetailOf(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}
