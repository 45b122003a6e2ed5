// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local HTTP gateway (`chatterm serve`).
//
// The gateway fronts the chat backend for browser-adjacent callers on
// the same machine: it holds the authenticated session, stamps the auth
// cookies, and runs every protected route through the route guard.
//
// Endpoints:
//   - GET  /ping              - health check (unguarded)
//   - POST /auth/login        - authenticate, set cookies
//   - POST /auth/register     - create account, set cookies
//   - POST /auth/guest        - provision a guest identity
//   - POST /auth/signout      - clear both auth representations
//   - GET  /login             - login landing (receives redirectUrl)
//   - POST /chat/message      - guarded send
//   - GET  /chat/history      - guarded chat list
//   - GET  /chat/{id}/messages - guarded message fetch
//   - PATCH /chat/{id}/title  - guarded rename
//   - GET  /chat/models       - model list
//   - GET  /stats             - gateway usage statistics
package server
