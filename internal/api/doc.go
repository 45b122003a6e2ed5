// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the chatterm inference
// backend.
//
// The backend exposes a small bespoke protocol:
//
//   - POST  /auth/login      {email, password} -> {access_token, token_type, user}
//   - POST  /auth/register   {email, password} -> same shape
//   - POST  /auth/guest      {}                -> same shape
//   - POST  /auth/verify     (bearer only)     -> 200 on valid token
//   - POST  /chat/message    {message, chat_id, user_id, selected_model,
//     action_response?} -> {response, buttons?}
//   - GET   /chat/history?userId=&limit=       -> {chats: [...]}
//   - GET   /chat/{id}/messages                -> [messages]
//   - PATCH /chat/{id}/title {title}           -> 200
//   - GET   /chat/models                       -> [{id, name, description}]
//
// Error responses carry a {"detail": "..."} body; the client surfaces the
// detail text through *Error so callers can show it verbatim.
package api
