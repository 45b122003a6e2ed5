// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps the chat-list sidebar consistent with server-side
// mutations.
//
// Reads are keyed by (endpoint, user id, pagination cursor). A mutation
// invalidates every entry of the mutating user regardless of cursor,
// forcing a full refetch: the backend is the sole source of ordering and
// titles, and patching entries client-side would risk divergence.
//
// A payload-free broadcast Bus covers mutations that originate outside the
// cache's key space (e.g. a brand-new chat id that was never cached).
// Subscribers treat an event as "refetch eagerly", never as data.
//
// An optional sqlite-backed Store mirrors entries across restarts so the
// sidebar can render instantly from stale data while revalidating.
package history
