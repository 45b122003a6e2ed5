// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the authentication session: who the current caller is
// and whether they are still authorized.
//
// The identity lives in two representations that are only ever written and
// cleared together by Session, the sole writer:
//
//   - a durable credential file, encrypted at rest, read synchronously by
//     the client itself, and
//   - a short-lived cookie pair on gateway responses, the only
//     representation visible to the route guard (which runs before any
//     page handler and has no access to the credential file).
//
// Guest identities are recognized by the lexical guest-<digits> pattern on
// the email field (model.User.IsGuest), not by a dedicated attribute.
package auth
