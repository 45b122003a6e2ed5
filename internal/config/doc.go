// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for chatterm.
//
// Configuration is resolved in order of precedence:
//   - environment variables (CHATTERM_*)
//   - ~/.chatterm/config.toml
//   - built-in defaults
//
// The config file is optional; a missing file is not an error. Loaded
// configs are always validated. Watch re-loads the file on change for
// long-running processes such as the local gateway.
package config
