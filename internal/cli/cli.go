// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for chatterm.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdServe
	CmdLogin
	CmdRegister
	CmdGuest
	CmdSignout
	CmdHistory
	CmdModels
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	Model   string
	Backend string

	// Command-specific
	Query    string
	ChatID   string
	Username string
	Addr     string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `chatterm - terminal chat client

Chatterm talks to a chat backend from your terminal.

It provides:
  - A full-screen TUI with conversation history (default)
  - A line-based chat REPL for plain terminals
  - One-shot questions from the shell
  - A local HTTP gateway that guards routes and caches history

Usage:
  chatterm                     Start TUI (default)
  chatterm chat                Line-based chat REPL
  chatterm ask "question"      Ask a single question
  chatterm serve               Run the local gateway
  chatterm login [username]    Sign in and save credentials
  chatterm register [username] Create an account
  chatterm guest               Start a guest session
  chatterm signout             Clear saved credentials
  chatterm history             List recent conversations
  chatterm models              List available models
  chatterm version             Print version
  chatterm help                Show this help

Flags:
  -m, --model NAME     Model to chat with
  --backend URL        Backend base URL (overrides config)
  --chat ID            Resume an existing conversation
  --addr HOST:PORT     Gateway listen address (serve)
  -q, --quiet          Less output
  --verbose            More output

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("chatterm version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

// parse is the testable core of Parse.
func parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	// No remaining args: default to the TUI.
	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "chat":
		return CmdChat, parsedArgs

	case "ask":
		parsedArgs.Query = strings.Join(positionals(remaining), " ")
		return CmdAsk, parsedArgs

	case "serve", "gateway":
		return CmdServe, parsedArgs

	case "login", "signin":
		if p := positionals(remaining); len(p) > 0 {
			parsedArgs.Username = p[0]
		}
		return CmdLogin, parsedArgs

	case "register", "signup":
		if p := positionals(remaining); len(p) > 0 {
			parsedArgs.Username = p[0]
		}
		return CmdRegister, parsedArgs

	case "guest":
		return CmdGuest, parsedArgs

	case "signout", "logout":
		return CmdSignout, parsedArgs

	case "history", "chats":
		return CmdHistory, parsedArgs

	case "models", "model":
		return CmdModels, parsedArgs

	case "version", "-v", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown word: treat it as the start of a one-shot question.
		parsedArgs.Query = strings.Join(append([]string{cmd}, positionals(remaining)...), " ")
		return CmdAsk, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "--verbose":
			parsedArgs.Verbose = true
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		case "--backend":
			if i+1 < len(args) {
				i++
				parsedArgs.Backend = args[i]
			}
		case "--chat":
			if i+1 < len(args) {
				i++
				parsedArgs.ChatID = args[i]
			}
		case "--addr":
			if i+1 < len(args) {
				i++
				parsedArgs.Addr = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--backend="):
				parsedArgs.Backend = strings.TrimPrefix(arg, "--backend=")
			case strings.HasPrefix(arg, "--chat="):
				parsedArgs.ChatID = strings.TrimPrefix(arg, "--chat=")
			case strings.HasPrefix(arg, "--addr="):
				parsedArgs.Addr = strings.TrimPrefix(arg, "--addr=")
			default:
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// positionals filters flag-looking tokens out of the remaining args.
func positionals(args []string) []string {
	var out []string
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			out = append(out, a)
		}
	}
	return out
}
