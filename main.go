// chatterm - a terminal chat client with a local guarded gateway.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/cli"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/engine"
	"github.com/jeranaias/chatterm/internal/history"
	"github.com/jeranaias/chatterm/internal/server"
	"github.com/jeranaias/chatterm/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	// A .env next to the binary can seed CHATTERM_* overrides.
	_ = godotenv.Load()

	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate

	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion()
		return
	case cli.CmdHelp:
		cli.PrintUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatterm: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, args)

	app, err := wire(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatterm: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, args, cfg, app); err != nil {
		fmt.Fprintf(os.Stderr, "chatterm: %v\n", err)
		os.Exit(1)
	}
}

// applyOverrides folds command-line flags into the loaded config.
func applyOverrides(cfg *config.Config, args cli.Args) {
	if args.Backend != "" {
		cfg.Backend.BaseURL = args.Backend
	}
	if args.Model != "" {
		cfg.Backend.DefaultModel = args.Model
	}
	if args.Addr != "" {
		cfg.Gateway.Addr = args.Addr
	}
}

// wiring holds the long-lived components shared by every command.
type wiring struct {
	client  *api.Client
	session *auth.Session
	bus     *history.Bus
	cache   *history.Cache
	mirror  *history.Store
}

func (w *wiring) close() {
	if w.mirror != nil {
		w.mirror.Close()
	}
}

// wire builds the shared component graph: API client, credential-backed
// session, and the history cache with its optional sqlite mirror.
func wire(cfg *config.Config) (*wiring, error) {
	if err := config.EnsureDir(); err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.Backend.BaseURL)
	if cfg.Backend.TimeoutSecs > 0 {
		client = client.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
		})
	}

	credDir := cfg.Auth.CredentialDir
	if credDir == "" {
		dir, err := auth.DefaultStoreDir()
		if err != nil {
			return nil, err
		}
		credDir = dir
	}
	session := auth.NewSession(client, auth.NewCredentialStore(credDir))

	bus := history.NewBus()
	cache := history.NewCache(bus)
	var mirror *history.Store
	if cfg.History.MirrorPath != "" {
		m, err := history.OpenStore(cfg.History.MirrorPath)
		if err != nil {
			log.Printf("HISTORY_MIRROR_UNAVAILABLE | path=%s err=%v", cfg.History.MirrorPath, err)
		} else {
			mirror = m
			cache = cache.WithStore(mirror)
		}
	}

	return &wiring{
		client:  client,
		session: session,
		bus:     bus,
		cache:   cache,
		mirror:  mirror,
	}, nil
}

// run routes the parsed command to its handler.
func run(ctx context.Context, cmd cli.Command, args cli.Args, cfg *config.Config, app *wiring) error {
	switch cmd {
	case cli.CmdTUI:
		return runTUI(cfg, args, app)

	case cli.CmdChat:
		return runREPL(ctx, cfg, args, app)

	case cli.CmdAsk:
		return cli.HandleAsk(ctx, cfg, app.client, app.session, app.cache, args.Query, args.Model)

	case cli.CmdServe:
		return runServe(ctx, cfg, app)

	case cli.CmdLogin:
		return cli.HandleLogin(ctx, app.session, args.Username)

	case cli.CmdRegister:
		return cli.HandleRegister(ctx, app.session, args.Username)

	case cli.CmdGuest:
		return cli.HandleGuest(ctx, app.session)

	case cli.CmdSignout:
		return cli.HandleSignout(app.session)

	case cli.CmdHistory:
		return cli.HandleHistory(ctx, app.client, app.session, cfg.History.Limit)

	case cli.CmdModels:
		return cli.HandleModels(ctx, app.client)

	default:
		cli.PrintUsage()
		return nil
	}
}

// runTUI starts the full-screen interface. Log output moves to a file so
// it cannot corrupt the alternate screen.
func runTUI(cfg *config.Config, args cli.Args, app *wiring) error {
	if dir, err := config.Dir(); err == nil {
		if f, err := os.OpenFile(filepath.Join(dir, "chatterm.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			log.SetOutput(f)
			defer f.Close()
		}
	}

	eng := engine.New(app.client, app.session, app.cache, args.ChatID).
		WithModel(cfg.Backend.DefaultModel)
	return ui.NewApp(cfg, app.client, app.session, app.cache, app.bus, eng).Run()
}

// runREPL starts the line-based chat loop.
func runREPL(ctx context.Context, cfg *config.Config, args cli.Args, app *wiring) error {
	eng := engine.New(app.client, app.session, app.cache, args.ChatID).
		WithModel(cfg.Backend.DefaultModel)

	repl := cli.NewREPL(cfg, app.client, app.session, eng, args.Quiet)
	defer repl.Close()
	return repl.Run(ctx)
}

// runServe runs the local gateway until interrupted, reloading the rate
// limits and allow-list when the config file changes on disk.
func runServe(ctx context.Context, cfg *config.Config, app *wiring) error {
	srv := server.New(cfg, app.client, app.session, app.cache)

	if path, err := config.Path(); err == nil {
		go func() {
			err := config.Watch(ctx, path, func(next *config.Config) {
				// Listen address changes need a restart; everything else
				// is picked up on the next request.
				if next.Gateway.Addr != cfg.Gateway.Addr {
					log.Printf("CONFIG_ADDR_CHANGED | restart required addr=%s", next.Gateway.Addr)
				}
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("CONFIG_WATCH_FAILED | err=%v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}
