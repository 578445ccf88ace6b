package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrlokans/shelfscan/internal/cli"
	"github.com/mrlokans/shelfscan/internal/config"
	"github.com/mrlokans/shelfscan/internal/entrypoint"
	"github.com/mrlokans/shelfscan/internal/logger"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

var commands = map[string]func(cli.Env) cli.Command{
	"login":   func(e cli.Env) cli.Command { return cli.NewLoginCommand(e) },
	"logout":  func(e cli.Env) cli.Command { return cli.NewLogoutCommand(e) },
	"whoami":  func(e cli.Env) cli.Command { return cli.NewWhoamiCommand(e) },
	"books":   func(e cli.Env) cli.Command { return cli.NewBooksCommand(e) },
	"add":     func(e cli.Env) cli.Command { return cli.NewAddCommand(e) },
	"remove":  func(e cli.Env) cli.Command { return cli.NewRemoveCommand(e) },
	"scan":    func(e cli.Env) cli.Command { return cli.NewScanCommand(e) },
	"tags":    func(e cli.Env) cli.Command { return cli.NewTagsCommand(e) },
	"tag":     func(e cli.Env) cli.Command { return cli.NewTagCommand(e) },
	"prefs":   func(e cli.Env) cli.Command { return cli.NewPrefsCommand(e) },
	"lookup":  func(e cli.Env) cli.Command { return cli.NewLookupCommand(e) },
	"history": func(e cli.Env) cli.Command { return cli.NewHistoryCommand(e) },
}

func main() {
	cfg := config.NewConfig()
	log := logger.New(logger.Config{
		Format: cfg.Log.Format,
		Level:  logger.ParseLevel(cfg.Log.Level),
	})
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		if err := entrypoint.Run(cfg, Version, log); err != nil {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "-h", "--help", "help":
		printUsage()
		return
	case "version":
		fmt.Printf("shelfscan %s (%s)\n", Version, Commit)
		return
	}

	newCommand, ok := commands[command]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	cmd := newCommand(cli.Env{Open: opener(cfg, log)})
	if err := cmd.ParseFlags(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Run(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// opener builds the application for a single command. A collection that fails
// to load is logged; commands that need it report their own errors.
func opener(cfg *config.Config, log *slog.Logger) cli.Opener {
	return func(ctx context.Context) (cli.Service, func(), error) {
		app, err := entrypoint.NewApp(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		if err := app.Start(ctx); err != nil {
			log.Warn("collection not loaded", "error", err)
		}
		return app.Library, app.Close, nil
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the companion API and periodic resync (default if no command given)\n")
	fmt.Fprintf(os.Stderr, "  login     Sign in with an identity token, or silently from IDENTITY_TOKEN_FILE\n")
	fmt.Fprintf(os.Stderr, "  logout    Sign out and forget the stored credential\n")
	fmt.Fprintf(os.Stderr, "  whoami    Show the signed-in user\n")
	fmt.Fprintf(os.Stderr, "  books     List the books in the collection\n")
	fmt.Fprintf(os.Stderr, "  add       Add books by ISBN, or describe one manually\n")
	fmt.Fprintf(os.Stderr, "  remove    Remove books by id or ISBN\n")
	fmt.Fprintf(os.Stderr, "  scan      Read decoded barcodes from stdin and add each new book\n")
	fmt.Fprintf(os.Stderr, "  tags      List tags\n")
	fmt.Fprintf(os.Stderr, "  tag       Set the tags of one or more books\n")
	fmt.Fprintf(os.Stderr, "  prefs     Show or change the default tag filter\n")
	fmt.Fprintf(os.Stderr, "  lookup    Look up public metadata for an ISBN\n")
	fmt.Fprintf(os.Stderr, "  history   Show recent scans\n")
	fmt.Fprintf(os.Stderr, "  version   Print the version\n")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
