package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/history"
	"github.com/kmori/shotpipe/internal/mcp"
	"github.com/kmori/shotpipe/internal/session"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"login": true, "projects": true, "shots": true, "tasks": true,
	"versions": true, "publish": true, "note": true, "filename": true,
	"history": true, "web": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _           _         _
   ___| |__   ___ | |_ _ __ (_)_ __   ___
  / __| '_ \ / _ \| __| '_ \| | '_ \ / _ \
  \__ \ | | | (_) | |_| |_) | | |_) |  __/
  |___/_| |_|\___/ \__| .__/|_| .__/ \___|
                      |_|     |_|

  Flow production-tracking bridge

  Usage: shotpipe <command> [options]
         shotpipe --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before any setup
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	hist, err := history.Init(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open history database: %v\n", err)
		os.Exit(1)
	}
	defer hist.Close()

	// MCP talks JSON on stdout; keep logs on stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cache := session.NewCache(session.DefaultDial(cfg.Flow.Timeout), log)
	defer cache.Close()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(cache, cfg, hist)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'shotpipe --help' for usage.\n")
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "error: unknown disabled tools: %v\n", unknown)
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(cache, cfg, hist, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
