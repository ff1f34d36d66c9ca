package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/banter/internal/config"
	"github.com/hpungsan/banter/internal/db"
	"github.com/hpungsan/banter/internal/logging"
	"github.com/hpungsan/banter/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"send": true, "history": true, "export": true,
	"reminder": true, "todos": true, "categories": true, "status": true,
	"chat": true, "ui": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags such as --ephemeral precede the subcommand
	if len(arg) > 1 && arg[0] == '-' {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
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
   _                 _
  | |__   __ _ _ __ | |_ ___ _ __
  | '_ \ / _' | '_ \| __/ _ \ '__|
  | |_) | (_| | | | | ||  __/ |
  |_.__/ \__,_|_| |_|\__\___|_|

  Chat with your assistant from the terminal, the browser, or an MCP client

  Usage: banter chat           start the terminal UI
         banter ui             start the browser UI
         banter <command> [options]
         banter --help

  MCP server mode requires piped input.`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(&deps{})
		if err := app.Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".banter")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	config.ApplyEnv(cfg)

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	logger := logging.NewOrNop(baseDir, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	d := &deps{
		db:         database,
		cfg:        cfg,
		exportsDir: filepath.Join(baseDir, db.ExportsDir),
		logger:     logger,
	}

	// CLI mode: known subcommand or global flag
	if isCLIMode(os.Args) {
		app := newCLIApp(d)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'banter --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := d.open(false); err != nil {
		fail("%v", err)
	}
	if invalid := mcp.ValidateDisabledTools(cfg.DisabledTools); len(invalid) > 0 {
		logger.Warn("unknown disabled_tools entries", zap.Strings("names", invalid))
	}
	if invalid := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(invalid) > 0 {
		logger.Warn("unknown disabled_types entries", zap.Strings("names", invalid))
	}
	if err := mcp.Run(d.session, cfg, d.exportsDir, Version); err != nil {
		fail("%v", err)
	}
}
