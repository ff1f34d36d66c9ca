package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/chatclient"
	"github.com/hpungsan/banter/internal/config"
	"github.com/hpungsan/banter/internal/conversation"
	"github.com/hpungsan/banter/internal/db"
	"github.com/hpungsan/banter/internal/errors"
	"github.com/hpungsan/banter/internal/export"
	"github.com/hpungsan/banter/internal/speech"
	"github.com/hpungsan/banter/internal/store"
	"github.com/hpungsan/banter/internal/tui"
	"github.com/hpungsan/banter/internal/web"
)

// deps carries what commands need. The session is opened lazily so --help never touches storage.
type deps struct {
	db         *sql.DB
	cfg        *config.Config
	exportsDir string
	logger     *zap.Logger
	clipboard  export.Clipboard

	// client overrides the HTTP chat client (tests).
	client  conversation.Sender
	session *conversation.Session
}

// open builds the session over SQLite, or over memory when ephemeral or no database is set.
func (d *deps) open(ephemeral bool) error {
	if d.session != nil {
		return nil
	}
	if d.cfg == nil {
		d.cfg = config.DefaultConfig()
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}

	var kv store.KV = store.SQLiteKV{DB: d.db}
	if ephemeral || d.db == nil {
		kv = store.NewMemoryKV()
	}

	client := d.client
	if client == nil {
		client = chatclient.New(chatclient.ConfigFrom(d.cfg), d.logger)
	}

	sess, warnings, err := conversation.Open(context.Background(), conversation.Options{
		Store:         store.New(kv),
		Client:        client,
		Speaker:       speech.DetectSpeaker(d.cfg, d.logger),
		Listener:      speech.DetectListener(d.cfg),
		Personalities: chat.NewPersonalities(d.cfg.Personalities),
		Personality:   d.cfg.Personality,
		Logger:        d.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w.Message)
	}
	d.session = sess
	return nil
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d *deps) *cli.App {
	app := &cli.App{
		Name:    "banter",
		Usage:   "Chat with an assistant backend, with local history",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ephemeral", Usage: "Keep history in memory only; nothing is saved"},
		},
		Before: func(c *cli.Context) error {
			if c.Args().Len() == 0 || c.Args().First() == "help" {
				return nil
			}
			return d.open(c.Bool("ephemeral"))
		},
		Commands: []*cli.Command{
			sendCmd(d),
			historyCmd(d),
			exportCmd(d),
			reminderCmd(d),
			todosCmd(d),
			categoriesCmd(),
			statusCmd(d),
			chatCmd(d),
			uiCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func categoryFlag() cli.Flag {
	return &cli.StringFlag{Name: "category", Aliases: []string{"c"}, Value: chat.DefaultCategoryID, Usage: "Category id"}
}

// sendOutput is the JSON result of the send command.
type sendOutput struct {
	Outcome  string `json:"outcome"`
	Category string `json:"category"`
	Reply    string `json:"reply,omitempty"`
}

// sendCmd creates the send command.
func sendCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a message (argument or stdin) and print the reply",
		ArgsUsage: "[message]",
		Flags: []cli.Flag{
			categoryFlag(),
			&cli.StringFlag{Name: "personality", Aliases: []string{"p"}, Usage: "Personality id"},
		},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" && readerHasData(c.App.Reader) {
				in, err := readAll(c.App.Reader)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				text = in
			}
			if chat.IsBlank(text) {
				return outputError(errors.NewInvalidRequest("message is required (argument or stdin)"))
			}

			cat, err := chat.LookupCategory(c.String("category"))
			if err != nil {
				return outputError(err)
			}
			outcome, reply, err := d.session.SendTo(c.Context, cat.ID, c.String("personality"), text)
			if err != nil {
				return outputError(err)
			}

			out := sendOutput{Outcome: outcome.String(), Category: cat.ID, Reply: reply}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// historyOutput is the JSON result of the history command.
type historyOutput struct {
	Category string         `json:"category"`
	Search   string         `json:"search,omitempty"`
	Messages []chat.Message `json:"messages"`
}

// historyCmd creates the history command.
func historyCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Print a category's messages",
		Flags: []cli.Flag{
			categoryFlag(),
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Case-insensitive content filter"},
		},
		Action: func(c *cli.Context) error {
			cat, err := chat.LookupCategory(c.String("category"))
			if err != nil {
				return outputError(err)
			}
			msgs := slices.Collect(d.session.FilteredView(cat.ID, c.String("search")))
			if msgs == nil {
				msgs = []chat.Message{}
			}
			return outputJSON(c.App.Writer, historyOutput{
				Category: cat.ID,
				Search:   c.String("search"),
				Messages: msgs,
			})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a category transcript to a .txt file, or copy it to the clipboard",
		Flags: []cli.Flag{
			categoryFlag(),
			&cli.StringFlag{Name: "path", Usage: "Output path (default ~/.banter/exports/<category>-chat.txt)"},
			&cli.BoolFlag{Name: "clipboard", Usage: "Copy to the clipboard instead of writing a file"},
		},
		Action: func(c *cli.Context) error {
			cat, err := chat.LookupCategory(c.String("category"))
			if err != nil {
				return outputError(err)
			}
			msgs := slices.Collect(d.session.FilteredView(cat.ID, ""))

			if c.Bool("clipboard") {
				cb := d.clipboard
				if cb == nil {
					cb = export.SystemClipboard{}
				}
				notice, err := export.Copy(cb, msgs)
				if err != nil {
					return outputError(errors.NewInternal(fmt.Errorf("%s: %w", notice, err)))
				}
				return outputJSON(c.App.Writer, map[string]any{"notice": notice, "count": len(msgs)})
			}

			out, err := export.WriteFile(d.exportsDir, d.cfg, export.Input{
				Category: cat.ID,
				Messages: msgs,
				Path:     c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// reminderCmd creates the reminder command.
func reminderCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "reminder",
		Usage: "Print the stored reminder",
		Action: func(c *cli.Context) error {
			return outputJSON(c.App.Writer, map[string]string{"reminder": d.session.Reminder()})
		},
	}
}

// todosCmd creates the todos command.
func todosCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "todos",
		Usage: "Print the to-do list",
		Action: func(c *cli.Context) error {
			return outputJSON(c.App.Writer, map[string][]string{"todos": d.session.Todos()})
		},
	}
}

// categoriesCmd creates the categories command.
func categoriesCmd() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "List conversation categories",
		Action: func(c *cli.Context) error {
			return outputJSON(c.App.Writer, chat.Categories())
		},
	}
}

// statusOutput is the JSON result of the status command.
type statusOutput struct {
	Version     string   `json:"version"`
	BackendURL  string   `json:"backend_url"`
	Personality string   `json:"personality"`
	ExportsDir  string   `json:"exports_dir"`
	StoredKeys  []string `json:"stored_keys"`
	Ephemeral   bool     `json:"ephemeral"`
	Dictation   bool     `json:"dictation"`
}

// statusCmd creates the status command.
func statusCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show configuration and which values are stored",
		Action: func(c *cli.Context) error {
			out := statusOutput{
				Version:     Version,
				BackendURL:  d.cfg.BackendURL,
				Personality: d.session.Personality(),
				ExportsDir:  d.exportsDir,
				StoredKeys:  []string{},
				Ephemeral:   c.Bool("ephemeral") || d.db == nil,
				Dictation:   d.session.DictationAvailable(),
			}
			if !out.Ephemeral {
				keys, err := db.Keys(c.Context, d.db)
				if err != nil {
					return outputError(err)
				}
				out.StoredKeys = keys
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// chatCmd creates the chat command (terminal UI).
func chatCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start the terminal chat UI",
		Flags: []cli.Flag{categoryFlag()},
		Action: func(c *cli.Context) error {
			if err := d.session.SelectCategory(c.String("category")); err != nil {
				return outputError(err)
			}
			return tui.Run(c.Context, tui.Options{
				Session:    d.session,
				Config:     d.cfg,
				ExportsDir: d.exportsDir,
				Clipboard:  d.clipboard,
				Logger:     d.logger,
			})
		},
	}
}

// uiCmd creates the ui command (browser UI).
func uiCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Start the browser chat UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8314, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port < 1 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid port: %d", port)))
			}
			srv := web.NewServer(d.session, d.logger, Version, c.String("bind"), port)
			return web.Run(srv, d.logger)
		},
	}
}

// Helper functions

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if bErr, ok := err.(*errors.BanterError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", bErr.Code, bErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readerHasData reports whether r carries input: piped stdin, or any non-stdin reader.
func readerHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readAll reads all content from r.
func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
