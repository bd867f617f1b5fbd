package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/mattn/go-runewidth"
	"github.com/urfave/cli/v3"

	"github.com/gpabois/emerald/internal"
	"github.com/gpabois/emerald/internal/script"
	"github.com/gpabois/emerald/internal/shard"
	"github.com/gpabois/emerald/internal/vault"
	pkgconfig "github.com/gpabois/emerald/pkg/config"
)

var version = "dev"

// loadConfig reads the config file when present and applies flag overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if p := cmd.String("vault"); p != "" {
		cfg.Vault.Path = p
	}
	if cmd.Bool("strict") {
		cfg.Vault.Strict = true
	}
	return cfg, nil
}

// openVault is shared by the commands that work on the vault directly.
func openVault(cmd *cli.Command) (*internal.Config, *vault.Vault, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := internal.NewLogger(cfg, os.Stderr)
	v, err := internal.OpenVault(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, v, logger, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func walk(_ context.Context, cmd *cli.Command) error {
	_, v, _, err := openVault(cmd)
	if err != nil {
		return err
	}
	w, err := v.Walk(vault.Path(cmd.Args().First()))
	if err != nil {
		return err
	}
	var entries []vault.DirEntry
	for entry, err := range w.All() {
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return printEntries(os.Stdout, entries)
}

func printEntries(out io.Writer, entries []vault.DirEntry) error {
	width := 0
	for _, e := range entries {
		width = max(width, runewidth.StringWidth(e.Path.String()))
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(out, "%s  %s\n", runewidth.FillRight(e.Path.String(), width), e.Metadata.Type); err != nil {
			return err
		}
	}
	return nil
}

func cat(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("usage: emerald cat <path>")
	}
	cfg, v, logger, err := openVault(cmd)
	if err != nil {
		return err
	}
	s, err := shard.Load(v, vault.Path(cmd.Args().First()), internal.ParseOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	_, err = io.WriteString(os.Stdout, s.Render())
	return err
}

func tasks(_ context.Context, cmd *cli.Command) error {
	cfg, v, logger, err := openVault(cmd)
	if err != nil {
		return err
	}
	w, err := v.Walk(vault.Path(cmd.Args().First()))
	if err != nil {
		return err
	}
	openOnly := cmd.Bool("open")
	for entry, err := range w.All() {
		if err != nil {
			return err
		}
		if !entry.Metadata.IsShard() {
			continue
		}
		s, err := shard.LoadEntry(v, entry, internal.ParseOptions(cfg, logger)...)
		if err != nil {
			logger.Warn("tasks: skipped shard", slog.String("path", entry.Path.String()), slog.String("error", err.Error()))
			continue
		}
		printTasks(os.Stdout, s.Tasks(), 0, openOnly)
	}
	return nil
}

func printTasks(out io.Writer, list []shard.Task, depth int, openOnly bool) {
	for _, t := range list {
		if openOnly && t.Checked {
			continue
		}
		box := "[ ]"
		if t.Checked {
			box = "[x]"
		}
		fmt.Fprintf(out, "%s:%d: %s%s %s\n", t.Source, t.Line, strings.Repeat("  ", depth), box, t.Text)
		printTasks(out, t.Subtasks, depth+1, openOnly)
	}
}

func link(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return errors.New("usage: emerald link <path> <target>")
	}
	_, v, _, err := openVault(cmd)
	if err != nil {
		return err
	}
	return v.Symlink(vault.Path(cmd.Args().Get(0)), cmd.Args().Get(1))
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("usage: emerald run <script.lua>")
	}
	cfg, v, logger, err := openVault(cmd)
	if err != nil {
		return err
	}
	engine := script.NewEngine(v, script.WithLogger(logger), script.WithParseOptions(internal.ParseOptions(cfg, logger)...))
	inst := engine.NewInstance()
	defer inst.Close()
	if cfg.Script.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Script.Timeout)
		defer cancel()
	}
	return inst.ExecuteFile(ctx, cmd.Args().First())
}

func repl(ctx context.Context, cmd *cli.Command) error {
	cfg, v, logger, err := openVault(cmd)
	if err != nil {
		return err
	}
	engine := script.NewEngine(v, script.WithLogger(logger), script.WithParseOptions(internal.ParseOptions(cfg, logger)...))
	r := &REPL{inst: engine.NewInstance(), vaultPath: cfg.Vault.Path, history: cfg.Script.History}
	defer r.inst.Close()
	return r.Run(ctx)
}

func main() {
	vaultFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "vault",
			Usage:   "Vault root (overrides vault.path)",
			Sources: cli.EnvVars("EMERALD_VAULT"),
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Fail on malformed entries instead of skipping them",
		},
	}

	cmd := &cli.Command{
		Name:    "emerald",
		Usage:   "Personal knowledge vault: shards, content links, tasks and scripts",
		Version: version,
		Action:  serve,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		}, vaultFlags...),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, index watcher and event stream",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "walk",
				Usage:     "Walk the vault, following link files",
				ArgsUsage: "[path]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print entries as JSON"},
				},
				Action: walk,
			},
			{
				Name:      "cat",
				Usage:     "Parse a shard and print it re-serialized",
				ArgsUsage: "<path>",
				Action:    cat,
			},
			{
				Name:      "tasks",
				Usage:     "List the tasks of every shard under a path",
				ArgsUsage: "[path]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "open", Usage: "Only unchecked tasks"},
				},
				Action: tasks,
			},
			{
				Name:      "link",
				Usage:     "Write a link file pointing to target",
				ArgsUsage: "<path> <target>",
				Action:    link,
			},
			{
				Name:      "run",
				Usage:     "Run a Lua script against the vault",
				ArgsUsage: "<script.lua>",
				Action:    run,
			},
			{
				Name:   "repl",
				Usage:  "Interactive Lua console bound to the vault",
				Action: repl,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
