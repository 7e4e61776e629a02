// ABOUTME: Admin CLI for agentdesk users, agents, history, and access tokens
// ABOUTME: Operates directly on the SQLite database named by the config or --db

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/2389/agentdesk/internal/config"
	"github.com/2389/agentdesk/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
}

func (f *rootFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "config file (default $"+config.EnvConfigPath+" or ~/.config/agentdesk/agentdesk.yaml)")
	fs.StringVar(&f.DBPath, "db", "", "SQLite database path, overrides the config file")
	fs.StringVar(&f.LogLevel, "log-level", "warn", "log level (debug,info,warn,error)")
}

// loadConfig reads the config file when one exists. A missing file yields
// the defaults so that --db alone is enough.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	path := f.ConfigPath
	if path == "" {
		path = config.Path()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && f.ConfigPath == "" {
		cfg := config.Default()
		if p := os.Getenv(config.EnvDBPath); p != "" {
			cfg.Database.Path = p
		}
		return cfg, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func (f *rootFlags) openStore() (*store.SQLiteStore, error) {
	dbPath := f.DBPath
	if dbPath == "" {
		cfg, err := f.loadConfig()
		if err != nil {
			return nil, err
		}
		dbPath = cfg.Database.Path
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

// withStore opens the store for the duration of fn.
func (f *rootFlags) withStore(fn func(ctx context.Context, s *store.SQLiteStore) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := f.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), s)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:           "agentdesk-admin",
		Short:         "Manage agentdesk users, agents, conversation history, and tokens",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := config.ParseLevel(f.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	f.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newUserCmd(f),
		newAgentCmd(f),
		newHistoryCmd(f),
		newTokenCmd(f),
	)
	return root
}

func success(out io.Writer, format string, args ...any) {
	color.New(color.FgGreen).Fprint(out, "✓ ")
	fmt.Fprintf(out, format+"\n", args...)
}

// describe turns store errors into messages for the operator.
func describe(what, id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s %s not found", what, id)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%s %s: %w", what, id, err)
	default:
		return err
	}
}
