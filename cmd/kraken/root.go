package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/kraken/internal/app"
	"github.com/dshills/kraken/internal/config"
)

var (
	flagConfig   string
	flagEnvFile  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "kraken",
	Short:        "Kraken: fuzzy and semantic search over the data catalog",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `Kraken searches the data dictionary (technical attributes), the business
glossary (CDEs) and the reference catalogs by string similarity, by embedding
similarity, or by both.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := parseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		// stdout is reserved for MCP and command output
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), level))
		return config.LoadDotEnv(flagEnvFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to kraken.yaml (default $"+config.EnvConfig+")")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Path to a .env file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
}

// execute runs the root command and returns the process exit code
func execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("invalid --log-level %q: %w", s, err)
	}
	return level, nil
}

// openApp loads the configuration and wires every component
func openApp() (*app.App, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.WithLogger(slog.Default()))
}
