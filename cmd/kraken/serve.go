package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var flagServePrepare bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server on stdin/stdout. The vector indexes are attached, or
built when missing, before the server starts. When metrics are enabled in the
configuration, Prometheus metrics are served on metrics.addr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&flagServePrepare, "prepare", true, "Attach or build the vector indexes before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if flagServePrepare {
		if _, err := a.Prepare(ctx, false); err != nil {
			return fmt.Errorf("failed to prepare indexes: %w", err)
		}
	}

	server, err := a.MCPServer()
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if a.Config.Metrics.Enabled {
		g.Go(func() error {
			return a.Metrics.Serve(gctx, a.Config.Metrics.Addr, slog.Default())
		})
	}
	g.Go(func() error {
		// the metrics listener stops with the MCP session
		defer cancel()
		return server.Serve(gctx, os.Stdin, os.Stdout)
	})
	err = g.Wait()
	slog.Info("server stopped")
	return err
}
