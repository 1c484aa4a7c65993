package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dshills/kraken/internal/mcp"
	"github.com/dshills/kraken/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Kraken\n")
		fmt.Fprintf(w, "Version:       %s\n", version)
		fmt.Fprintf(w, "Build Time:    %s\n", buildTime)
		fmt.Fprintf(w, "MCP Server:    %s %s\n", mcp.ServerName, mcp.ServerVersion)
		fmt.Fprintf(w, "Build Mode:    %s\n", storage.BuildMode)
		fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
		fmt.Fprintf(w, "Go Version:    %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
