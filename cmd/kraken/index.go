package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/kraken/pkg/types"
)

var (
	flagIndexForce bool
	flagIndexType  string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the vector indexes from the catalog database",
	Long: `Build the vector index of each entity type from the rows in the catalog
database. Indexes already on disk are kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagIndexForce, "force", false, "Rebuild indexes that already exist")
	indexCmd.Flags().StringVar(&flagIndexType, "type", "all", "Entity type to index: attribute, cde, catalog or all")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	entityTypes := types.AllEntityTypes
	if flagIndexType != "all" {
		t, err := types.ParseEntityType(flagIndexType)
		if err != nil {
			return fmt.Errorf("invalid --type %q: %w", flagIndexType, err)
		}
		entityTypes = []types.EntityType{t}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.Indexer.Prepare(cmd.Context(), flagIndexForce, entityTypes...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tOUTCOME\tENTITIES\tINDEXED\tDURATION")
	for _, r := range stats.Results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.Index, r.Outcome, r.Entities, r.Indexed, r.Duration.Round(time.Millisecond))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nDone in %s\n", stats.Duration.Round(time.Millisecond))
	return nil
}
