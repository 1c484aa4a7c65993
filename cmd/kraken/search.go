package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/kraken/internal/catalog"
	"github.com/dshills/kraken/pkg/types"
)

var (
	flagSearchMode  string
	flagSearchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <attributes|cdes|catalogs> <query>",
	Short: "Search attributes, CDEs or catalogs",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&flagSearchMode, "mode", "hybrid", "Search mode: hybrid, fuzzy or semantic")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 0, "Number of results to show (default: configured limit)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	entityType, err := types.ParseEntityType(args[0])
	if err != nil {
		return fmt.Errorf("unknown entity %q: use attributes, cdes or catalogs", args[0])
	}
	mode, err := types.ParseMode(flagSearchMode)
	if err != nil {
		return fmt.Errorf("invalid --mode %q: use one of %s", flagSearchMode, strings.Join(types.ModeNames(), ", "))
	}
	if flagSearchLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	query := strings.Join(args[1:], " ")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	svc, err := a.Service(entityType)
	if err != nil {
		return err
	}
	results, err := svc.Search(cmd.Context(), query, mode, catalog.WithLimit(flagSearchLimit))
	if err != nil {
		return err
	}
	printResults(os.Stdout, query, mode, results)
	return nil
}

// titleFields are shown first for each entity type
var titleFields = map[types.EntityType][]string{
	types.EntityAttribute: {types.FieldPhysicalName, types.FieldVariableName},
	types.EntityCDE:       {types.FieldCDEID, types.FieldBizTerm},
	types.EntityCatalog:   {types.FieldSchema, types.FieldTable},
}

func printResults(w io.Writer, query string, mode types.Mode, results []types.SearchResult) {
	bold := color.New(color.Bold).SprintFunc()
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q (%s)\n", query, mode)
		return
	}
	fmt.Fprintf(w, "%s for %q (%s)\n\n", bold(fmt.Sprintf("%d results", len(results))), query, mode)

	for i, r := range results {
		var title []string
		for _, f := range titleFields[r.Entity.Type] {
			if v := r.Entity.Field(f); v != "" {
				title = append(title, v)
			}
		}
		if len(title) == 0 {
			title = append(title, r.Entity.ID)
		}
		method := boldCyan(string(r.Method))
		if r.Method == types.MethodFuzzy {
			method = boldGreen(string(r.Method))
		}
		fmt.Fprintf(w, "%2d. %s  %s %s\n", i+1, bold(strings.Join(title, " / ")), fmt.Sprintf("%.3f", r.Score), method)
		if desc := r.Entity.Field(types.FieldDescRaw); desc != "" {
			fmt.Fprintf(w, "    %s\n", desc)
		}
		fmt.Fprintf(w, "    %s\n", faint("id: "+r.Entity.ID))
	}
}
