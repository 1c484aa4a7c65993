package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir|file]...",
	Short: "Load catalog CSV and Excel exports into the database",
	Long: `Load Mega_Diccionario, Base_CDEs, Base_Catalogos_S080 and DQ_Rules exports
(.csv, .xlsx or .xlsm) into the catalog database. Directories contribute the
supported files they contain. Without arguments, files.raw_dir is read.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if len(args) == 0 {
		args = []string{a.Config.Files.RawDir}
	}
	report, err := a.Ingester.Ingest(cmd.Context(), args...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tTABLE\tINSERTED\tUPDATED\tFAILED\tINDEXED\tNOTE")
	for _, f := range report.Files {
		note := f.IndexNote
		if f.Skipped != "" {
			note = "skipped: " + f.Skipped
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", f.File, f.Table, f.Inserted, f.Updated, f.Failed, f.Indexed, note)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nRun %s done in %s\n", report.RunID, report.Duration.Round(time.Millisecond))
	return nil
}
