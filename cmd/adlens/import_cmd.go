package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adlens/adlens/pkg/dbload"
	"github.com/adlens/adlens/pkg/tui"
)

var importDatabase string

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Ingest a CSV export and load it into the database",
	Long: `Process one CSV export and load every row into the permanent DuckDB
store, in addition to writing the JSON snapshot. Re-importing the same data
is idempotent: rows merge on their dimension key instead of duplicating.

Examples:
  adlens import report.csv
  adlens import report.csv --database ./adlens.db`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importDatabase, "database", "", "Database path (defaults to the configured store)")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if importDatabase != "" {
		cfg.Storage.Database = importDatabase
	}

	store, err := dbload.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	store.BatchSize = cfg.Pipeline.BatchSize
	store.CopyThreshold = cfg.Pipeline.CopyThreshold

	tui.PrintHeader(version)
	if err := ingestOne(cfg, args[0], store, true); err != nil {
		return err
	}

	count, err := store.ReportCount(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("  store now holds %d report rows (%s)\n\n", count, cfg.Storage.Database)
	return nil
}
