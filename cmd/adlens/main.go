// AdLens - streaming ad-performance report ingestion.
// Parses AdSense / Ad Manager CSV exports, aggregates them across
// dimensions, and loads them into a queryable store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adlens/adlens/pkg/config"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "adlens",
	Short: "AdLens - ad performance report ingestion",
	Long: `AdLens ingests AdSense / Ad Manager CSV exports, aggregates revenue,
impressions, clicks, and requests across every reporting dimension, and
persists both JSON snapshots and a queryable DuckDB store.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

// loadConfig loads the layered configuration once per command run.
func loadConfig() (*config.Config, error) {
	mgr := config.NewManager()
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return mgr.Get(), nil
}
