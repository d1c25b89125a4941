package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adlens/adlens/pkg/aggregate"
	"github.com/adlens/adlens/pkg/config"
	"github.com/adlens/adlens/pkg/errors"
	"github.com/adlens/adlens/pkg/ingest"
	"github.com/adlens/adlens/pkg/tui"
)

var (
	ingestOutDir string
	ingestKeep   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest one CSV export locally",
	Long: `Process one AdSense / Ad Manager CSV export and write its result
snapshot as JSON, without starting the server or touching the database.

Examples:
  adlens ingest report.csv
  adlens ingest report.csv.gz --out ./results`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestOutDir, "out", "o", "", "Directory for result and status files")
	ingestCmd.Flags().BoolVar(&ingestKeep, "keep", true, "Keep the source file after processing")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ingestOutDir != "" {
		cfg.Upload.ResultsDir = ingestOutDir
		if err := os.MkdirAll(ingestOutDir, 0755); err != nil {
			return err
		}
	}

	tui.PrintHeader(version)
	return ingestOne(cfg, args[0], nil, ingestKeep)
}

// ingestOne processes a single file with a progress bar and prints the
// report. Shared by the ingest and import commands.
func ingestOne(cfg *config.Config, path string, sink ingest.ResultSink, keepSource bool) error {
	if err := ingest.ValidateUpload(path, cfg.Upload.MaxFileSize); err != nil {
		tui.PrintError(errors.Sanitize(err))
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	job := &ingest.Job{
		ID:         uuid.New().String(),
		FileName:   filepath.Base(path),
		FilePath:   path,
		StatusPath: filepath.Join(cfg.Upload.ResultsDir, "cli.status.json"),
		FileSize:   info.Size(),
	}

	processor := &ingest.Processor{
		ResultsDir:       cfg.Upload.ResultsDir,
		ProgressInterval: 500 * time.Millisecond,
		SampleSize:       cfg.Pipeline.SampleSize,
		Sink:             sink,
		KeepSource:       keepSource,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := tui.ShowProgress(info.Size(), filepath.Base(path))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if st, err := ingest.ReadStatus(job.StatusPath); err == nil {
					bar.Set64(info.Size() * int64(st.Progress) / 100)
				}
			}
		}
	}()

	started := time.Now()
	procErr := processor.ProcessFile(ctx, job)
	stop()
	<-done
	bar.Finish()

	if procErr != nil {
		tui.PrintError(errors.Sanitize(procErr))
		return procErr
	}

	data, err := os.ReadFile(filepath.Join(cfg.Upload.ResultsDir, job.ID+".json"))
	if err != nil {
		return fmt.Errorf("read result: %w", err)
	}
	var res aggregate.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	tui.PrintResult(&res, time.Since(started))
	return nil
}
