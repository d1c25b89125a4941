package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adlens/adlens/pkg/dbload"
	"github.com/adlens/adlens/pkg/ingest"
	"github.com/adlens/adlens/pkg/watch"
)

var watchImport bool

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a directory and ingest dropped CSV exports",
	Long: `Watch a drop directory and enqueue an ingestion job for every CSV
file that appears. Files already present at startup are processed too.
Processed files are deleted from the drop directory.

Examples:
  adlens watch ./drop
  adlens watch ./drop --import    # also load rows into the database`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchImport, "import", false, "Load rows into the database as well")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var sink ingest.ResultSink
	if watchImport {
		store, err := dbload.Open(cfg.Storage.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		store.BatchSize = cfg.Pipeline.BatchSize
		store.CopyThreshold = cfg.Pipeline.CopyThreshold
		sink = store
	}

	processor := &ingest.Processor{
		ResultsDir:       cfg.Upload.ResultsDir,
		ProgressInterval: cfg.Pipeline.ProgressInterval,
		SampleSize:       cfg.Pipeline.SampleSize,
		Sink:             sink,
	}

	controller := ingest.NewController(processor.ProcessFile,
		cfg.Pipeline.MaxConcurrent,
		cfg.Pipeline.QueuePollInterval,
		cfg.Pipeline.JobTimeout)
	controller.QueueRetention = cfg.Pipeline.QueueRetention
	defer controller.Shutdown()

	watcher, err := watch.New(args[0], func(path string) error {
		if err := ingest.ValidateUpload(path, cfg.Upload.MaxFileSize); err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		jobID := uuid.New().String()
		job := &ingest.Job{
			ID:         jobID,
			FileName:   filepath.Base(path),
			FilePath:   path,
			StatusPath: filepath.Join(cfg.Upload.ResultsDir, jobID+".status.json"),
			FileSize:   info.Size(),
		}
		if !controller.Add(job) {
			return nil
		}
		log.Printf("[watch] queued %s as job %s", job.FileName, jobID)
		return nil
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[watch] watching %s", args[0])
	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
