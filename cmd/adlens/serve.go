package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adlens/adlens/pkg/aggregate"
	"github.com/adlens/adlens/pkg/archive"
	"github.com/adlens/adlens/pkg/cache"
	"github.com/adlens/adlens/pkg/dbload"
	"github.com/adlens/adlens/pkg/ingest"
	"github.com/adlens/adlens/pkg/server"
	"github.com/adlens/adlens/pkg/telemetry"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion HTTP server",
	Long: `Start the HTTP server for uploads, job polling, and result downloads.

The server provides:
  - Multipart CSV upload with synchronous validation
  - Polled status and result resources per job
  - XLSX report download
  - Queue and import-session introspection

Examples:
  adlens serve                 # Start on the configured port (8080)
  adlens serve --port 3000     # Start on a custom port`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel := telemetry.New(telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    "adlens",
		ServiceVersion: version,
	})
	shutdownTelemetry, err := tel.Init(ctx)
	if err != nil {
		log.Printf("[serve] telemetry disabled: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	store, err := dbload.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	store.BatchSize = cfg.Pipeline.BatchSize
	store.CopyThreshold = cfg.Pipeline.CopyThreshold

	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		cacheCfg := cache.DefaultConfig(cfg.Cache.Address)
		cacheCfg.Password = cfg.Cache.Password
		cacheCfg.Database = cfg.Cache.Database
		cacheCfg.TTL = cfg.Cache.TTL
		resultCache, err = cache.New(cacheCfg)
		if err != nil {
			log.Printf("[serve] result cache disabled: %v", err)
			resultCache = nil
		} else {
			defer resultCache.Close()
		}
	}

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		archiver, err = archive.New(ctx, archive.Config{
			Region: cfg.Archive.Region,
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
		})
		if err != nil {
			log.Printf("[serve] snapshot archival disabled: %v", err)
			archiver = nil
		}
	}

	processor := &ingest.Processor{
		ResultsDir:       cfg.Upload.ResultsDir,
		ProgressInterval: cfg.Pipeline.ProgressInterval,
		SampleSize:       cfg.Pipeline.SampleSize,
		Sink:             store,
	}

	process := func(ctx context.Context, job *ingest.Job) error {
		jobCtx, span := tel.StartJobSpan(ctx, job.ID, job.FileName)
		err := processor.ProcessFile(jobCtx, job)
		var rows, skipped int64
		if st, serr := ingest.ReadStatus(job.StatusPath); serr == nil {
			rows, skipped = st.ProcessedLines, st.SkippedLines
		}
		telemetry.RecordJobResult(span, rows, skipped, err)
		if resultCache != nil {
			resultCache.Invalidate(ctx, job.ID)
		}
		if err == nil && archiver != nil {
			if aerr := archiveSnapshot(ctx, archiver, cfg.Upload.ResultsDir, job.ID); aerr != nil {
				log.Printf("[serve] job %s: snapshot archive: %v", job.ID, aerr)
			}
		}
		return err
	}

	controller := ingest.NewController(process,
		cfg.Pipeline.MaxConcurrent,
		cfg.Pipeline.QueuePollInterval,
		cfg.Pipeline.JobTimeout)
	controller.QueueRetention = cfg.Pipeline.QueueRetention
	defer controller.Shutdown()

	sweeper := &ingest.Sweeper{
		Dir:       cfg.Upload.ResultsDir,
		Retention: cfg.Pipeline.ResultRetention,
		Interval:  time.Hour,
	}
	go sweeper.Run(ctx)

	srv := server.New(cfg, controller, resultCache, store)
	httpServer := &http.Server{
		Addr:         srv.Addr(),
		Handler:      srv,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[serve] listening on http://%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Printf("[serve] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	shutdownTelemetry(shutdownCtx)
	return nil
}

// archiveSnapshot re-reads the persisted result and uploads it. Runs after
// the job completes so an upload failure never fails the job.
func archiveSnapshot(ctx context.Context, archiver *archive.Archiver, resultsDir, jobID string) error {
	data, err := os.ReadFile(filepath.Join(resultsDir, jobID+".json"))
	if err != nil {
		return err
	}
	var res aggregate.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}
	return archiver.ArchiveResult(ctx, &res)
}
