package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/contract-tracker/internal/api/handlers"
	"github.com/dvloznov/contract-tracker/internal/api/middleware"
	"github.com/dvloznov/contract-tracker/internal/config"
	"github.com/dvloznov/contract-tracker/internal/contracts"
	"github.com/dvloznov/contract-tracker/internal/csvimport"
	"github.com/dvloznov/contract-tracker/internal/gcs"
	"github.com/dvloznov/contract-tracker/internal/gcsuploader"
	"github.com/dvloznov/contract-tracker/internal/jobs"
	"github.com/dvloznov/contract-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/pipeline"
	"github.com/dvloznov/contract-tracker/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse command-line flags
	var (
		port   = flag.String("port", cfg.HTTPPort, "HTTP server port (or set PORT env)")
		bucket = flag.String("bucket", cfg.GCSBucket, "GCS bucket statements are archived in (or set GCS_BUCKET env)")
	)
	flag.Parse()

	log := cfg.Logger()
	ctx := logger.WithContext(context.Background(), log)

	s, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	var archive gcs.StatementStore
	if *bucket == "" {
		log.Warn().Msg("No GCS bucket configured - statements will not be archived")
	} else {
		gcsStore, err := gcsuploader.NewGCSStatementStore(ctx, *bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create statement archive")
		}
		defer gcsStore.Close()
		archive = gcsStore
	}

	service := contracts.NewService(s)
	runner := pipeline.NewRunner(s, pipeline.Config{RunTimeout: cfg.RunTimeout})

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueConfig{
		BufferSize: cfg.QueueSize,
		Workers:    cfg.WorkerCount,
	}, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.WorkerCount).Msg("Starting scan workers")
	if err := jobQueue.Start(workerCtx, jobs.NewScanHandler(runner)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scan workers")
	}

	router := handlers.NewRouter(handlers.Handlers{
		Contracts:    handlers.NewContractsHandler(service),
		Transactions: handlers.NewTransactionsHandler(service),
		Scan:         handlers.NewScanHandler(runner, jobQueue),
		Statements:   handlers.NewStatementsHandler(s, archive, jobQueue, csvimport.DefaultOptions()),
		Jobs:         handlers.NewJobsHandler(jobStore),
	})

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      middleware.Chain(router, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Bool("postgres", cfg.UsesPostgres()).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// In-flight scans finish before the workers are cancelled.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
