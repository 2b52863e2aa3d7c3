package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/contract-tracker/internal/config"
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

	var (
		banksFlag = flag.String("banks", "", "Comma-separated bank IDs scanned on every tick")
		interval  = flag.Duration("interval", time.Hour, "Time between scheduled scans")
	)
	flag.Parse()

	log := cfg.Logger()

	bankIDs, err := parseBankIDs(*banksFlag)
	if err != nil || len(bankIDs) == 0 {
		log.Fatal().Err(err).Msg("Error: --banks needs at least one bank ID")
	}
	if *interval <= 0 {
		log.Fatal().Dur("interval", *interval).Msg("Error: --interval must be positive")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	s, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueConfig{
		BufferSize: cfg.QueueSize,
		Workers:    cfg.WorkerCount,
	}, jobStore)

	runner := pipeline.NewRunner(s, pipeline.Config{RunTimeout: cfg.RunTimeout})
	if err := jobQueue.Start(ctx, jobs.NewScanHandler(runner)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().
		Interface("banks", bankIDs).
		Dur("interval", *interval).
		Msg("Worker service started, scheduling scans")

	go schedule(ctx, log, jobQueue, bankIDs, *interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight scans
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}

// schedule publishes one scan per bank immediately and then on every tick.
func schedule(ctx context.Context, log zerolog.Logger, publisher jobs.Publisher, bankIDs []int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, bankID := range bankIDs {
			job := &jobs.ScanContractsJob{BankID: bankID, Trigger: jobs.TriggerSchedule}
			if err := publisher.PublishScanContracts(ctx, job); err != nil {
				log.Error().Err(err).Int64("bank_id", bankID).Msg("Failed to schedule scan")
				continue
			}
			log.Debug().Str("job_id", job.JobID).Int64("bank_id", bankID).Msg("Scan scheduled")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func parseBankIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
