package main

import (
	"context"
	"flag"
	"time"

	"github.com/dvloznov/contract-tracker/internal/config"
	infraBQ "github.com/dvloznov/contract-tracker/internal/infra/bigquery"
	"github.com/dvloznov/contract-tracker/internal/infra/postgres"
	"github.com/dvloznov/contract-tracker/internal/logger"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		migratePostgres = flag.Bool("postgres", true, "Migrate the Postgres schema (needs DB_DSN)")
		migrateBigQuery = flag.Bool("bigquery", false, "Apply the BigQuery warehouse migrations")
		projectID       = flag.String("project", cfg.BigQueryProject, "GCP project ID (or set BQ_PROJECT env)")
		datasetID       = flag.String("dataset", cfg.BigQueryDataset, "BigQuery dataset ID (or set BQ_DATASET env)")
		appliedBy       = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	)
	flag.Parse()

	log := cfg.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if !*migratePostgres && !*migrateBigQuery {
		log.Fatal().Msg("Error: nothing to migrate, enable -postgres or -bigquery")
	}

	if *migratePostgres {
		if !cfg.UsesPostgres() {
			log.Fatal().Msg("Error: DB_DSN is required to migrate Postgres")
		}
		store, err := postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			log.Fatal().Err(err).Msg("Postgres migration failed")
		}
		store.Close()
		log.Info().Msg("Postgres schema is up to date")
	}

	if *migrateBigQuery {
		if *projectID == "" {
			log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
		}
		client, bqCfg, err := infraBQ.NewClient(ctx, infraBQ.Config{ProjectID: *projectID, DatasetID: *datasetID})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer client.Close()

		log.Info().Str("project", bqCfg.ProjectID).Str("dataset", bqCfg.DatasetID).Msg("Connected to BigQuery")

		applied, err := infraBQ.MigrateWithClient(ctx, client, bqCfg, *appliedBy)
		if err != nil {
			log.Fatal().Err(err).Msg("BigQuery migration failed")
		}
		if applied == 0 {
			log.Info().Msg("No new migrations to apply. Warehouse is up to date.")
		} else {
			log.Info().Int("applied", applied).Msg("Successfully applied warehouse migrations")
		}
	}
}
