// Package config loads the settings shared by the contract tracker binaries.
//
// Every field is read from an environment variable; binaries may override single
// fields with command-line flags after loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/contract-tracker/internal/infra/bigquery"
	"github.com/dvloznov/contract-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/pipeline"
)

// Config holds the settings of every binary.
type Config struct {
	// DatabaseDSN is the Postgres connection string. Empty selects the in-memory store.
	DatabaseDSN string

	// AutoMigrate creates or updates the Postgres tables at startup.
	AutoMigrate bool

	// HTTPPort is the port the API server listens on.
	HTTPPort string

	// GCSBucket receives uploaded statements. Empty disables archiving.
	GCSBucket string

	// BigQueryProject and BigQueryDataset locate the warehouse tables.
	BigQueryProject string
	BigQueryDataset string

	// NotionToken is the Notion integration secret.
	// SENSITIVE: Never log this value.
	NotionToken      string
	NotionDatabaseID string

	// RunTimeout bounds one contract scan of one bank.
	RunTimeout time.Duration

	// WorkerCount and QueueSize size the in-process job queue.
	WorkerCount int
	QueueSize   int

	LogLevel  string
	LogFormat string
}

// UsesPostgres reports whether a database DSN is configured.
func (c Config) UsesPostgres() bool {
	return c.DatabaseDSN != ""
}

// NotionConfigured reports whether Notion sync can run.
func (c Config) NotionConfigured() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

// Logger builds the logger described by LogLevel and LogFormat.
func (c Config) Logger() zerolog.Logger {
	return logger.NewWithOptions(logger.Options{Level: c.LogLevel, Format: c.LogFormat})
}

// LoadFromEnv loads configuration from environment variables.
//
// Environment variables:
//   - DB_DSN: Postgres DSN (default: in-memory store)
//   - DB_AUTO_MIGRATE: "true" to migrate at startup (default: false)
//   - PORT: API port (default: "8080")
//   - GCS_BUCKET: statement archive bucket
//   - BQ_PROJECT, BQ_DATASET: BigQuery project and dataset (default dataset: "finance")
//   - NOTION_TOKEN, NOTION_DB_ID: Notion integration secret and database
//   - RUN_TIMEOUT: scan budget as a Go duration (default: 2m)
//   - WORKER_COUNT, QUEUE_SIZE: job queue sizing (default: 5 and 100)
//   - LOG_LEVEL, LOG_FORMAT: zerolog level and "console" or "json"
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load reads the configuration through getenv.
func Load(getenv func(string) string) (Config, error) {
	cfg := Config{
		DatabaseDSN:      getenv("DB_DSN"),
		HTTPPort:         orDefault(getenv("PORT"), "8080"),
		GCSBucket:        getenv("GCS_BUCKET"),
		BigQueryProject:  getenv("BQ_PROJECT"),
		BigQueryDataset:  orDefault(getenv("BQ_DATASET"), bigquery.DefaultDatasetID),
		NotionToken:      getenv("NOTION_TOKEN"),
		NotionDatabaseID: getenv("NOTION_DB_ID"),
		LogLevel:         orDefault(getenv("LOG_LEVEL"), "info"),
		LogFormat:        orDefault(getenv("LOG_FORMAT"), logger.FormatConsole),
	}

	var err error
	if cfg.AutoMigrate, err = parseBool(getenv, "DB_AUTO_MIGRATE", false); err != nil {
		return Config{}, err
	}
	if cfg.RunTimeout, err = parseDuration(getenv, "RUN_TIMEOUT", pipeline.DefaultRunTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WorkerCount, err = parsePositiveInt(getenv, "WORKER_COUNT", inmemory.DefaultWorkers); err != nil {
		return Config{}, err
	}
	if cfg.QueueSize, err = parsePositiveInt(getenv, "QUEUE_SIZE", inmemory.DefaultBufferSize); err != nil {
		return Config{}, err
	}

	switch strings.ToLower(cfg.LogFormat) {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return Config{}, fmt.Errorf("config: LOG_FORMAT %q: want %q or %q", cfg.LogFormat, logger.FormatConsole, logger.FormatJSON)
	}

	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(getenv func(string) string, key string, def bool) (bool, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, raw)
	}
	return v, nil
}

func parsePositiveInt(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %d", key, v)
	}
	return v, nil
}
