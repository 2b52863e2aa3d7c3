// Package store selects the storage backend the binaries run against.
package store

import (
	"context"
	"fmt"

	"github.com/dvloznov/contract-tracker/internal/config"
	"github.com/dvloznov/contract-tracker/internal/infra/postgres"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/repository"
	"github.com/dvloznov/contract-tracker/internal/store/inmemory"
)

// Open returns the Postgres store when a DSN is configured and an empty in-memory
// store otherwise. The returned close function releases the backend.
func Open(ctx context.Context, cfg config.Config) (repository.Store, func() error, error) {
	log := logger.FromContext(ctx)

	if !cfg.UsesPostgres() {
		log.Warn().Msg("DB_DSN not set, using the in-memory store; data is lost on exit")
		return inmemory.NewStore(), func() error { return nil }, nil
	}

	pg, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("store.Open: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("store.Open: %w", err)
		}
		log.Info().Msg("Database schema migrated")
	}
	return pg, pg.Close, nil
}
