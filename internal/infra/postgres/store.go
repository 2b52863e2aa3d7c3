// Package postgres implements repository.Store on PostgreSQL through gorm.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// DefaultSlowQuery is the duration above which a query is logged as slow.
const DefaultSlowQuery = 500 * time.Millisecond

// Store is the PostgreSQL implementation of repository.Store.
// InTx runs at SERIALIZABLE isolation so two scans of the same bank cannot
// interleave their reads and writes.
type Store struct {
	db   *gorm.DB
	inTx bool
}

// Open connects to the database described by dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("Open: empty DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newQueryLogger(logger.FromContext(ctx), DefaultSlowQuery),
	})
	if err != nil {
		return nil, fmt.Errorf("Open: connecting: %w: %w", domain.ErrStorage, err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table. Tables are migrated one at a time so
// the error names the table that failed.
func (s *Store) Migrate(ctx context.Context) error {
	log := logger.FromContext(ctx)
	for _, model := range allModels() {
		if err := s.db.WithContext(ctx).AutoMigrate(model); err != nil {
			return fmt.Errorf("Migrate: %T: %w: %w", model, domain.ErrStorage, err)
		}
		log.Debug().Str("model", fmt.Sprintf("%T", model)).Msg("migrated table")
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return sqlDB.Close()
}

// InTx implements repository.Store. Nested calls reuse the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(ctx, &Store{db: tx, inTx: true})
		return fnErr
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return storageErr("InTx", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// storageErr classifies a gorm error into the domain error kinds.
func storageErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

// Ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)

// Ensure queryLogger implements gorm's logger interface.
var _ gormlogger.Interface = (*queryLogger)(nil)
