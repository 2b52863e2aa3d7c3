// Package bigquery connects the contract engine to the BigQuery finance dataset:
// statement transactions are imported from it and contract snapshots exported to it.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	// DefaultDatasetID is the dataset holding the finance tables.
	DefaultDatasetID = "finance"

	transactionsTable    = "transactions"
	contractsTable       = "contract_snapshots"
	contractHistoryTable = "contract_history_snapshots"
	migrationsTable      = "schema_migrations"
)

// Config locates the finance dataset.
type Config struct {
	ProjectID string
	DatasetID string
}

func (c Config) withDefaults() (Config, error) {
	if c.ProjectID == "" {
		return c, fmt.Errorf("bigquery: project ID is required")
	}
	if c.DatasetID == "" {
		c.DatasetID = DefaultDatasetID
	}
	return c, nil
}

// table returns the fully qualified, backtick quoted name of a table.
func (c Config) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", c.ProjectID, c.DatasetID, name)
}

// NewClient creates a BigQuery client for the configured project.
func NewClient(ctx context.Context, cfg Config) (*bigquery.Client, Config, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, cfg, fmt.Errorf("NewClient: %w", err)
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, cfg, fmt.Errorf("NewClient: creating client: %w", err)
	}
	return client, cfg, nil
}

// TransactionSource reads statement transactions from the warehouse.
// It holds a shared BigQuery client to avoid creating a new connection for each query.
type TransactionSource struct {
	client *bigquery.Client
	cfg    Config
}

// NewTransactionSource creates a TransactionSource with its own client.
func NewTransactionSource(ctx context.Context, cfg Config) (*TransactionSource, error) {
	client, cfg, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionSource: %w", err)
	}
	return &TransactionSource{client: client, cfg: cfg}, nil
}

// Close closes the BigQuery client connection.
func (s *TransactionSource) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ContractExporter streams contract snapshots into the warehouse.
type ContractExporter struct {
	client *bigquery.Client
	cfg    Config
}

// NewContractExporter creates a ContractExporter with its own client.
func NewContractExporter(ctx context.Context, cfg Config) (*ContractExporter, error) {
	client, cfg, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewContractExporter: %w", err)
	}
	return &ContractExporter{client: client, cfg: cfg}, nil
}

// Close closes the BigQuery client connection.
func (e *ContractExporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
