package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/contract-tracker/internal/gcs"
	"github.com/dvloznov/contract-tracker/internal/logger"
)

// Re-export interface from shared package.
type StatementStore = gcs.StatementStore

// GCSStatementStore is the concrete implementation of StatementStore that keeps
// statements in a Google Cloud Storage bucket.
type GCSStatementStore struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewGCSStatementStore creates a GCSStatementStore with a shared storage client.
func NewGCSStatementStore(ctx context.Context, bucket string) (*GCSStatementStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSStatementStore: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStatementStore: create storage client: %w", err)
	}
	return &GCSStatementStore{client: client, bucket: bucket, now: time.Now}, nil
}

// Close closes the storage client.
func (s *GCSStatementStore) Close() error {
	return s.client.Close()
}

// UploadStatement implements StatementStore.
func (s *GCSStatementStore) UploadStatement(ctx context.Context, bankID int64, filename string, r io.Reader) (string, error) {
	object := gcs.StatementObjectName(bankID, filename, s.now())
	uri, err := UploadWithClient(ctx, s.client, s.bucket, object, "text/csv", r)
	if err != nil {
		return "", fmt.Errorf("UploadStatement: bank %d: %w", bankID, err)
	}
	log := logger.FromContext(ctx)
	log.Info().Int64("bank_id", bankID).Str("uri", uri).Msg("uploaded statement")
	return uri, nil
}

// FetchStatement implements StatementStore.
func (s *GCSStatementStore) FetchStatement(ctx context.Context, uri string) ([]byte, error) {
	return FetchWithClient(ctx, s.client, uri)
}

// Ensure GCSStatementStore implements StatementStore.
var _ StatementStore = (*GCSStatementStore)(nil)
