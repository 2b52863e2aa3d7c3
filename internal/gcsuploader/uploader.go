package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/contract-tracker/internal/gcs"
)

// UploadTimeout bounds a single statement upload.
const UploadTimeout = 2 * time.Minute

// UploadWithClient streams r into bucket/object and returns the object's gs:// URI.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
func UploadWithClient(ctx context.Context, client *storage.Client, bucket, object, contentType string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("UploadWithClient: copy to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("UploadWithClient: finalize upload: %w", err)
	}
	return gcs.URI(bucket, object), nil
}

// FetchWithClient downloads the object bytes from the given gs:// URI.
func FetchWithClient(ctx context.Context, client *storage.Client, uri string) ([]byte, error) {
	bucket, object, err := gcs.ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("FetchWithClient: %w", err)
	}

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchWithClient: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchWithClient: reading bytes: %w", err)
	}
	return data, nil
}
