package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// StatementStore provides an interface for storing bank statement files.
// This interface enables mocking the bucket in the CSV import path.
type StatementStore interface {
	// UploadStatement stores a statement of the bank and returns its gs:// URI.
	UploadStatement(ctx context.Context, bankID int64, filename string, r io.Reader) (string, error)

	// FetchStatement downloads the statement bytes from the given gs:// URI.
	FetchStatement(ctx context.Context, uri string) ([]byte, error)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// URI builds the gs:// URI of an object.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ExtractFilename extracts the filename from a GCS URI.
// e.g., "gs://bucket/statements/bank-7/file.csv" → "file.csv"
func ExtractFilename(uri string) string {
	_, object, err := ParseURI(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "gs://")
	}
	return path.Base(object)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StatementObjectName returns the object name a statement upload is stored under:
// statements/bank-<id>/<UTC timestamp>-<sanitized filename>.
func StatementObjectName(bankID int64, filename string, at time.Time) string {
	base := unsafeChars.ReplaceAllString(path.Base(strings.ReplaceAll(filename, "\\", "/")), "_")
	if base == "" || base == "." || base == "_" {
		base = "statement.csv"
	}
	return fmt.Sprintf("statements/bank-%d/%s-%s", bankID, at.UTC().Format("20060102T150405Z"), base)
}
