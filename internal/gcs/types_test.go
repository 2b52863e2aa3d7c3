package gcs

import (
	"testing"
	"time"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/statements/a.csv", "bucket", "statements/a.csv", false},
		{"gs://bucket/", "", "", true},
		{"gs://bucket", "", "", true},
		{"s3://bucket/a.csv", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI() = %q, %q", bucket, object)
			}
		})
	}
}

func TestExtractFilename(t *testing.T) {
	if got := ExtractFilename("gs://bucket/statements/bank-7/file.csv"); got != "file.csv" {
		t.Errorf("ExtractFilename() = %q", got)
	}
	if got := ExtractFilename("gs://bucket"); got != "bucket" {
		t.Errorf("ExtractFilename() = %q", got)
	}
}

func TestStatementObjectName(t *testing.T) {
	at := time.Date(2024, 5, 1, 14, 3, 9, 0, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		filename string
		want     string
	}{
		{"march.csv", "statements/bank-7/20240501T120309Z-march.csv"},
		{"C:\\Users\\me\\Kontoauszug März.csv", "statements/bank-7/20240501T120309Z-Kontoauszug_M_rz.csv"},
		{"../../etc/passwd", "statements/bank-7/20240501T120309Z-passwd"},
		{"", "statements/bank-7/20240501T120309Z-statement.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := StatementObjectName(7, tt.filename, at); got != tt.want {
				t.Errorf("StatementObjectName() = %q, want %q", got, tt.want)
			}
		})
	}
	if uri := URI("b", "o/x.csv"); uri != "gs://b/o/x.csv" {
		t.Errorf("URI() = %q", uri)
	}
}
