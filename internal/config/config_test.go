package config

import (
	"testing"
	"time"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(env(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.UsesPostgres() || cfg.NotionConfigured() || cfg.AutoMigrate {
		t.Errorf("unexpected optional features enabled: %+v", cfg)
	}
	if cfg.HTTPPort != "8080" || cfg.BigQueryDataset != "finance" {
		t.Errorf("port/dataset = %q/%q", cfg.HTTPPort, cfg.BigQueryDataset)
	}
	if cfg.RunTimeout != 2*time.Minute || cfg.WorkerCount != 5 || cfg.QueueSize != 100 {
		t.Errorf("timeout/workers/queue = %v/%d/%d", cfg.RunTimeout, cfg.WorkerCount, cfg.QueueSize)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"DB_DSN":          "postgres://localhost/contracts",
		"DB_AUTO_MIGRATE": "true",
		"PORT":            "9090",
		"GCS_BUCKET":      "statements",
		"BQ_PROJECT":      "proj",
		"BQ_DATASET":      "warehouse",
		"NOTION_TOKEN":    "secret",
		"NOTION_DB_ID":    "db",
		"RUN_TIMEOUT":     "30s",
		"WORKER_COUNT":    "2",
		"QUEUE_SIZE":      "10",
		"LOG_LEVEL":       "debug",
		"LOG_FORMAT":      "json",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.UsesPostgres() || !cfg.AutoMigrate || !cfg.NotionConfigured() {
		t.Errorf("features = %+v", cfg)
	}
	if cfg.HTTPPort != "9090" || cfg.GCSBucket != "statements" || cfg.BigQueryProject != "proj" || cfg.BigQueryDataset != "warehouse" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RunTimeout != 30*time.Second || cfg.WorkerCount != 2 || cfg.QueueSize != 10 {
		t.Errorf("timeout/workers/queue = %v/%d/%d", cfg.RunTimeout, cfg.WorkerCount, cfg.QueueSize)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad bool", map[string]string{"DB_AUTO_MIGRATE": "sometimes"}},
		{"bad duration", map[string]string{"RUN_TIMEOUT": "soon"}},
		{"zero duration", map[string]string{"RUN_TIMEOUT": "0s"}},
		{"bad workers", map[string]string{"WORKER_COUNT": "many"}},
		{"negative queue", map[string]string{"QUEUE_SIZE": "-1"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(env(tt.vars)); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.HTTPPort != "7070" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
}
