package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Database.MaxConns != 8 {
		t.Fatalf("default max conns")
	}
	if cfg.Queue.VisibilityTimeoutMs != 30_000 {
		t.Fatalf("default visibility timeout")
	}
	if cfg.Reaper.IntervalMs != 1_000 || cfg.Reaper.BatchSize != 100 {
		t.Fatalf("default reaper settings")
	}
	if cfg.Janitor.RetainCompletedMs != 0 {
		t.Fatalf("janitor should be disabled by default")
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("default log level")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pgjobq.json")
	data := []byte(`{"database":{"url":"postgres://localhost/q","maxConns":4},"queue":{"visibilityTimeoutMs":5000},"reaper":{"intervalMs":250,"batchSize":10}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/q" {
		t.Fatalf("url not loaded: %q", cfg.Database.URL)
	}
	if cfg.Database.MaxConns != 4 {
		t.Fatalf("max conns not loaded")
	}
	if cfg.Queue.VisibilityTimeoutMs != 5000 {
		t.Fatalf("visibility timeout not loaded")
	}
	if cfg.Reaper.IntervalMs != 250 || cfg.Reaper.BatchSize != 10 {
		t.Fatalf("reaper settings not loaded")
	}
	// Untouched sections keep their defaults.
	if cfg.Scheduler.IntervalMs != 1_000 {
		t.Fatalf("scheduler default lost on partial load")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pgjobq.yaml")
	data := []byte("database:\n  url: postgres://localhost/yamlq\nqueue:\n  receivePollMs: 200\nlog:\n  level: debug\n  format: json\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/yamlq" {
		t.Fatalf("yaml url not loaded: %q", cfg.Database.URL)
	}
	if cfg.Queue.ReceivePollMs != 200 {
		t.Fatalf("yaml poll not loaded")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("yaml log settings not loaded")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if cfg.Queue.MaxClaimBatch != 100 {
		t.Fatalf("expected defaults")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("PGJOBQ_DATABASE_URL", "postgres://env/q")
	os.Setenv("PGJOBQ_VISIBILITY_TIMEOUT_MS", "1500")
	os.Setenv("PGJOBQ_REAPER_BATCH_SIZE", "25")
	os.Setenv("PGJOBQ_LOG_FORMAT", "json")
	t.Cleanup(func() {
		os.Unsetenv("PGJOBQ_DATABASE_URL")
		os.Unsetenv("PGJOBQ_VISIBILITY_TIMEOUT_MS")
		os.Unsetenv("PGJOBQ_REAPER_BATCH_SIZE")
		os.Unsetenv("PGJOBQ_LOG_FORMAT")
	})
	FromEnv(&cfg)
	if cfg.Database.URL != "postgres://env/q" {
		t.Fatalf("env override url")
	}
	if cfg.Queue.VisibilityTimeoutMs != 1500 {
		t.Fatalf("env override visibility timeout")
	}
	if cfg.Reaper.BatchSize != 25 {
		t.Fatalf("env override reaper batch")
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("env override log format")
	}
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	cfg := Default()
	os.Setenv("PGJOBQ_RECEIVE_POLL_MS", "not-a-number")
	t.Cleanup(func() { os.Unsetenv("PGJOBQ_RECEIVE_POLL_MS") })
	FromEnv(&cfg)
	if cfg.Queue.ReceivePollMs != 1_000 {
		t.Fatalf("malformed env value should leave default intact")
	}
}
