package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Database  DatabaseConfig `json:"database" yaml:"database"`
	Queue     QueueConfig    `json:"queue" yaml:"queue"`
	Reaper    SweepConfig    `json:"reaper" yaml:"reaper"`
	Scheduler SweepConfig    `json:"scheduler" yaml:"scheduler"`
	Janitor   JanitorConfig  `json:"janitor" yaml:"janitor"`
	Log       LogConfig      `json:"log" yaml:"log"`
}

// DatabaseConfig points the engine at its Postgres store.
type DatabaseConfig struct {
	// URL is a postgres:// connection string. Required.
	URL string `json:"url" yaml:"url"`
	// MaxConns caps the connection pool size.
	MaxConns int32 `json:"maxConns" yaml:"maxConns"`
	// TraceSQL logs every statement at debug level.
	TraceSQL bool `json:"traceSql" yaml:"traceSql"`
}

// QueueConfig carries per-queue operation defaults.
type QueueConfig struct {
	// VisibilityTimeoutMs is the default claim visibility timeout.
	VisibilityTimeoutMs int64 `json:"visibilityTimeoutMs" yaml:"visibilityTimeoutMs"`
	// ReceivePollMs bounds how long a blocked receive waits for an arrival
	// notification before rechecking the store.
	ReceivePollMs int64 `json:"receivePollMs" yaml:"receivePollMs"`
	// MaxClaimBatch caps max_messages on a single claim.
	MaxClaimBatch int `json:"maxClaimBatch" yaml:"maxClaimBatch"`
}

// SweepConfig shapes a background sweep loop.
type SweepConfig struct {
	IntervalMs int64 `json:"intervalMs" yaml:"intervalMs"`
	BatchSize  int   `json:"batchSize" yaml:"batchSize"`
}

// JanitorConfig controls retention of completed messages.
type JanitorConfig struct {
	// RetainCompletedMs is how long completed rows are kept before the
	// janitor deletes them. Zero disables the janitor entirely.
	RetainCompletedMs int64 `json:"retainCompletedMs" yaml:"retainCompletedMs"`
	IntervalMs        int64 `json:"intervalMs" yaml:"intervalMs"`
	BatchSize         int   `json:"batchSize" yaml:"batchSize"`
}

// LogConfig selects logger level and output format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			MaxConns: 8,
		},
		Queue: QueueConfig{
			VisibilityTimeoutMs: 30_000,
			ReceivePollMs:       1_000,
			MaxClaimBatch:       100,
		},
		Reaper: SweepConfig{
			IntervalMs: 1_000,
			BatchSize:  100,
		},
		Scheduler: SweepConfig{
			IntervalMs: 1_000,
			BatchSize:  100,
		},
		Janitor: JanitorConfig{
			RetainCompletedMs: 0, // keep completed rows forever
			IntervalMs:        60_000,
			BatchSize:         500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
