package config

import (
	"os"
	"strconv"
)

// FromEnv overlays PGJOBQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("PGJOBQ_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("PGJOBQ_DATABASE_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("PGJOBQ_DATABASE_TRACE_SQL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.TraceSQL = b
		}
	}
	if v := os.Getenv("PGJOBQ_VISIBILITY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Queue.VisibilityTimeoutMs = n
		}
	}
	if v := os.Getenv("PGJOBQ_RECEIVE_POLL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Queue.ReceivePollMs = n
		}
	}
	if v := os.Getenv("PGJOBQ_MAX_CLAIM_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxClaimBatch = n
		}
	}
	if v := os.Getenv("PGJOBQ_REAPER_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Reaper.IntervalMs = n
		}
	}
	if v := os.Getenv("PGJOBQ_REAPER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reaper.BatchSize = n
		}
	}
	if v := os.Getenv("PGJOBQ_SCHEDULER_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Scheduler.IntervalMs = n
		}
	}
	if v := os.Getenv("PGJOBQ_SCHEDULER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.BatchSize = n
		}
	}
	if v := os.Getenv("PGJOBQ_JANITOR_RETAIN_COMPLETED_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Janitor.RetainCompletedMs = n
		}
	}
	if v := os.Getenv("PGJOBQ_JANITOR_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Janitor.IntervalMs = n
		}
	}
	if v := os.Getenv("PGJOBQ_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PGJOBQ_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
