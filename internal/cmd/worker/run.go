package workerrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "github.com/webclinic017/pgjobq/internal/config"
	"github.com/webclinic017/pgjobq/internal/runtime"
	logpkg "github.com/webclinic017/pgjobq/pkg/log"
)

// Options configures the worker process.
type Options struct {
	// Config is the fully resolved configuration.
	Config cfgpkg.Config
	// Migrate applies pending schema migrations before starting.
	Migrate bool
}

// Run starts the background maintenance loops and blocks until ctx is
// cancelled or a termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context. We
	// layer a local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	procLogger := buildLogger(opts.Config.Log)
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(sctx, runtime.Options{Config: opts.Config, Logger: procLogger})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if opts.Migrate {
		if err := rt.Migrate(sctx); err != nil {
			return err
		}
	}
	if err := rt.CheckHealth(sctx); err != nil {
		return err
	}

	procLogger.Info("Starting pgjobq worker",
		logpkg.Str("level", opts.Config.Log.Level),
		logpkg.Str("format", opts.Config.Log.Format),
		logpkg.Int64("reaper_interval_ms", opts.Config.Reaper.IntervalMs),
		logpkg.Int64("scheduler_interval_ms", opts.Config.Scheduler.IntervalMs),
		logpkg.Int64("retain_completed_ms", opts.Config.Janitor.RetainCompletedMs),
	)

	rt.StartWorkers()
	<-sctx.Done()

	// Stop the loops before the pool goes away.
	rt.StopWorkers()
	procLogger.Info("pgjobq worker stopped")
	return nil
}

// buildLogger constructs the process-wide logger from config; defaults:
// level=info, format=text.
func buildLogger(cfg cfgpkg.LogConfig) logpkg.Logger {
	lvl := logpkg.InfoLevel
	if l, err := logpkg.ParseLevel(cfg.Level); err == nil {
		lvl = l
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if cfg.Format == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(lvl),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
}
