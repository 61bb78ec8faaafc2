package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/webclinic017/pgjobq/internal/config"
	"github.com/webclinic017/pgjobq/internal/notify"
	"github.com/webclinic017/pgjobq/internal/queue"
	"github.com/webclinic017/pgjobq/internal/storage/postgres"
	"github.com/webclinic017/pgjobq/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
}

// Runtime wires the store, notification plumbing, and queue engine for a
// single process. Background workers (reaper, scheduler, janitor) start
// only on StartWorkers, so one-shot callers do not drag sweep loops
// along.
type Runtime struct {
	db       *postgres.DB
	hub      *notify.Hub
	listener *notify.Listener
	engine   *queue.Engine
	config   cfgpkg.Config
	logger   log.Logger

	reaper    *queue.Reaper
	scheduler *queue.Scheduler
	janitor   *queue.Janitor
}

func millis(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

// Open connects to the store and starts the notification listener.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	cfg := opts.Config

	db, err := postgres.Open(ctx, postgres.Options{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		TraceSQL: cfg.Database.TraceSQL,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub()
	engine := queue.NewEngine(db, hub, queue.EngineConfig{
		VisibilityTimeout: millis(cfg.Queue.VisibilityTimeoutMs),
		ReceivePoll:       millis(cfg.Queue.ReceivePollMs),
		MaxClaimBatch:     cfg.Queue.MaxClaimBatch,
		Logger:            logger,
	})
	listener := notify.NewListener(db.ConnConfig(), hub, logger)
	listener.Start()

	return &Runtime{
		db:       db,
		hub:      hub,
		listener: listener,
		engine:   engine,
		config:   cfg,
		logger:   logger,
	}, nil
}

// StartWorkers launches the reaper and scheduler sweeps, plus the janitor
// when a completed-message retention window is configured. Idempotent.
func (r *Runtime) StartWorkers() {
	if r.reaper != nil {
		return
	}
	r.reaper = queue.NewReaper(r.engine, queue.ReaperConfig{
		Interval:  millis(r.config.Reaper.IntervalMs),
		BatchSize: r.config.Reaper.BatchSize,
	}, r.logger)
	r.reaper.Start()

	r.scheduler = queue.NewScheduler(r.engine, queue.SchedulerConfig{
		Interval:  millis(r.config.Scheduler.IntervalMs),
		BatchSize: r.config.Scheduler.BatchSize,
	}, r.logger)
	r.scheduler.Start()

	if r.config.Janitor.RetainCompletedMs > 0 {
		r.janitor = queue.NewJanitor(r.engine, queue.JanitorConfig{
			Retain:    millis(r.config.Janitor.RetainCompletedMs),
			Interval:  millis(r.config.Janitor.IntervalMs),
			BatchSize: r.config.Janitor.BatchSize,
		}, r.logger)
		r.janitor.Start()
	}
}

// StopWorkers stops any running sweep loops.
func (r *Runtime) StopWorkers() {
	if r.reaper != nil {
		r.reaper.Stop()
		r.reaper = nil
	}
	if r.scheduler != nil {
		r.scheduler.Stop()
		r.scheduler = nil
	}
	if r.janitor != nil {
		r.janitor.Stop()
		r.janitor = nil
	}
}

// Close stops workers and the listener, then closes the store.
func (r *Runtime) Close() error {
	r.StopWorkers()
	if r.listener != nil {
		r.listener.Stop()
		r.listener = nil
	}
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	return nil
}

// Migrate brings the schema to the latest version.
func (r *Runtime) Migrate(ctx context.Context) error {
	return r.db.MigrateToLatest(ctx)
}

// CheckHealth verifies connectivity and that the schema is migrated.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := r.db.Ping(ctx); err != nil {
		return err
	}
	v, err := r.db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if v == 0 {
		return errors.New("schema not migrated; run migrate first")
	}
	return nil
}

// CreateQueue registers a new queue.
func (r *Runtime) CreateQueue(ctx context.Context, name string) (*queue.Queue, error) {
	return r.engine.CreateQueue(ctx, name)
}

// OpenQueue returns a handle to an existing queue.
func (r *Runtime) OpenQueue(ctx context.Context, name string) (*queue.Queue, error) {
	return r.engine.OpenQueue(ctx, name)
}

// EnsureQueue opens the queue, creating it if absent.
func (r *Runtime) EnsureQueue(ctx context.Context, name string) (*queue.Queue, error) {
	return r.engine.EnsureQueue(ctx, name)
}

// Engine exposes the queue engine for operations not wrapped here.
func (r *Runtime) Engine() *queue.Engine { return r.engine }

// DB exposes the underlying store (internal use only).
func (r *Runtime) DB() *postgres.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
