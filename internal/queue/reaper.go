package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webclinic017/pgjobq/pkg/log"
)

// ReapExpired returns up to limit in_flight messages whose visibility
// deadline has passed to the pending pool, leaving attempt counts alone
// (the claim that lost them already counted). Expired rows are selected
// with the same lock-and-skip discipline as claims, so a reap never
// clobbers a concurrent ack: whichever transaction wins the row lock
// settles it, and the other sees its precondition gone. Returns the
// number of messages reclaimed.
func (e *Engine) ReapExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		WITH expired AS (
			SELECT id FROM pgjobq_messages
			WHERE status = 'in_flight' AND visibility_deadline < now()
			ORDER BY visibility_deadline
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		), reclaimed AS (
			UPDATE pgjobq_messages m
			SET status = 'pending', lock_token = NULL, visibility_deadline = NULL
			FROM expired x
			WHERE m.id = x.id
			RETURNING m.queue
		)
		SELECT queue, count(*) FROM reclaimed GROUP BY queue`,
		limit)
	if err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}
	perQueue := make(map[string]int)
	total := 0
	for rows.Next() {
		var queue string
		var n int
		if err := rows.Scan(&queue, &n); err != nil {
			rows.Close()
			return 0, fmt.Errorf("reap scan: %w", err)
		}
		perQueue[queue] = n
		total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	for queue := range perQueue {
		if err := notifyArrival(ctx, tx, queue); err != nil {
			return 0, fmt.Errorf("reap notify: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("reap commit: %w", err)
	}
	for queue := range perQueue {
		e.notifyArrivalLocal(queue)
	}
	return total, nil
}

// PurgeCompleted deletes up to limit completed messages across all queues
// whose completion is older than olderThan. Returns the number of rows
// removed.
func (e *Engine) PurgeCompleted(ctx context.Context, olderThan time.Duration, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	tag, err := e.db.Exec(ctx, `
		DELETE FROM pgjobq_messages
		WHERE id IN (
			SELECT id FROM pgjobq_messages
			WHERE status = 'completed'
			  AND completed_at <= now() - ($1::bigint * interval '1 millisecond')
			LIMIT $2
		)`,
		olderThan.Milliseconds(), limit)
	if err != nil {
		return 0, fmt.Errorf("purge completed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Reaper periodically returns expired in_flight messages to the pending
// pool so unacknowledged work is redelivered.
type Reaper struct {
	engine    *Engine
	interval  time.Duration
	batchSize int
	logger    log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ReaperConfig configures the redelivery reaper.
type ReaperConfig struct {
	Interval  time.Duration // sweep cadence (default: 1s)
	BatchSize int           // max rows reclaimed per sweep pass (default: 100)
}

// NewReaper creates a reaper over the engine.
func NewReaper(engine *Engine, cfg ReaperConfig, logger log.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		engine:    engine,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the reaper loop.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop gracefully stops the reaper.
func (r *Reaper) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Reaper started",
		log.Field{Key: "interval", Value: r.interval.String()},
		log.Field{Key: "batch_size", Value: r.batchSize},
	)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("Reaper stopped")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep reclaims in full batches until the backlog is drained. Failures
// are logged and retried on the next tick, never fatal.
func (r *Reaper) sweep() {
	for {
		n, err := r.engine.ReapExpired(r.ctx, r.batchSize)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Error("Reaper: sweep failed",
				log.Field{Key: "error", Value: err.Error()},
			)
			return
		}
		if n > 0 {
			r.logger.Debug("Reaper: reclaimed expired messages",
				log.Field{Key: "count", Value: n},
			)
		}
		if n < r.batchSize {
			return
		}
	}
}

// Janitor periodically deletes completed messages older than the retain
// window, keeping the message table from growing without bound. Producers
// awaiting completion treat a purged row as acknowledged, so purging does
// not strand waiters.
type Janitor struct {
	engine    *Engine
	retain    time.Duration
	interval  time.Duration
	batchSize int
	logger    log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// JanitorConfig configures the completed-message janitor.
type JanitorConfig struct {
	Retain    time.Duration // keep completed rows this long (default: 24h)
	Interval  time.Duration // sweep cadence (default: 1m)
	BatchSize int           // max rows deleted per sweep pass (default: 500)
}

// NewJanitor creates a janitor over the engine.
func NewJanitor(engine *Engine, cfg JanitorConfig, logger log.Logger) *Janitor {
	if cfg.Retain <= 0 {
		cfg.Retain = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		engine:    engine,
		retain:    cfg.Retain,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the janitor loop.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.run()
}

// Stop gracefully stops the janitor.
func (j *Janitor) Stop() {
	j.cancel()
	j.wg.Wait()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Janitor started",
		log.Field{Key: "retain", Value: j.retain.String()},
		log.Field{Key: "interval", Value: j.interval.String()},
	)

	for {
		select {
		case <-j.ctx.Done():
			j.logger.Info("Janitor stopped")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	for {
		n, err := j.engine.PurgeCompleted(j.ctx, j.retain, j.batchSize)
		if err != nil {
			if j.ctx.Err() != nil {
				return
			}
			j.logger.Error("Janitor: sweep failed",
				log.Field{Key: "error", Value: err.Error()},
			)
			return
		}
		if n > 0 {
			j.logger.Debug("Janitor: purged completed messages",
				log.Field{Key: "count", Value: n},
			)
		}
		if n < int64(j.batchSize) {
			return
		}
	}
}
