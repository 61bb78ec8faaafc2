package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webclinic017/pgjobq/pkg/log"
)

// PromoteDue moves up to limit scheduled messages whose deliver_at has
// arrived into the pending pool and notifies their queues. Claims already
// take due scheduled rows directly, so promotion is about waking blocked
// receivers, not about correctness of eligibility. Returns the number of
// messages promoted.
func (e *Engine) PromoteDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("promote: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		WITH due AS (
			SELECT id FROM pgjobq_messages
			WHERE status = 'scheduled' AND deliver_at <= now()
			ORDER BY deliver_at
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		), promoted AS (
			UPDATE pgjobq_messages m
			SET status = 'pending'
			FROM due d
			WHERE m.id = d.id
			RETURNING m.queue
		)
		SELECT queue, count(*) FROM promoted GROUP BY queue`,
		limit)
	if err != nil {
		return 0, fmt.Errorf("promote: %w", err)
	}
	perQueue := make(map[string]int)
	total := 0
	for rows.Next() {
		var queue string
		var n int
		if err := rows.Scan(&queue, &n); err != nil {
			rows.Close()
			return 0, fmt.Errorf("promote scan: %w", err)
		}
		perQueue[queue] = n
		total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("promote: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	for queue := range perQueue {
		if err := notifyArrival(ctx, tx, queue); err != nil {
			return 0, fmt.Errorf("promote notify: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("promote commit: %w", err)
	}
	for queue := range perQueue {
		e.notifyArrivalLocal(queue)
	}
	return total, nil
}

// nextDue returns the earliest deliver_at among scheduled messages, or a
// zero time when none are scheduled.
func (e *Engine) nextDue(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := e.db.QueryRow(ctx,
		`SELECT deliver_at FROM pgjobq_messages WHERE status = 'scheduled' ORDER BY deliver_at LIMIT 1`).
		Scan(&at)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("next due: %w", err)
	}
	return at, nil
}

// schedulerMinWake keeps the timer from busy-looping when a message is
// due right now.
const schedulerMinWake = 10 * time.Millisecond

// Scheduler promotes scheduled messages once their delivery time arrives.
// Between sweeps its timer aims at the earliest known deliver_at, capped
// by the configured interval, so the interval only bounds the worst-case
// latency rather than setting it.
type Scheduler struct {
	engine    *Engine
	interval  time.Duration
	batchSize int
	logger    log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	Interval  time.Duration // max sleep between sweeps (default: 1s)
	BatchSize int           // max rows promoted per sweep pass (default: 100)
}

// NewScheduler creates a scheduler over the engine.
func NewScheduler(engine *Engine, cfg SchedulerConfig, logger log.Logger) *Scheduler {
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
	return &Scheduler{
		engine:    engine,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	s.logger.Info("Scheduler started",
		log.Field{Key: "interval", Value: s.interval.String()},
		log.Field{Key: "batch_size", Value: s.batchSize},
	)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-timer.C:
		}
		s.sweep()
		timer.Reset(s.nextWake())
	}
}

func (s *Scheduler) sweep() {
	for {
		n, err := s.engine.PromoteDue(s.ctx, s.batchSize)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Scheduler: sweep failed",
				log.Field{Key: "error", Value: err.Error()},
			)
			return
		}
		if n > 0 {
			s.logger.Debug("Scheduler: promoted due messages",
				log.Field{Key: "count", Value: n},
			)
		}
		if n < s.batchSize {
			return
		}
	}
}

// nextWake picks the next timer duration. The earliest deliver_at is a
// hint; the sweep itself compares against the database clock, and the
// interval cap keeps polling alive if the hint is wrong or the query
// fails.
func (s *Scheduler) nextWake() time.Duration {
	next, err := s.engine.nextDue(s.ctx)
	if err != nil || next.IsZero() {
		return s.interval
	}
	d := time.Until(next)
	if d < schedulerMinWake {
		d = schedulerMinWake
	}
	if d > s.interval {
		d = s.interval
	}
	return d
}
