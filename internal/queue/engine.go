package queue

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webclinic017/pgjobq/internal/notify"
	"github.com/webclinic017/pgjobq/internal/storage/postgres"
	"github.com/webclinic017/pgjobq/pkg/id"
	"github.com/webclinic017/pgjobq/pkg/log"
)

const (
	// DefaultVisibilityTimeout hides a claimed message for 30s unless the
	// caller chooses otherwise.
	DefaultVisibilityTimeout = 30 * time.Second
	// DefaultReceivePoll bounds how long a blocked receive or completion
	// wait sleeps between store checks when no notification arrives.
	DefaultReceivePoll = time.Second
	// DefaultMaxClaimBatch caps messages handed out per claim.
	DefaultMaxClaimBatch = 100
)

// Queue names end up in notification payloads, so keep them to a charset
// that cannot collide with the payload framing.
var queueNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Engine coordinates all queue operations against one database. The store
// is the sole source of truth; the engine holds no cross-caller state
// beyond the in-process notification hub, so any number of engines in any
// number of processes may share a database.
type Engine struct {
	db     *postgres.DB
	hub    *notify.Hub
	gen    *id.Generator
	logger log.Logger

	visibilityTimeout time.Duration
	receivePoll       time.Duration
	maxClaimBatch     int
}

// EngineConfig carries tunables for an Engine. Zero values select
// defaults.
type EngineConfig struct {
	// VisibilityTimeout applies to claims that do not pass their own.
	VisibilityTimeout time.Duration
	// ReceivePoll is the bounded wait between store checks while blocked.
	ReceivePoll time.Duration
	// MaxClaimBatch caps the batch size of a single claim.
	MaxClaimBatch int
	// Logger for engine messages. If nil, a default logger is used.
	Logger log.Logger
}

// NewEngine creates an engine over an open database and hub.
func NewEngine(db *postgres.DB, hub *notify.Hub, cfg EngineConfig) *Engine {
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if cfg.ReceivePoll <= 0 {
		cfg.ReceivePoll = DefaultReceivePoll
	}
	if cfg.MaxClaimBatch <= 0 {
		cfg.MaxClaimBatch = DefaultMaxClaimBatch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	return &Engine{
		db:                db,
		hub:               hub,
		gen:               id.NewGenerator(),
		logger:            logger.WithComponent("queue"),
		visibilityTimeout: cfg.VisibilityTimeout,
		receivePoll:       cfg.ReceivePoll,
		maxClaimBatch:     cfg.MaxClaimBatch,
	}
}

// CreateQueue registers a new queue name and returns a handle to it.
// Returns ErrQueueAlreadyExists when the name is taken.
func (e *Engine) CreateQueue(ctx context.Context, name string) (*Queue, error) {
	if !queueNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid queue name %q", name)
	}
	_, err := e.db.Exec(ctx, `INSERT INTO pgjobq_queues (name) VALUES ($1)`, name)
	if err != nil {
		if postgres.IsSQLState(err, postgres.CodeUniqueViolation) {
			return nil, ErrQueueAlreadyExists
		}
		return nil, fmt.Errorf("create queue: %w", err)
	}
	e.logger.Info("queue created", log.Field{Key: "queue", Value: name})
	return &Queue{engine: e, name: name}, nil
}

// OpenQueue returns a handle to an existing queue. Returns
// ErrQueueNotFound when the name was never created.
func (e *Engine) OpenQueue(ctx context.Context, name string) (*Queue, error) {
	if !queueNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid queue name %q", name)
	}
	var one int
	err := e.db.QueryRow(ctx, `SELECT 1 FROM pgjobq_queues WHERE name = $1`, name).Scan(&one)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("open queue: %w", err)
	}
	return &Queue{engine: e, name: name}, nil
}

// EnsureQueue opens the queue, creating it first if needed.
func (e *Engine) EnsureQueue(ctx context.Context, name string) (*Queue, error) {
	q, err := e.CreateQueue(ctx, name)
	if err == ErrQueueAlreadyExists {
		return e.OpenQueue(ctx, name)
	}
	return q, err
}

// ListQueues returns all queues ordered by name.
func (e *Engine) ListQueues(ctx context.Context) ([]QueueInfo, error) {
	rows, err := e.db.Query(ctx, `SELECT name, created_at FROM pgjobq_queues ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var out []QueueInfo
	for rows.Next() {
		var qi QueueInfo
		if err := rows.Scan(&qi.Name, &qi.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		out = append(out, qi)
	}
	return out, rows.Err()
}

// notifyArrival signals inside tx that queue has newly eligible messages.
// pg_notify fires on commit only, so remote listeners never observe an
// arrival that was rolled back. notifyArrivalLocal is the in-process
// shortcut called after a successful commit.
func notifyArrival(ctx context.Context, tx pgx.Tx, queue string) error {
	_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notify.ChannelArrival, queue)
	return err
}

func (e *Engine) notifyArrivalLocal(queue string) {
	e.hub.Notify(notify.ArrivalKey(queue))
}

// notifyCompletion signals inside tx that msgID on queue was acknowledged.
// Commit-coupled like notifyArrival, so a completion signal implies the
// ack is durable.
func notifyCompletion(ctx context.Context, tx pgx.Tx, queue, msgID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2 || ' ' || $3)`, notify.ChannelCompletion, queue, msgID)
	return err
}

func (e *Engine) notifyCompletionLocal(queue string) {
	e.hub.Notify(notify.CompletionKey(queue))
}
