package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webclinic017/pgjobq/internal/storage/postgres"
)

// Queue is a handle to one named queue. Handles are cheap and safe for
// concurrent use; all state lives in the database.
type Queue struct {
	engine *Engine
	name   string
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Enqueue inserts a message with an optional delay. A zero or negative
// delay means immediate delivery: the message lands pending and an arrival
// notification fires with the insert's commit. A positive delay lands the
// message scheduled; it stays invisible to claims until deliver_at.
func (q *Queue) Enqueue(ctx context.Context, payload []byte, delay time.Duration) (*Enqueued, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if delay < 0 {
		delay = 0
	}
	msgID := q.engine.gen.Next().String()

	tx, err := q.engine.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	defer tx.Rollback(ctx)

	var deliverAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO pgjobq_messages (id, queue, payload, deliver_at, status)
		VALUES ($1, $2, $3, now() + ($4::bigint * interval '1 millisecond'),
		        CASE WHEN $4::bigint <= 0 THEN 'pending' ELSE 'scheduled' END)
		RETURNING deliver_at`,
		msgID, q.name, payload, delay.Milliseconds()).Scan(&deliverAt)
	if err != nil {
		if postgres.IsSQLState(err, postgres.CodeForeignKeyViolation) {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	if delay == 0 {
		if err := notifyArrival(ctx, tx, q.name); err != nil {
			return nil, fmt.Errorf("enqueue notify: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("enqueue commit: %w", err)
	}
	if delay == 0 {
		q.engine.notifyArrivalLocal(q.name)
	}
	return &Enqueued{ID: msgID, DeliverAt: deliverAt, Completion: q.Completion(msgID)}, nil
}

// EnqueueBatch inserts all payloads in one transaction with a shared
// delay: either every message lands or none does. Results are in payload
// order, each with its own id and completion awaitable.
func (q *Queue) EnqueueBatch(ctx context.Context, payloads [][]byte, delay time.Duration) ([]*Enqueued, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	for _, p := range payloads {
		if len(p) == 0 {
			return nil, ErrEmptyPayload
		}
	}
	if delay < 0 {
		delay = 0
	}
	ids := make([]string, len(payloads))
	for i := range payloads {
		ids[i] = q.engine.gen.Next().String()
	}

	tx, err := q.engine.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("enqueue batch: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		INSERT INTO pgjobq_messages (id, queue, payload, deliver_at, status)
		SELECT p.id, $1, p.payload, now() + ($4::bigint * interval '1 millisecond'),
		       CASE WHEN $4::bigint <= 0 THEN 'pending' ELSE 'scheduled' END
		FROM (SELECT unnest($2::text[]) AS id, unnest($3::bytea[]) AS payload) p
		RETURNING id, deliver_at`,
		q.name, ids, payloads, delay.Milliseconds())
	if err != nil {
		if postgres.IsSQLState(err, postgres.CodeForeignKeyViolation) {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("enqueue batch: %w", err)
	}
	deliverAt := make(map[string]time.Time, len(payloads))
	for rows.Next() {
		var msgID string
		var at time.Time
		if err := rows.Scan(&msgID, &at); err != nil {
			rows.Close()
			return nil, fmt.Errorf("enqueue batch scan: %w", err)
		}
		deliverAt[msgID] = at
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		if postgres.IsSQLState(err, postgres.CodeForeignKeyViolation) {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("enqueue batch: %w", err)
	}

	if delay == 0 {
		if err := notifyArrival(ctx, tx, q.name); err != nil {
			return nil, fmt.Errorf("enqueue batch notify: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("enqueue batch commit: %w", err)
	}
	if delay == 0 {
		q.engine.notifyArrivalLocal(q.name)
	}

	out := make([]*Enqueued, len(ids))
	for i, msgID := range ids {
		out[i] = &Enqueued{ID: msgID, DeliverAt: deliverAt[msgID], Completion: q.Completion(msgID)}
	}
	return out, nil
}

// Get loads one message row for inspection. Returns ErrMessageNotFound
// when no such message exists on this queue.
func (q *Queue) Get(ctx context.Context, msgID string) (*Message, error) {
	var m Message
	var token *string
	err := q.engine.db.QueryRow(ctx, `
		SELECT id, queue, payload, enqueued_at, deliver_at, status,
		       attempt_count, lock_token::text, visibility_deadline, completed_at
		FROM pgjobq_messages
		WHERE id = $1 AND queue = $2`,
		msgID, q.name).Scan(
		&m.ID, &m.Queue, &m.Payload, &m.EnqueuedAt, &m.DeliverAt, &m.Status,
		&m.AttemptCount, &token, &m.VisibilityDeadline, &m.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if token != nil {
		m.LockToken = *token
	}
	return &m, nil
}

// Stats counts this queue's messages by status and measures the backlog
// head: the age of the oldest pending message, by the database clock.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Queue: q.name}
	rows, err := q.engine.db.Query(ctx, `
		SELECT status, count(*) FROM pgjobq_messages WHERE queue = $1 GROUP BY status`, q.name)
	if err != nil {
		return s, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return s, fmt.Errorf("scan stats: %w", err)
		}
		switch status {
		case StatusScheduled:
			s.Scheduled = n
		case StatusPending:
			s.Pending = n
		case StatusInFlight:
			s.InFlight = n
		case StatusCompleted:
			s.Completed = n
		}
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("queue stats: %w", err)
	}
	if s.Pending > 0 {
		var ageMs float64
		err := q.engine.db.QueryRow(ctx, `
			SELECT coalesce(extract(epoch FROM now() - min(deliver_at)) * 1000, 0)
			FROM pgjobq_messages
			WHERE queue = $1 AND status = 'pending'`, q.name).Scan(&ageMs)
		if err != nil {
			return s, fmt.Errorf("queue stats age: %w", err)
		}
		if ageMs > 0 {
			s.OldestPendingAge = time.Duration(ageMs * float64(time.Millisecond))
		}
	}
	return s, nil
}

// PurgeCompleted deletes up to limit completed messages on this queue
// whose completion is older than olderThan. Zero olderThan deletes any
// completed message. Returns the number of rows removed.
func (q *Queue) PurgeCompleted(ctx context.Context, olderThan time.Duration, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	tag, err := q.engine.db.Exec(ctx, `
		DELETE FROM pgjobq_messages
		WHERE id IN (
			SELECT id FROM pgjobq_messages
			WHERE queue = $1 AND status = 'completed'
			  AND completed_at <= now() - ($2::bigint * interval '1 millisecond')
			LIMIT $3
		)`,
		q.name, olderThan.Milliseconds(), limit)
	if err != nil {
		return 0, fmt.Errorf("purge completed: %w", err)
	}
	return tag.RowsAffected(), nil
}
