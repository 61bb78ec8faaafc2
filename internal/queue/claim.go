package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Claim atomically takes ownership of up to max eligible messages. Each
// returned delivery is in_flight with a fresh lock token and a visibility
// deadline of now plus visibility (engine default when <= 0), and its
// attempt count already includes this delivery. Rows locked by a
// concurrent claim are skipped, never waited on, so two claimers can
// never receive the same message while a lock is valid. An empty result
// means nothing was eligible; callers wanting to block use Receive.
//
// Scheduled messages whose deliver_at has passed are claimed directly,
// without waiting for a promotion sweep.
func (q *Queue) Claim(ctx context.Context, max int, visibility time.Duration) ([]*Delivery, error) {
	if max <= 0 {
		max = 1
	}
	if max > q.engine.maxClaimBatch {
		max = q.engine.maxClaimBatch
	}
	if visibility <= 0 {
		visibility = q.engine.visibilityTimeout
	}

	tx, err := q.engine.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM pgjobq_messages
		WHERE queue = $1 AND status IN ('pending', 'scheduled') AND deliver_at <= now()
		ORDER BY deliver_at, id
		FOR UPDATE SKIP LOCKED
		LIMIT $2`,
		q.name, max)
	if err != nil {
		return nil, fmt.Errorf("claim select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var msgID string
		if err := rows.Scan(&msgID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("claim scan: %w", err)
		}
		ids = append(ids, msgID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim select: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tokens := make([]string, len(ids))
	for i := range tokens {
		tokens[i] = uuid.NewString()
	}

	// The selected rows are locked by this transaction, so the update
	// cannot race another claimer or the reaper.
	rows, err = tx.Query(ctx, `
		UPDATE pgjobq_messages m
		SET status = 'in_flight',
		    lock_token = p.token,
		    visibility_deadline = now() + ($3::bigint * interval '1 millisecond'),
		    attempt_count = m.attempt_count + 1
		FROM (SELECT unnest($1::text[]) AS id, unnest($2::uuid[]) AS token) p
		WHERE m.id = p.id
		RETURNING m.id, m.payload, m.attempt_count, m.lock_token::text, m.visibility_deadline`,
		ids, tokens, visibility.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}
	byID := make(map[string]*Delivery, len(ids))
	for rows.Next() {
		d := &Delivery{queue: q}
		if err := rows.Scan(&d.ID, &d.Payload, &d.AttemptCount, &d.LockToken, &d.VisibilityDeadline); err != nil {
			rows.Close()
			return nil, fmt.Errorf("claim scan: %w", err)
		}
		byID[d.ID] = d
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("claim commit: %w", err)
	}

	// Return deliveries in selection order.
	out := make([]*Delivery, 0, len(byID))
	for _, msgID := range ids {
		if d, ok := byID[msgID]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Ack marks a claimed message completed. The update succeeds only while
// the row is still in_flight under the given token with an unexpired
// deadline; anything else (reaped, re-claimed, already completed) fails
// with ErrLockExpired. The completion notification is sent in the same
// transaction, so it fires only once the ack is durable.
func (q *Queue) Ack(ctx context.Context, msgID, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return ErrLockExpired
	}
	tx, err := q.engine.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE pgjobq_messages
		SET status = 'completed', completed_at = now(),
		    lock_token = NULL, visibility_deadline = NULL
		WHERE id = $1 AND queue = $2 AND status = 'in_flight'
		  AND lock_token = $3::uuid AND visibility_deadline >= now()`,
		msgID, q.name, token)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLockExpired
	}
	if err := notifyCompletion(ctx, tx, q.name, msgID); err != nil {
		return fmt.Errorf("ack notify: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ack commit: %w", err)
	}
	q.engine.notifyCompletionLocal(q.name)
	return nil
}

// Release returns a claimed message to pending immediately, without
// waiting for the visibility deadline and without counting an extra
// attempt. Same ownership precondition as Ack; fails with ErrLockExpired
// when the claim is no longer valid.
func (q *Queue) Release(ctx context.Context, msgID, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return ErrLockExpired
	}
	tx, err := q.engine.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE pgjobq_messages
		SET status = 'pending', lock_token = NULL, visibility_deadline = NULL
		WHERE id = $1 AND queue = $2 AND status = 'in_flight'
		  AND lock_token = $3::uuid AND visibility_deadline >= now()`,
		msgID, q.name, token)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLockExpired
	}
	if err := notifyArrival(ctx, tx, q.name); err != nil {
		return fmt.Errorf("release notify: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("release commit: %w", err)
	}
	q.engine.notifyArrivalLocal(q.name)
	return nil
}

// Extend pushes a claimed message's visibility deadline to now plus
// visibility (engine default when <= 0) and returns the new deadline.
// Same ownership precondition as Ack.
func (q *Queue) Extend(ctx context.Context, msgID, token string, visibility time.Duration) (time.Time, error) {
	if _, err := uuid.Parse(token); err != nil {
		return time.Time{}, ErrLockExpired
	}
	if visibility <= 0 {
		visibility = q.engine.visibilityTimeout
	}
	var deadline time.Time
	err := q.engine.db.QueryRow(ctx, `
		UPDATE pgjobq_messages
		SET visibility_deadline = now() + ($4::bigint * interval '1 millisecond')
		WHERE id = $1 AND queue = $2 AND status = 'in_flight'
		  AND lock_token = $3::uuid AND visibility_deadline >= now()
		RETURNING visibility_deadline`,
		msgID, q.name, token, visibility.Milliseconds()).Scan(&deadline)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, ErrLockExpired
		}
		return time.Time{}, fmt.Errorf("extend: %w", err)
	}
	return deadline, nil
}
