package queue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/webclinic017/pgjobq/internal/notify"
)

// Completion is a producer-side awaitable that resolves once a message is
// acknowledged. Resolution tracks durable state only: the completion
// notification is sent inside the ack's transaction, and every wake
// re-reads the row, so Wait returns nil if and only if the ack committed.
type Completion struct {
	engine *Engine
	queue  string
	msgID  string
}

// Completion returns an awaitable for the given message id. Enqueue
// results carry one already; this constructor serves callers tracking a
// message sent elsewhere.
func (q *Queue) Completion(msgID string) *Completion {
	return &Completion{engine: q.engine, queue: q.name, msgID: msgID}
}

// ID returns the message id being awaited.
func (c *Completion) ID() string { return c.msgID }

// Done reports whether the message has been acknowledged. A row that no
// longer exists counts as done: only completed rows are ever purged.
func (c *Completion) Done(ctx context.Context) (bool, error) {
	var status Status
	err := c.engine.db.QueryRow(ctx,
		`SELECT status FROM pgjobq_messages WHERE id = $1 AND queue = $2`,
		c.msgID, c.queue).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("completion check: %w", err)
	}
	return status == StatusCompleted, nil
}

// Wait blocks until the message is acknowledged or ctx is cancelled.
// Completion notifications wake it early; otherwise it re-checks the
// store every engine poll interval.
func (c *Completion) Wait(ctx context.Context) error {
	key := notify.CompletionKey(c.queue)
	for {
		done, err := c.Done(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		c.engine.hub.Wait(ctx, key, c.engine.receivePoll)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
