package queue

import (
	"context"
	"time"
)

// Status is the lifecycle state of a message row.
type Status string

const (
	// StatusScheduled marks a message whose deliver_at is in the future.
	StatusScheduled Status = "scheduled"
	// StatusPending marks a message eligible for claim.
	StatusPending Status = "pending"
	// StatusInFlight marks a message claimed and hidden until its
	// visibility deadline.
	StatusInFlight Status = "in_flight"
	// StatusCompleted marks an acknowledged message. Terminal.
	StatusCompleted Status = "completed"
)

// Message is a full row view, used for inspection rather than consumption.
type Message struct {
	ID                 string
	Queue              string
	Payload            []byte
	EnqueuedAt         time.Time
	DeliverAt          time.Time
	Status             Status
	AttemptCount       int
	LockToken          string
	VisibilityDeadline *time.Time
	CompletedAt        *time.Time
}

// Enqueued is the producer-side result of an enqueue: the assigned id, the
// effective delivery time, and an awaitable that resolves once the message
// is acknowledged.
type Enqueued struct {
	ID         string
	DeliverAt  time.Time
	Completion *Completion
}

// Delivery is a claimed message. The lock token proves ownership until the
// visibility deadline; exactly one of Ack or Release ends the claim. A
// delivery that is neither acked nor released becomes claimable again once
// the deadline passes.
type Delivery struct {
	ID                 string
	Payload            []byte
	AttemptCount       int
	LockToken          string
	VisibilityDeadline time.Time

	queue *Queue
}

// Queue returns the name of the queue the delivery came from.
func (d *Delivery) Queue() string { return d.queue.name }

// Ack marks the message completed. Fails with ErrLockExpired when the
// claim is no longer valid; the work is then considered wasted.
func (d *Delivery) Ack(ctx context.Context) error {
	return d.queue.Ack(ctx, d.ID, d.LockToken)
}

// Release returns the message to the eligible pool immediately without
// counting an extra attempt. Fails with ErrLockExpired when the claim is
// no longer valid.
func (d *Delivery) Release(ctx context.Context) error {
	return d.queue.Release(ctx, d.ID, d.LockToken)
}

// Extend pushes the visibility deadline to now plus the given duration,
// keeping the claim alive through long processing. Fails with
// ErrLockExpired when the claim is no longer valid.
func (d *Delivery) Extend(ctx context.Context, visibility time.Duration) error {
	deadline, err := d.queue.Extend(ctx, d.ID, d.LockToken, visibility)
	if err != nil {
		return err
	}
	d.VisibilityDeadline = deadline
	return nil
}

// QueueInfo describes a queue row.
type QueueInfo struct {
	Name      string
	CreatedAt time.Time
}

// Stats holds per-status message counts for one queue. OldestPendingAge is
// how long the oldest still-unclaimed eligible message has been waiting,
// zero when nothing is pending.
type Stats struct {
	Queue            string
	Scheduled        int64
	Pending          int64
	InFlight         int64
	Completed        int64
	OldestPendingAge time.Duration
}

// Total is the number of messages across all states.
func (s Stats) Total() int64 {
	return s.Scheduled + s.Pending + s.InFlight + s.Completed
}
