package queue

import (
	"errors"
)

var (
	// ErrQueueNotFound is returned for operations against a queue name that
	// was never created.
	ErrQueueNotFound = errors.New("queue not found")

	// ErrQueueAlreadyExists is returned when creating a queue whose name is
	// taken.
	ErrQueueAlreadyExists = errors.New("queue already exists")

	// ErrLockExpired is returned when an ack, release or extend finds the
	// message no longer validly held: the visibility deadline passed, the
	// reaper reclaimed it, another token owns it, or it was already
	// completed. The handle is dead; the work must not be retried with it.
	ErrLockExpired = errors.New("lock expired")

	// ErrMessageNotFound is returned when inspecting a message id that does
	// not exist on the queue.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyPayload is returned when enqueueing a message with no payload
	// bytes. An empty message is almost always a caller bug.
	ErrEmptyPayload = errors.New("empty payload")
)
