// Package queue implements a one-of-N message queue whose durable state
// lives entirely in Postgres.
//
// Every message is delivered to at most one consumer at a time. This is
// achieved through:
//
// - Row-level claims: SELECT ... FOR UPDATE SKIP LOCKED hands each
// eligible row to exactly one transaction
// - Lock tokens: a random UUID per claim proves ownership on ack
// - Visibility deadlines: unacknowledged claims expire and are redelivered
// - Conditional updates: ack, release and reap all require the row to
// still be validly held, so racing writers settle per row
// - Delayed delivery: messages can be held until a future deliver_at
//
// # Message Lifecycle
//
//  1. Enqueue: row inserted as pending, or scheduled when delayed
//  2. Promote: scheduled rows become pending once deliver_at arrives
//     (claims also take due scheduled rows directly)
//  3. Claim: row moves to in_flight with a lock token, a visibility
//     deadline, and attempt_count+1
//  4. Processing:
//     - Extend: deadline pushed out while work continues
//     - Ack: row completed, completion waiters notified
//     - Release: row returned to pending without an extra attempt
//  5. Expiry: deadline passes unacknowledged, reaper resets the row to
//     pending for redelivery; a late ack fails with ErrLockExpired
//
// Completed is terminal. The janitor may eventually delete completed
// rows; completion waiters treat a missing row as acknowledged.
//
// # At-Most-One-Owner Semantics
//
// No two claimers ever hold the same message concurrently, but a message
// that expires unacknowledged is redelivered, so consumers see
// at-least-once delivery over time and should be idempotent. The
// attempt_count on each delivery tells them how many claims came before.
//
// # Waiting
//
// Blocked receives and completion waits follow one contract: try the
// store, wait for a notification with a bounded timeout, try again.
// Notifications (Postgres NOTIFY fanned out through the in-process hub)
// only cut latency; polling alone is always sufficient for correctness.
//
// # State Summary
//
//	| Status    | lock_token | visibility_deadline | claimable        |
//	|-----------|------------|---------------------|------------------|
//	| scheduled | NULL       | NULL                | once deliver_at  |
//	| pending   | NULL       | NULL                | yes              |
//	| in_flight | set        | set                 | after deadline   |
//	| completed | NULL       | NULL                | never            |
package queue
