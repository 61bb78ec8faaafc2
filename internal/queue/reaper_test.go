package queue

import (
	"context"
	"testing"
	"time"
)

func TestReaperLoopRedelivers(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	enq, _ := q.Enqueue(ctx, []byte("stalled"), 0)
	ds, err := q.Claim(ctx, 1, 100*time.Millisecond)
	if err != nil || len(ds) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(ds))
	}

	r := NewReaper(e, ReaperConfig{Interval: 50 * time.Millisecond}, nil)
	r.Start()
	defer r.Stop()

	// the blocked receive below stands in for the second consumer: it
	// wakes when the reaper returns the expired message to the pool
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	redelivered, err := q.Receive(rctx, 1, time.Minute)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(redelivered) != 1 || redelivered[0].ID != enq.ID {
		t.Fatalf("redelivery mismatch: %v", redelivered)
	}
	if redelivered[0].AttemptCount != 2 {
		t.Fatalf("attempt on redelivery = %d, want 2", redelivered[0].AttemptCount)
	}

	// the original handle lost the race for good
	if err := ds[0].Ack(ctx); err != ErrLockExpired {
		t.Fatalf("stale ack: expected ErrLockExpired, got %v", err)
	}
}

func TestPromoteDueMovesScheduled(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	enq, _ := q.Enqueue(ctx, []byte("later"), 100*time.Millisecond)

	// nothing due yet
	if _, err := e.PromoteDue(ctx, 100); err != nil {
		t.Fatalf("promote: %v", err)
	}
	m, _ := q.Get(ctx, enq.ID)
	if m.Status != StatusScheduled {
		t.Fatalf("promoted early: %s", m.Status)
	}

	time.Sleep(300 * time.Millisecond)
	n, err := e.PromoteDue(ctx, 100)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if n < 1 {
		t.Fatalf("promoted %d, want >= 1", n)
	}
	m, _ = q.Get(ctx, enq.ID)
	if m.Status != StatusPending {
		t.Fatalf("status after promote = %s", m.Status)
	}
}

func TestSchedulerLoopDelivers(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	s := NewScheduler(e, SchedulerConfig{Interval: 50 * time.Millisecond}, nil)
	s.Start()
	defer s.Stop()

	start := time.Now()
	enq, err := q.Enqueue(ctx, []byte("timed"), 300*time.Millisecond)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ds, err := q.Receive(rctx, 1, time.Minute)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(ds) != 1 || ds[0].ID != enq.ID {
		t.Fatalf("deliveries = %v", ds)
	}
	if waited := time.Since(start); waited < 250*time.Millisecond {
		t.Fatalf("scheduled message arrived after %v, before its delay", waited)
	}
}

func TestPurgeCompletedRemovesRow(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	enq, _ := q.Enqueue(ctx, []byte("done"), 0)
	ds, err := q.Claim(ctx, 1, time.Minute)
	if err != nil || len(ds) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(ds))
	}
	if err := ds[0].Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	if _, err := q.PurgeCompleted(ctx, 0, 100); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := q.Get(ctx, enq.ID); err != ErrMessageNotFound {
		t.Fatalf("expected row gone, got %v", err)
	}

	// a purged row still reads as completed for waiters
	done, err := enq.Completion.Done(ctx)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if !done {
		t.Fatalf("purged completion should count as done")
	}
}

func TestPurgeLeavesUnfinishedAlone(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	pending, _ := q.Enqueue(ctx, []byte("pending"), 0)
	inflight, _ := q.Enqueue(ctx, []byte("working"), 0)
	if _, err := q.Claim(ctx, 1, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := q.PurgeCompleted(ctx, 0, 100); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := q.Get(ctx, pending.ID); err != nil {
		t.Fatalf("pending row purged: %v", err)
	}
	if _, err := q.Get(ctx, inflight.ID); err != nil {
		t.Fatalf("in_flight row purged: %v", err)
	}
}

func TestJanitorLoopPurges(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	enq, _ := q.Enqueue(ctx, []byte("old"), 0)
	ds, err := q.Claim(ctx, 1, time.Minute)
	if err != nil || len(ds) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(ds))
	}
	if err := ds[0].Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	j := NewJanitor(e, JanitorConfig{Retain: time.Millisecond, Interval: 50 * time.Millisecond}, nil)
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := q.Get(ctx, enq.ID); err == ErrMessageNotFound {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not purge the completed row")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
