package queue

import (
	"context"
	"testing"
	"time"
)

func TestReceiveReturnsEligibleImmediately(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	q.Enqueue(ctx, []byte("ready"), 0)
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ds, err := q.Receive(rctx, 1, time.Minute)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(ds) != 1 || string(ds[0].Payload) != "ready" {
		t.Fatalf("deliveries = %v", ds)
	}
}

func TestReceiveBlocksUntilEnqueue(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	type result struct {
		ds  []*Delivery
		err error
	}
	got := make(chan result, 1)
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	go func() {
		ds, err := q.Receive(rctx, 1, time.Minute)
		got <- result{ds, err}
	}()

	// let the receiver block on an empty queue first
	time.Sleep(200 * time.Millisecond)
	select {
	case r := <-got:
		t.Fatalf("receive returned early: %v %v", r.ds, r.err)
	default:
	}

	start := time.Now()
	if _, err := q.Enqueue(ctx, []byte("wake"), 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	r := <-got
	if r.err != nil {
		t.Fatalf("receive: %v", r.err)
	}
	if len(r.ds) != 1 || string(r.ds[0].Payload) != "wake" {
		t.Fatalf("deliveries = %v", r.ds)
	}
	// arrival notification should beat the poll interval comfortably
	if waited := time.Since(start); waited > 3*time.Second {
		t.Fatalf("receive took %v after enqueue", waited)
	}
}

func TestReceiveCancellable(t *testing.T) {
	e := openTestEngine(t)
	q := createTestQueue(t, e)

	rctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Receive(rctx, 1, time.Minute)
		done <- err
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("cancelled receive returned nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receive did not return after cancel")
	}
}

func TestReceiveSingleMessageTwoWaiters(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	if _, err := q.Enqueue(ctx, []byte(`{"foo":"bar"}`), 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	got := make(chan *Delivery, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			ds, err := q.Receive(rctx, 1, time.Minute)
			if err != nil {
				errs <- err
				return
			}
			for _, d := range ds {
				got <- d
			}
		}()
	}

	// one receiver gets the message, the other stays blocked until its
	// context expires
	var deliveries []*Delivery
	deadline := time.After(3 * time.Second)
	for len(deliveries) < 1 {
		select {
		case d := <-got:
			deliveries = append(deliveries, d)
		case <-deadline:
			t.Fatalf("no delivery within deadline")
		}
	}
	select {
	case d := <-got:
		t.Fatalf("message delivered twice: %s and %s", deliveries[0].ID, d.ID)
	case err := <-errs:
		if err == nil {
			t.Fatalf("blocked receiver should report its context error")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("second receiver neither errored nor timed out")
	}
}

func TestCompletionWaitResolvesOnAck(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	enq, err := q.Enqueue(ctx, []byte("job"), 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	waited := make(chan error, 1)
	go func() {
		waited <- enq.Completion.Wait(wctx)
	}()

	ds, err := q.Claim(ctx, 1, time.Minute)
	if err != nil || len(ds) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(ds))
	}
	if err := ds[0].Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("completion wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("completion wait did not resolve after ack")
	}
}

func TestCompletionWaitBlocksWithoutAck(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	enq, _ := q.Enqueue(ctx, []byte("job"), 0)

	// claimed but never acked: the awaitable must not resolve
	if _, err := q.Claim(ctx, 1, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	wctx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := enq.Completion.Wait(wctx); err == nil {
		t.Fatalf("wait resolved without an ack")
	}

	done, err := enq.Completion.Done(ctx)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if done {
		t.Fatalf("done without an ack")
	}
}

func TestCompletionDoneAfterRelease(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	enq, _ := q.Enqueue(ctx, []byte("job"), 0)
	ds, err := q.Claim(ctx, 1, time.Minute)
	if err != nil || len(ds) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(ds))
	}
	if err := ds[0].Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	done, err := enq.Completion.Done(ctx)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if done {
		t.Fatalf("release must not resolve the completion awaitable")
	}
}

func TestConsumerStreamsAndStops(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	q := createTestQueue(t, e)

	c := NewConsumer(q, ConsumerConfig{BatchSize: 2}, nil)
	c.Start()
	defer c.Stop()

	enqs, err := q.EnqueueBatch(ctx, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, 0)
	if err != nil {
		t.Fatalf("enqueue batch: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < len(enqs); i++ {
		select {
		case d := <-c.Messages():
			if seen[d.ID] {
				t.Fatalf("duplicate delivery %s", d.ID)
			}
			seen[d.ID] = true
			if err := d.Ack(ctx); err != nil {
				t.Fatalf("ack: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("consumer delivered %d of %d", i, len(enqs))
		}
	}

	c.Stop()
	if _, open := <-c.Messages(); open {
		// a buffered delivery may still drain; the channel must close after
		for range c.Messages() {
		}
	}
}
