package runtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	cfgpkg "github.com/webclinic017/pgjobq/internal/config"
	logpkg "github.com/webclinic017/pgjobq/pkg/log"
)

func openTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	url := os.Getenv("PGJOBQ_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PGJOBQ_TEST_DATABASE_URL not set")
	}
	cfg := cfgpkg.Default()
	cfg.Database.URL = url
	cfg.Queue.ReceivePollMs = 100
	cfg.Reaper.IntervalMs = 100
	cfg.Scheduler.IntervalMs = 100

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt, err := Open(ctx, Options{
		Config: cfg,
		Logger: logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel)),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	if err := rt.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return rt
}

func TestOpenMigrateHealth(t *testing.T) {
	rt := openTestRuntime(t)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestEnsureAndRoundTrip(t *testing.T) {
	rt := openTestRuntime(t)
	ctx := context.Background()

	name := "rt-" + uuid.NewString()
	q, err := rt.EnsureQueue(ctx, name)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// second ensure is a no-op
	if _, err := rt.EnsureQueue(ctx, name); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}

	enq, err := q.Enqueue(ctx, []byte("ping"), 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ds, err := q.Receive(rctx, 1, time.Minute)
	if err != nil || len(ds) != 1 {
		t.Fatalf("receive: %v (%d)", err, len(ds))
	}
	if ds[0].ID != enq.ID {
		t.Fatalf("wrong message: %s", ds[0].ID)
	}
	if err := ds[0].Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	wctx, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	if err := enq.Completion.Wait(wctx); err != nil {
		t.Fatalf("completion: %v", err)
	}
}

func TestWorkersStartStop(t *testing.T) {
	rt := openTestRuntime(t)
	rt.StartWorkers()
	rt.StartWorkers() // idempotent
	rt.StopWorkers()
	rt.StopWorkers() // idempotent

	// workers redeliver expired claims end to end
	ctx := context.Background()
	q, err := rt.EnsureQueue(ctx, "rt-"+uuid.NewString())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := q.Enqueue(ctx, []byte("job"), 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ds, err := q.Claim(ctx, 1, 100*time.Millisecond)
	if err != nil || len(ds) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(ds))
	}

	rt.StartWorkers()
	defer rt.StopWorkers()
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	again, err := q.Receive(rctx, 1, time.Minute)
	if err != nil || len(again) != 1 {
		t.Fatalf("redelivery: %v (%d)", err, len(again))
	}
	if again[0].ID != ds[0].ID {
		t.Fatalf("unexpected message %s", again[0].ID)
	}
	if err := again[0].Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
}
