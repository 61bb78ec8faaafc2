// Package runtime wires the Postgres store, notification plumbing, queue
// engine, and background workers into a single process instance. It
// exposes Open/Close, migration and health checks, and queue handles for
// callers like the CLI.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Database.URL = "postgres://localhost/jobs"
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
//	rt.StartWorkers()
//	q, _ := rt.EnsureQueue(ctx, "orders")
//	_, _ = q.Enqueue(ctx, []byte(`{"order":42}`), 0)
package runtime
