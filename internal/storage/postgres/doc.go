// Package postgres provides the pgx-backed store handle and schema
// lifecycle for pgjobq.
//
// The DB type wraps a pgxpool.Pool with Exec/Query/Begin helpers and is
// passed explicitly into every component that touches storage. Schema is
// owned here too: versioned SQL files embedded at build time, applied by
// MigrateToLatest inside a single transaction under an advisory lock.
//
// Usage:
//
//	db, err := postgres.Open(ctx, postgres.Options{
//	    URL:      "postgres://localhost:5432/jobs",
//	    MaxConns: 8,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	if err := db.MigrateToLatest(ctx); err != nil { /* handle */ }
//
// # Tables
//
//	pgjobq_queues      - queue registry (name, created_at)
//	pgjobq_messages    - one row per message; status drives the lifecycle
//	pgjobq_migrations  - applied schema versions
//
// The messages table enforces the lock-field invariant with CHECK
// constraints: lock_token and visibility_deadline are non-null exactly
// while a row is in_flight.
package postgres
