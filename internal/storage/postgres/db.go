package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	logpkg "github.com/webclinic017/pgjobq/pkg/log"
)

// Options configures the Postgres store wrapper.
type Options struct {
	// URL is a postgres:// connection string.
	URL string
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	// Logger receives store-level logs. Optional.
	Logger logpkg.Logger
	// TraceSQL routes per-statement pgx logs through Logger at debug level.
	TraceSQL bool
}

// DB wraps a pgx connection pool with helpers used by the queue engine.
// It is an explicit dependency: callers pass it into every component that
// touches storage, nothing holds it as process-wide state.
type DB struct {
	pool   *pgxpool.Pool
	config *pgxpool.Config
	logger logpkg.Logger
}

// Open parses opts.URL, builds the pool, and verifies connectivity.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("database url required")
	}
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	if opts.TraceSQL {
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   &pgxLogger{logger: logger.WithComponent("pgx")},
			LogLevel: tracelog.LogLevelDebug,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{pool: pool, config: cfg, logger: logger}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping verifies connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Pool exposes the underlying pool for advanced operations.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// ConnConfig returns a copy of the single-connection config. The notify
// listener uses it to hold a dedicated connection outside the pool.
func (db *DB) ConnConfig() *pgx.ConnConfig {
	return db.config.ConnConfig.Copy()
}

// Exec runs a statement on the pool.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

// Query runs a query on the pool.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// QueryRow runs a single-row query on the pool.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Begin opens a transaction on the pool.
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	return db.pool.Begin(ctx)
}

// SQLSTATE codes the engine maps to sentinel errors.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
)

// IsSQLState reports whether err carries the given Postgres error code.
func IsSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
