// Package db persists negotiation outcomes in PostgreSQL
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PoolInterface defines the pool operations the store needs. pgxmock
// satisfies it, which keeps the query layer testable without a live database.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Ping(ctx context.Context) error
}

// DB wraps the PostgreSQL connection pool
type DB struct {
	pool PoolInterface
	raw  *pgxpool.Pool
	log  zerolog.Logger
}

// New creates a new database connection pool from a connection URL
func New(ctx context.Context, databaseURL string, maxConns int32) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is not set")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	config.MaxConns = maxConns
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger := log.With().Str("component", "db").Logger()
	logger.Info().Msg("Database connection pool created")

	return &DB{pool: pool, raw: pool, log: logger}, nil
}

// NewWithPool wraps an existing pool. Tests use this with pgxmock.
func NewWithPool(pool PoolInterface) *DB {
	return &DB{
		pool: pool,
		log:  log.With().Str("component", "db").Logger(),
	}
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.raw != nil {
		db.raw.Close()
		db.log.Info().Msg("Database connection pool closed")
	}
}

// Pool exposes the underlying pgx pool for pool-level statistics. Nil when
// the DB is not configured or wraps a mock pool.
func (db *DB) Pool() *pgxpool.Pool {
	if db == nil {
		return nil
	}
	return db.raw
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
