// Package postgres provides the Postgres-backed completion store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batchops/batchwatch/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool used for completion rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// CompletionStore writes completion rows into Postgres.
type CompletionStore struct {
	pool  execCloser
	table string
}

// New creates a Postgres-backed CompletionStore using the provided config.
func New(ctx context.Context, cfg Config) (*CompletionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "batch_completions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CompletionStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for tests).
func NewWithPool(pool execCloser, table string) (*CompletionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "batch_completions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CompletionStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *CompletionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordCompletion inserts one completion row.
func (s *CompletionStore) RecordCompletion(ctx context.Context, rec store.CompletionRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("completion store is not configured")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	success,
	status,
	result_ref,
	error_ref,
	requests_total,
	requests_completed,
	requests_failed,
	submitted_at,
	completed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)

	args := []any{
		rec.ID,
		rec.Success,
		rec.Status,
		rec.ResultRef,
		rec.ErrorRef,
		rec.Total,
		rec.Completed,
		rec.Failed,
		rec.SubmittedAt,
		rec.CompletedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert completion row: %w", err)
	}
	return nil
}
