// Package postgres is the storage adapter: a pgx connection pool wired for
// pgvector, plus a project-scoped transaction helper that every other
// internal package routes through so row access stays tenant-isolated.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Pool wraps a pgxpool.Pool registered for pgvector types, scoped to a
// fixed embedding dimensionality for the lifetime of the process.
type Pool struct {
	pool          *pgxpool.Pool
	embedDims     int
	stmtTimeoutMS int
}

// Config controls pool construction.
type Config struct {
	DSN                string
	EmbeddingDims      int
	StatementTimeoutMS int   // 0 disables the per-transaction context deadline
	MaxConns           int32 // 0 uses pgxpool's default
}

// Open parses dsn, registers pgvector's codec on every new connection, pings
// once to fail fast on bad credentials, and runs the schema migration.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pgxCfg.MaxConns = cfg.MaxConns
	}
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	p := &Pool{pool: pool, embedDims: cfg.EmbeddingDims, stmtTimeoutMS: cfg.StatementTimeoutMS}
	if err := Migrate(ctx, pool, cfg.EmbeddingDims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return p, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.pool.Close()
}

// EmbeddingDims returns the dimensionality every stored vector must match.
func (p *Pool) EmbeddingDims() int {
	return p.embedDims
}

// Raw exposes the underlying pgxpool.Pool for components that need direct
// pgvector query building beyond what WithConnection/WithReadOnlyConnection
// offer (e.g. ANN index scans in internal/insight, internal/episode).
func (p *Pool) Raw() *pgxpool.Pool {
	return p.pool
}

// WithConnection acquires a transaction scoped to project, sets the
// app.current_project session variable so row-level policies can filter on
// it, runs fn, and commits on success or rolls back on any error returned
// by fn (mirroring spec §4.A/§4.M: acquire, scope, commit-or-rollback,
// release).
func (p *Pool) WithConnection(ctx context.Context, project string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return p.withTx(ctx, project, pgx.ReadWrite, fn)
}

// WithReadOnlyConnection is WithConnection with the transaction opened in
// read-only mode, for retrieval-path callers that never mutate state.
func (p *Pool) WithReadOnlyConnection(ctx context.Context, project string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return p.withTx(ctx, project, pgx.ReadOnly, fn)
}

func (p *Pool) withTx(ctx context.Context, project string, mode pgx.TxAccessMode, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if project == "" {
		return fmt.Errorf("storage: project id is required to scope a connection")
	}
	if p.stmtTimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = withStatementTimeout(ctx, p.stmtTimeoutMS)
		defer cancel()
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: mode})
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	// set_config's third argument (is_local=true) scopes the setting to this
	// transaction, same effect as SET LOCAL but usable with a bind parameter.
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_project', $1, true)`, project); err != nil {
		return fmt.Errorf("storage: scope session to project: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func withStatementTimeout(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}
