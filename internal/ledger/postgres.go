package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres writes transfer records to the transfers table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. Call EnsureSchema before using it.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// NewDB opens a pgx pool sized for a single receiver.
func NewDB(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the transfers table if it is missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transfers (
  id UUID PRIMARY KEY,
  remote_addr TEXT NOT NULL,
  path TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  bytes BIGINT NOT NULL,
  wire_bytes BIGINT NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  finished_at TIMESTAMPTZ NOT NULL,
  outcome TEXT NOT NULL
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create transfers table: %w", err)
	}
	return nil
}

// Record inserts rec. A repeated ID is ignored.
func (p *Postgres) Record(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO transfers (id, remote_addr, path, sequence, bytes, wire_bytes, started_at, finished_at, outcome)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING;
`
	_, err := p.pool.Exec(ctx, query,
		rec.ID.String(),
		rec.RemoteAddr,
		rec.Path,
		rec.Sequence,
		rec.Bytes,
		rec.WireBytes,
		rec.StartedAt.UTC(),
		rec.FinishedAt.UTC(),
		rec.Outcome,
	)
	if err != nil {
		return fmt.Errorf("insert transfer %s: %w", rec.ID, err)
	}
	return nil
}

// Close releases the pool
func (p *Postgres) Close() {
	p.pool.Close()
}
