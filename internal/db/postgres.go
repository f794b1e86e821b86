package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luas-archive/collector/internal/batch"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS luas_snapshots (
	snapshot_id    UUID PRIMARY KEY,
	captured_at    TIMESTAMPTZ NOT NULL,
	expected_count INTEGER NOT NULL,
	received_count INTEGER NOT NULL,
	partial        BOOLEAN NOT NULL DEFAULT FALSE,
	document       JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_luas_snapshots_captured ON luas_snapshots (captured_at);
`

// Postgres stores each sealed batch as a JSONB document
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a connection pool and checks connectivity
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Connected to PostgreSQL archive database")
	return &Postgres{pool: pool}, nil
}

// Close closes the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// EnsureSchema creates the snapshot table if it doesn't exist
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StoreBatch inserts a sealed batch document
func (p *Postgres) StoreBatch(ctx context.Context, b *batch.BatchSnapshot) error {
	if !b.Sealed() {
		return fmt.Errorf("batch %s is not sealed", b.ID)
	}

	document, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO luas_snapshots (snapshot_id, captured_at, expected_count, received_count, partial, document)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (snapshot_id) DO NOTHING
	`, b.ID, b.CapturedAt, b.ExpectedCount, b.ReceivedCount, b.Partial, document)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", b.ID, err)
	}
	return nil
}

// CountSnapshots returns the number of stored batches
func (p *Postgres) CountSnapshots(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM luas_snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// Ping checks the database is reachable
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
