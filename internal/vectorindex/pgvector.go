package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var _ Backend = (*PGVectorBackend)(nil)

// PGVectorBackend stores collections as PostgreSQL tables with a pgvector
// column and lets the server rank by cosine distance.
type PGVectorBackend struct {
	pool *pgxpool.Pool
}

// NewPGVectorBackend connects to dsn and verifies the connection.
func NewPGVectorBackend(ctx context.Context, dsn string) (*PGVectorBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PGVectorBackend{pool: pool}, nil
}

func (p *PGVectorBackend) EnsureCollection(ctx context.Context, name string, dim int) error {
	if err := ValidateCollection(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}

	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("enabling pgvector: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key BIGINT PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, tableFor(name), dim)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

func (p *PGVectorBackend) Upsert(ctx context.Context, collection string, key int64, vec []float32) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	query := `INSERT INTO ` + tableFor(collection) + ` (key, embedding, updated_at)
		VALUES ($1, $2::vector, NOW())
		ON CONFLICT (key) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = NOW()`
	if _, err := p.pool.Exec(ctx, query, key, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("upserting vector %d: %w", key, err)
	}
	return nil
}

func (p *PGVectorBackend) Query(ctx context.Context, collection string, vec []float32, k int) ([]int64, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	query := `SELECT key FROM ` + tableFor(collection) + `
		ORDER BY embedding <=> $1::vector, key ASC
		LIMIT $2`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}
	defer rows.Close()

	var keys []int64
	for rows.Next() {
		var key int64
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys: %w", err)
	}
	return keys, nil
}

func (p *PGVectorBackend) Close() error {
	p.pool.Close()
	return nil
}
