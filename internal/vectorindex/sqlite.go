package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

var _ Backend = (*SQLiteBackend)(nil)

// SQLiteBackend stores each collection in its own table of little-endian
// float32 BLOBs and searches it by full scan.
//
// It shares the record store's *sql.DB; Close does not close it.
type SQLiteBackend struct {
	db *sql.DB

	mu   sync.RWMutex
	dims map[string]int
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db, dims: make(map[string]int)}
}

func tableFor(collection string) string {
	return "vec_" + collection
}

func (s *SQLiteBackend) EnsureCollection(ctx context.Context, name string, dim int) error {
	if err := ValidateCollection(name); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS vector_collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL CHECK (dimension > 0)
	)`); err != nil {
		return fmt.Errorf("creating vector_collections table: %w", err)
	}

	var existing int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM vector_collections WHERE name = ?`, name).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO vector_collections (name, dimension) VALUES (?, ?)`, name, dim); err != nil {
			return fmt.Errorf("registering collection %s: %w", name, err)
		}
	case err != nil:
		return fmt.Errorf("reading collection %s: %w", name, err)
	case existing != dim:
		return fmt.Errorf("collection %q has dimension %d, requested %d", name, existing, dim)
	}

	// Identifier validated above; table names cannot be bound as parameters.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+tableFor(name)+` (
		key INTEGER PRIMARY KEY,
		embedding BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating collection table %s: %w", name, err)
	}

	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
	return nil
}

func (s *SQLiteBackend) dimension(collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dim, ok := s.dims[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoCollection, collection)
	}
	return dim, nil
}

func (s *SQLiteBackend) Upsert(ctx context.Context, collection string, key int64, vec []float32) error {
	dim, err := s.dimension(collection)
	if err != nil {
		return err
	}
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+tableFor(collection)+` (key, embedding, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET embedding = excluded.embedding, updated_at = excluded.updated_at`,
		key, encodeFloat32s(vec), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting vector %d: %w", key, err)
	}
	return nil
}

func (s *SQLiteBackend) Query(ctx context.Context, collection string, vec []float32, k int) ([]int64, error) {
	dim, err := s.dimension(collection)
	if err != nil {
		return nil, err
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	qNorm := norm(vec)
	if qNorm == 0 || k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, embedding FROM `+tableFor(collection))
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", collection, err)
	}
	defer rows.Close()

	best := newTopK(k)
	var buf []float32
	for rows.Next() {
		var key int64
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector %d: %w", key, err)
		}
		best.offer(key, cosine(vec, buf, qNorm))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}
	return best.keys(), nil
}

// Count returns the number of vectors in collection.
func (s *SQLiteBackend) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.dimension(collection); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tableFor(collection)).Scan(&n)
	return n, err
}

func (s *SQLiteBackend) Close() error { return nil }
