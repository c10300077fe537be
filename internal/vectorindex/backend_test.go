package vectorindex

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// backends runs fn against every in-process backend.
func backends(t *testing.T, fn func(t *testing.T, b Backend)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryBackend()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, NewSQLiteBackend(openTestDB(t))) })
}

func TestBackend_QueryOrdersByCosine(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		require.NoError(t, b.EnsureCollection(ctx, "messages", 2))

		require.NoError(t, b.Upsert(ctx, "messages", 1, []float32{1, 0}))
		require.NoError(t, b.Upsert(ctx, "messages", 2, []float32{0, 1}))
		require.NoError(t, b.Upsert(ctx, "messages", 3, []float32{0.9, 0.1}))
		require.NoError(t, b.Upsert(ctx, "messages", 4, []float32{-1, 0}))

		keys, err := b.Query(ctx, "messages", []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 2}, keys)

		all, err := b.Query(ctx, "messages", []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 2, 4}, all)
	})
}

func TestBackend_CosineIgnoresMagnitude(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		require.NoError(t, b.EnsureCollection(ctx, "messages", 2))
		require.NoError(t, b.Upsert(ctx, "messages", 1, []float32{100, 1}))
		require.NoError(t, b.Upsert(ctx, "messages", 2, []float32{0.5, 0.5}))

		keys, err := b.Query(ctx, "messages", []float32{1, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, keys)
	})
}

func TestBackend_UpsertReplaces(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		require.NoError(t, b.EnsureCollection(ctx, "messages", 2))
		require.NoError(t, b.Upsert(ctx, "messages", 7, []float32{1, 0}))
		require.NoError(t, b.Upsert(ctx, "messages", 7, []float32{0, 1}))
		require.NoError(t, b.Upsert(ctx, "messages", 8, []float32{0.7, 0.7}))

		keys, err := b.Query(ctx, "messages", []float32{0, 1}, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{7, 8}, keys)
		for _, k := range keys {
			assert.NotZero(t, k)
		}
	})
}

func TestBackend_EnsureCollectionIdempotent(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		require.NoError(t, b.EnsureCollection(ctx, "messages", 3))
		require.NoError(t, b.Upsert(ctx, "messages", 1, []float32{1, 2, 3}))
		require.NoError(t, b.EnsureCollection(ctx, "messages", 3))

		keys, err := b.Query(ctx, "messages", []float32{1, 2, 3}, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, keys, "re-provisioning must keep existing vectors")

		assert.Error(t, b.EnsureCollection(ctx, "messages", 4))
	})
}

func TestBackend_RejectsBadInput(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		assert.ErrorIs(t, b.EnsureCollection(ctx, "bad name", 2), ErrInvalidCollection)

		assert.ErrorIs(t, b.Upsert(ctx, "missing", 1, []float32{1, 0}), ErrNoCollection)

		require.NoError(t, b.EnsureCollection(ctx, "messages", 2))
		assert.ErrorIs(t, b.Upsert(ctx, "messages", 1, []float32{1}), ErrDimensionMismatch)
		_, err := b.Query(ctx, "messages", []float32{1, 2, 3}, 1)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestBackend_EmptyAndZeroQuery(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		require.NoError(t, b.EnsureCollection(ctx, "messages", 2))

		keys, err := b.Query(ctx, "messages", []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, keys)

		require.NoError(t, b.Upsert(ctx, "messages", 1, []float32{1, 0}))
		keys, err = b.Query(ctx, "messages", []float32{0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestSQLiteBackend_PersistsAcrossInstances(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b1 := NewSQLiteBackend(db)
	require.NoError(t, b1.EnsureCollection(ctx, "messages", 2))
	require.NoError(t, b1.Upsert(ctx, "messages", 5, []float32{1, 1}))

	b2 := NewSQLiteBackend(db)
	require.NoError(t, b2.EnsureCollection(ctx, "messages", 2))
	n, err := b2.Count(ctx, "messages")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClient_WithMemoryBackend(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	c := Open(ctx, mem, Options{Collection: "chat", Dimension: 2})
	require.Equal(t, Available, c.State())

	assert.True(t, c.Upsert(ctx, 10, []float32{1, 0}))
	assert.True(t, c.Upsert(ctx, 11, []float32{0, 1}))
	assert.Equal(t, 2, mem.Len("chat"))
	assert.Equal(t, []int64{11, 10}, c.Query(ctx, []float32{0.1, 1}, 2))
}

func TestTopK_TiesPreferLowerKey(t *testing.T) {
	best := newTopK(2)
	best.offer(9, 0.5)
	best.offer(3, 0.5)
	best.offer(5, 0.5)
	assert.Equal(t, []int64{3, 5}, best.keys())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := decodeFloat32sInto(nil, encodeFloat32s(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeFloat32sInto(nil, []byte{1, 2, 3})
	assert.Error(t, err)
}
