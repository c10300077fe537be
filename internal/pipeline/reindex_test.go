package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/sentio/internal/vectorindex"
)

func TestReindex_BackfillsMessagesStoredWhileDegraded(t *testing.T) {
	f := newFixture(t, nil)
	f.index.state = vectorindex.Degraded
	ids := seedMessages(t, f, "um", "dois", "três", "quatro", "cinco")
	require.Zero(t, f.index.upsertCount())

	f.index.state = vectorindex.Available
	res, err := f.p.Reindex(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, ReindexResult{Scanned: 5, Indexed: 5}, res)
	for _, id := range ids {
		assert.True(t, f.index.upserted(id), "id %d", id)
	}
}

func TestReindex_CountsEmbeddingFailures(t *testing.T) {
	text := &fakeText{embedFn: func(_ context.Context, s string) ([]float32, error) {
		if s == "falha" {
			return nil, errors.New("embedding down")
		}
		return []float32{1, 0, 0}, nil
	}}
	f := newFixture(t, text)
	seedMessages(t, f, "ok", "falha", "ok de novo")

	res, err := f.p.Reindex(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 1, res.Failed)
}

func TestReindex_DegradedIndex(t *testing.T) {
	f := newFixture(t, nil)
	seedMessages(t, f, "um")
	f.index.state = vectorindex.Degraded

	_, err := f.p.Reindex(context.Background(), 10)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestReindex_EmptyStore(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.p.Reindex(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

func TestReindex_CancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	seedMessages(t, f, "um")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.p.Reindex(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
