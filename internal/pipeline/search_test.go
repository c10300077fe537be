package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/sentio/internal/provider"
	"github.com/kalambet/sentio/internal/vectorindex"
)

func seedMessages(t *testing.T, f *fixture, texts ...string) []int64 {
	t.Helper()
	ids := make([]int64, len(texts))
	for i, text := range texts {
		res, err := f.p.ProcessMessage(context.Background(), text)
		require.NoError(t, err)
		ids[i] = res.ID
	}
	return ids
}

func TestSemanticSearch_PreservesIndexOrderAndDropsMissing(t *testing.T) {
	f := newFixture(t, nil)
	ids := seedMessages(t, f, "um", "dois", "três")

	f.index.queryKeys = []int64{ids[2], 9999, ids[0], ids[1]}
	got, err := f.p.SemanticSearch(context.Background(), "consulta", 4)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[0], got[1].ID)
	assert.Equal(t, ids[1], got[2].ID)
}

func TestSemanticSearch_DegradedIndexReturnsEmpty(t *testing.T) {
	f := newFixture(t, nil)
	seedMessages(t, f, "um")
	embedsBefore := f.text.embedCalls()
	f.index.state = vectorindex.Degraded

	got, err := f.p.SemanticSearch(context.Background(), "um", 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, embedsBefore, f.text.embedCalls(), "no embedding is requested while degraded")
}

func TestSemanticSearch_QueryEmbeddingFailureReturnsEmpty(t *testing.T) {
	f := newFixture(t, failingText(errors.New("timeout")))
	f.index.queryKeys = []int64{1}

	got, err := f.p.SemanticSearch(context.Background(), "qualquer", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSemanticSearch_NoMatches(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.p.SemanticSearch(context.Background(), "nada", 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSemanticSearch_StoreFailureReturned(t *testing.T) {
	f := newFixture(t, nil)
	f.index.queryKeys = []int64{1, 2}
	f.store.getErr = errors.New("disk I/O error")

	_, err := f.p.SemanticSearch(context.Background(), "x", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestSemanticSearch_TopKDefaultsAndClamps(t *testing.T) {
	f := newFixture(t, nil, WithTopK(5, 50))
	f.index.queryKeys = []int64{1}
	ctx := context.Background()

	_, err := f.p.SemanticSearch(ctx, "x", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, f.index.lastTopK)

	_, err = f.p.SemanticSearch(ctx, "x", -3)
	require.NoError(t, err)
	assert.Equal(t, 5, f.index.lastTopK)

	_, err = f.p.SemanticSearch(ctx, "x", 1000)
	require.NoError(t, err)
	assert.Equal(t, 50, f.index.lastTopK)

	_, err = f.p.SemanticSearch(ctx, "x", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, f.index.lastTopK)
}

func TestSemanticSearch_EmptyQuery(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.p.SemanticSearch(context.Background(), " ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

// TestEndToEnd_WithRealIndex wires the real provider client, vector index
// and store together.
func TestEndToEnd_WithRealIndex(t *testing.T) {
	const dim = 32
	ctx := context.Background()

	completer := &fakeCompleter{}
	text := provider.NewClient(completer, provider.NewHashEmbedder(dim), provider.WithDimension(dim))
	index := vectorindex.Open(ctx, vectorindex.NewMemoryBackend(), vectorindex.Options{Dimension: dim})
	store := openStore(t)

	p, err := New(text, index, store, store, WithIndexMode(IndexSync))
	require.NoError(t, err)
	defer p.Close()

	texts := []string{"O relatório foi entregue", "Adorei o atendimento, excelente", "Meu pedido chegou quebrado"}
	ids := make([]int64, len(texts))
	for i, s := range texts {
		res, err := p.ProcessMessage(ctx, s)
		require.NoError(t, err)
		ids[i] = res.ID
	}

	got, err := p.SemanticSearch(ctx, texts[1], 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[1], got[0].ID, "identical text must rank first")

	hist, err := p.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, hist, 3)
}

type fakeCompleter struct{}

func (fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	return "ok: " + prompt, nil
}

func TestSemanticSearch_CancelledCallerKeepsIndexAvailable(t *testing.T) {
	store := openStore(t)
	idx := vectorindex.Open(context.Background(), vectorindex.NewSQLiteBackend(store.DB()), vectorindex.Options{Dimension: 3})
	p, err := New(&fakeText{}, idx, store, store, WithIndexMode(IndexSync))
	require.NoError(t, err)
	t.Cleanup(p.Close)

	res, err := p.ProcessMessage(context.Background(), "entrega atrasada")
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = p.SemanticSearch(cancelled, "entrega", 1)
	assert.Equal(t, vectorindex.Available, idx.State())

	got, err := p.SemanticSearch(context.Background(), "entrega", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, res.ID, got[0].ID)
}

func TestProcessMessage_CancelledAfterCommitKeepsIndexAvailable(t *testing.T) {
	store := openStore(t)
	idx := vectorindex.Open(context.Background(), vectorindex.NewSQLiteBackend(store.DB()), vectorindex.Options{Dimension: 3})

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel between the commit and the sync index write.
	text := &fakeText{embedFn: func(context.Context, string) ([]float32, error) {
		cancel()
		return []float32{1, 0, 0}, nil
	}}
	p, err := New(text, idx, store, store, WithIndexMode(IndexSync))
	require.NoError(t, err)
	t.Cleanup(p.Close)

	_, err = p.ProcessMessage(ctx, "pedido cancelado")
	require.NoError(t, err)
	assert.Equal(t, vectorindex.Available, idx.State())
}
