package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPGVectorBackend_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewPGVectorBackend(ctx, "postgres://sentio@127.0.0.1:1/sentio?connect_timeout=1")
	assert.Error(t, err)
}

func TestNewPGVectorBackend_BadDSN(t *testing.T) {
	_, err := NewPGVectorBackend(context.Background(), "://not a dsn")
	assert.Error(t, err)
}

func TestPGVectorBackend_RejectsBadCollection(t *testing.T) {
	p := &PGVectorBackend{}
	ctx := context.Background()
	assert.Error(t, p.EnsureCollection(ctx, "drop table;", 3))
	assert.Error(t, p.Upsert(ctx, "1bad", 1, []float32{1}))
	_, err := p.Query(ctx, "bad-name", []float32{1}, 1)
	assert.Error(t, err)
}
