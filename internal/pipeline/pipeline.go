// Package pipeline sequences text generation, sentiment scoring, persistence
// and vector indexing into the message and product operations.
//
// Persistence is the only fatal step. Provider and index failures are logged
// and absorbed.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/provider"
	"github.com/kalambet/sentio/internal/sentiment"
	"github.com/kalambet/sentio/internal/storage"
	"github.com/kalambet/sentio/internal/vectorindex"
)

// TextProvider generates text and embeddings. *provider.Client satisfies it.
type TextProvider interface {
	Generate(ctx context.Context, op provider.Operation, p provider.Params) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SentimentAnalyzer scores text. *sentiment.Scorer satisfies it.
type SentimentAnalyzer interface {
	Analyze(text string) sentiment.Result
}

// VectorIndex is the degradable index. *vectorindex.Client satisfies it.
type VectorIndex interface {
	Upsert(ctx context.Context, key int64, vec []float32) bool
	Query(ctx context.Context, vec []float32, topK int) []int64
	State() vectorindex.State
}

type MessageStore interface {
	InsertMessage(ctx context.Context, m storage.NewMessage) (storage.Message, error)
	GetMessages(ctx context.Context, ids []int64) ([]storage.Message, error)
	ListMessages(ctx context.Context, limit int) ([]storage.Message, error)
	ListMessagesAfter(ctx context.Context, afterID int64, limit int) ([]storage.Message, error)
	ListMessagesBySentiment(ctx context.Context, label sentiment.Label, limit int) ([]storage.Message, error)
	CountMessages(ctx context.Context) (int, error)
}

type ProductStore interface {
	InsertProduct(ctx context.Context, p storage.NewProduct) (storage.Product, error)
	ListProducts(ctx context.Context) ([]storage.Product, error)
	ListProductsByCategory(ctx context.Context, category string) ([]storage.Product, error)
}

// IndexMode selects when the embedding write runs relative to the caller.
type IndexMode string

const (
	// IndexAsync hands the write to the worker pool and returns immediately.
	// A new message may not be searchable for a short while.
	IndexAsync IndexMode = "async"
	// IndexSync finishes the write before ProcessMessage returns.
	IndexSync IndexMode = "sync"
)

const (
	DefaultTopK         = 5
	DefaultMaxTopK      = 100
	DefaultIndexTimeout = 30 * time.Second
	DefaultIndexWorkers = 4
)

// Pipeline holds no per-call state and is safe for concurrent use.
type Pipeline struct {
	text     TextProvider
	scorer   SentimentAnalyzer
	index    VectorIndex
	messages MessageStore
	products ProductStore
	logger   *zap.Logger

	indexMode       IndexMode
	indexWorkers    int
	indexTimeout    time.Duration
	defaultTopK     int
	maxTopK         int
	productFallback bool

	pool *ants.Pool

	// mu guards closed against concurrent submits; wg tracks in-flight index jobs.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Pipeline) error

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) error {
		if l == nil {
			l = zap.NewNop()
		}
		p.logger = l
		return nil
	}
}

func WithSentiment(s SentimentAnalyzer) Option {
	return func(p *Pipeline) error {
		if s != nil {
			p.scorer = s
		}
		return nil
	}
}

func WithIndexMode(m IndexMode) Option {
	return func(p *Pipeline) error {
		switch m {
		case IndexAsync, IndexSync:
			p.indexMode = m
			return nil
		case "":
			p.indexMode = IndexAsync
			return nil
		}
		return fmt.Errorf("unknown index mode %q", m)
	}
}

// WithIndexWorkers sets the async index pool size. Values below 1 become 1.
func WithIndexWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.indexWorkers = n
		return nil
	}
}

func WithIndexTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d > 0 {
			p.indexTimeout = d
		}
		return nil
	}
}

// WithTopK sets the search default and ceiling.
func WithTopK(def, max int) Option {
	return func(p *Pipeline) error {
		if def > 0 {
			p.defaultTopK = def
		}
		if max > 0 {
			p.maxTopK = max
		}
		if p.defaultTopK > p.maxTopK {
			return fmt.Errorf("default topK %d exceeds max %d", p.defaultTopK, p.maxTopK)
		}
		return nil
	}
}

// WithProductFallback controls whether CreateProduct stores a product with an
// empty generated description when the provider fails. When false the
// provider error is returned and nothing is stored.
func WithProductFallback(enabled bool) Option {
	return func(p *Pipeline) error {
		p.productFallback = enabled
		return nil
	}
}

func New(text TextProvider, index VectorIndex, messages MessageStore, products ProductStore, opts ...Option) (*Pipeline, error) {
	switch {
	case text == nil:
		return nil, ErrTextProviderRequired
	case index == nil:
		return nil, ErrIndexRequired
	case messages == nil:
		return nil, ErrMessageStoreRequired
	case products == nil:
		return nil, ErrProductStoreRequired
	}

	p := &Pipeline{
		text:            text,
		scorer:          sentiment.Default(),
		index:           index,
		messages:        messages,
		products:        products,
		logger:          zap.NewNop(),
		indexMode:       IndexAsync,
		indexWorkers:    DefaultIndexWorkers,
		indexTimeout:    DefaultIndexTimeout,
		defaultTopK:     DefaultTopK,
		maxTopK:         DefaultMaxTopK,
		productFallback: true,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.indexMode == IndexAsync {
		pool, err := ants.NewPool(p.indexWorkers)
		if err != nil {
			return nil, fmt.Errorf("creating index pool: %w", err)
		}
		p.pool = pool
	}
	return p, nil
}

// Close waits for queued index writes and releases the pool. Later index
// writes are skipped.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
}

// Stats is a point-in-time view used by health and status reporting.
type Stats struct {
	Messages   int    `json:"messages"`
	IndexState string `json:"indexState"`
	IndexMode  string `json:"indexMode"`
}

func (p *Pipeline) Stats(ctx context.Context) (Stats, error) {
	n, err := p.messages.CountMessages(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting messages: %w", err)
	}
	return Stats{
		Messages:   n,
		IndexState: p.index.State().String(),
		IndexMode:  string(p.indexMode),
	}, nil
}
