// Package vectorindex stores message embeddings and answers nearest-neighbour
// queries. The Client degrades to a no-op when its backend fails and never
// returns backend errors to callers.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"go.uber.org/zap"
)

// State is the availability of the index.
type State int32

const (
	Available State = iota
	Degraded
)

func (s State) String() string {
	switch s {
	case Available:
		return "AVAILABLE"
	case Degraded:
		return "DEGRADED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	// ErrDimensionMismatch is returned by backends when a vector does not
	// match the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidCollection is returned for collection names that are not
	// plain SQL identifiers.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrNoCollection is returned when a collection has not been provisioned.
	ErrNoCollection = errors.New("collection not provisioned")
)

// Backend is an external vector store. Query returns keys closest-first by
// cosine similarity.
type Backend interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection string, key int64, vec []float32) error
	Query(ctx context.Context, collection string, vec []float32, topK int) ([]int64, error)
	Close() error
}

// StateObserver is notified of the initial state and every transition.
type StateObserver func(State)

// DefaultDimension matches text-embedding-3-small.
const DefaultDimension = 1536

type Options struct {
	Collection string
	Dimension  int
	Logger     *zap.Logger
	Observer   StateObserver
}

func (o *Options) normalize() {
	if o.Collection == "" {
		o.Collection = "messages"
	}
	if o.Dimension <= 0 {
		o.Dimension = DefaultDimension
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Client wraps a Backend with the AVAILABLE/DEGRADED state machine. The
// transition to DEGRADED is permanent for the lifetime of the Client.
type Client struct {
	backend Backend
	opts    Options
	state   atomic.Int32
}

// Open provisions the collection and returns a Client. It never fails: a
// provisioning error yields a Client that starts out degraded.
func Open(ctx context.Context, backend Backend, opts Options) *Client {
	opts.normalize()
	c := &Client{backend: backend, opts: opts}

	if backend == nil {
		c.state.Store(int32(Degraded))
		c.notify(Degraded)
		return c
	}

	if err := backend.EnsureCollection(ctx, opts.Collection, opts.Dimension); err != nil {
		c.state.Store(int32(Degraded))
		opts.Logger.Warn("vector index unavailable at startup, continuing degraded",
			zap.String("collection", opts.Collection),
			zap.Error(err),
		)
		c.notify(Degraded)
		return c
	}

	c.notify(Available)
	opts.Logger.Info("vector index ready",
		zap.String("collection", opts.Collection),
		zap.Int("dimension", opts.Dimension),
	)
	return c
}

// Disabled returns a Client with no backend. It is degraded from birth.
func Disabled(opts Options) *Client {
	return Open(context.Background(), nil, opts)
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) Collection() string {
	return c.opts.Collection
}

func (c *Client) Dimension() int {
	return c.opts.Dimension
}

// Upsert writes vec under key. It reports whether the write reached the
// backend; false means the index is degraded or the vector was rejected.
func (c *Client) Upsert(ctx context.Context, key int64, vec []float32) bool {
	if c.State() == Degraded {
		return false
	}
	if len(vec) != c.opts.Dimension {
		c.opts.Logger.Warn("rejecting vector with wrong dimension",
			zap.Int64("key", key),
			zap.Int("got", len(vec)),
			zap.Int("want", c.opts.Dimension),
		)
		return false
	}
	if err := c.backend.Upsert(ctx, c.opts.Collection, key, vec); err != nil {
		c.fail(ctx, "upsert", err)
		return false
	}
	return true
}

// Query returns up to topK keys closest-first. It returns nil when the index
// is degraded or the query fails.
func (c *Client) Query(ctx context.Context, vec []float32, topK int) []int64 {
	if c.State() == Degraded || topK <= 0 {
		return nil
	}
	if len(vec) != c.opts.Dimension {
		c.opts.Logger.Warn("rejecting query vector with wrong dimension",
			zap.Int("got", len(vec)),
			zap.Int("want", c.opts.Dimension),
		)
		return nil
	}
	keys, err := c.backend.Query(ctx, c.opts.Collection, vec, topK)
	if err != nil {
		c.fail(ctx, "query", err)
		return nil
	}
	return keys
}

// Close releases the backend.
func (c *Client) Close() error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

// fail classifies a backend error. An error seen after the caller's context
// ended belongs to that caller and leaves the index available.
func (c *Client) fail(ctx context.Context, op string, err error) {
	if ctx.Err() != nil {
		c.opts.Logger.Warn("vector index call abandoned by caller",
			zap.String("op", op),
			zap.String("collection", c.opts.Collection),
			zap.Error(err),
		)
		return
	}
	c.degrade(op, err)
}

// degrade performs the one-way transition. Only the first caller logs.
func (c *Client) degrade(op string, err error) {
	if !c.state.CompareAndSwap(int32(Available), int32(Degraded)) {
		return
	}
	c.opts.Logger.Error("vector index failed, switching to degraded mode",
		zap.String("op", op),
		zap.String("collection", c.opts.Collection),
		zap.Error(err),
	)
	c.notify(Degraded)
}

func (c *Client) notify(s State) {
	if c.opts.Observer != nil {
		c.opts.Observer(s)
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateCollection reports whether name can be used as a table name.
func ValidateCollection(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}
