// Package provider talks to the external text-generation service. Client
// renders one instruction per Operation, sends it to a Completer and returns
// the completion untouched; every failure comes back as a *ProviderError.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Operation names a prompt-based text operation.
type Operation string

const (
	Summarize          Operation = "summarize"
	AutoReply          Operation = "auto_reply"
	Translate          Operation = "translate"
	GenerateCode       Operation = "generate_code"
	ProductDescription Operation = "product_description"
)

// Operations lists every supported operation.
var Operations = []Operation{Summarize, AutoReply, Translate, GenerateCode, ProductDescription}

// opEmbed labels embedding failures in ProviderError.Op.
const opEmbed = "embed"

var (
	ErrUnknownOperation  = errors.New("unknown operation")
	ErrMissingParam      = errors.New("missing parameter")
	ErrEmptyCompletion   = errors.New("provider returned no completion")
	ErrDimensionMismatch = errors.New("embedding has unexpected dimension")
	ErrNotConfigured     = errors.New("no text provider configured")
)

// Params carries the operation-specific inputs. Only the fields an operation
// uses are read.
type Params struct {
	Text                string
	TargetLanguage      string
	ProgrammingLanguage string
	ProductName         string
	ProductCategory     string
	ProductPrice        float64
}

// Completer sends one instruction to a text-generation backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a semantic vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderError wraps any failure of a provider call.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DefaultTimeout bounds each provider call.
const DefaultTimeout = 30 * time.Second

// Client is safe for concurrent use and holds no per-call state.
type Client struct {
	completer Completer
	embedder  Embedder
	timeout   time.Duration
	dimension int
	onFailure func(op string)
}

type Option func(*Client)

// WithTimeout sets the per-call deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithDimension makes Embed reject vectors of any other length.
func WithDimension(n int) Option {
	return func(c *Client) { c.dimension = n }
}

// WithFailureHook registers a callback invoked with the operation name on
// every failed call.
func WithFailureHook(fn func(op string)) Option {
	return func(c *Client) { c.onFailure = fn }
}

func NewClient(completer Completer, embedder Embedder, opts ...Option) *Client {
	c := &Client{
		completer: completer,
		embedder:  embedder,
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.completer == nil {
		c.completer = Unconfigured{}
	}
	if c.embedder == nil {
		c.embedder = Unconfigured{}
	}
	return c
}

// Generate runs op with p and returns the raw completion.
func (c *Client) Generate(ctx context.Context, op Operation, p Params) (string, error) {
	prompt, err := Render(op, p)
	if err != nil {
		return "", c.fail(string(op), err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return "", c.fail(string(op), err)
	}
	return out, nil
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, c.fail(opEmbed, err)
	}
	if c.dimension > 0 && len(vec) != c.dimension {
		return nil, c.fail(opEmbed, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dimension))
	}
	return vec, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) fail(op string, err error) error {
	if c.onFailure != nil {
		c.onFailure(op)
	}
	return &ProviderError{Op: op, Err: err}
}

// Unconfigured fails every call with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Complete(context.Context, string) (string, error) { return "", ErrNotConfigured }

func (Unconfigured) Embed(context.Context, string) ([]float32, error) { return nil, ErrNotConfigured }
