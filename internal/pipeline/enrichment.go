package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sentio/internal/metrics"
	"github.com/kalambet/sentio/internal/provider"
	"github.com/kalambet/sentio/internal/sentiment"
	"github.com/kalambet/sentio/internal/storage"
	"github.com/kalambet/sentio/internal/vectorindex"
)

// Diagnostic describes an enrichment step that failed soft.
type Diagnostic struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// Result is the outcome of ProcessMessage.
type Result struct {
	ID             int64           `json:"id"`
	Summary        string          `json:"summary"`
	AutoResponse   string          `json:"autoResponse"`
	Sentiment      sentiment.Label `json:"sentiment"`
	SentimentScore float64         `json:"sentimentScore"`
	Diagnostics    []Diagnostic    `json:"diagnostics,omitempty"`
}

// ProcessMessage enriches text, stores it, and indexes its embedding.
//
// Summary and auto-reply are requested concurrently and fall back to "" on
// provider failure. The store write is the only step whose failure is
// returned. Indexing runs after the commit and never affects the result.
func (p *Pipeline) ProcessMessage(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyMessage
	}

	var (
		summary, reply         string
		summaryDiag, replyDiag *Diagnostic
	)
	var g errgroup.Group
	g.Go(func() error {
		summary, summaryDiag = p.enrich(ctx, provider.Summarize, text)
		return nil
	})
	g.Go(func() error {
		reply, replyDiag = p.enrich(ctx, provider.AutoReply, text)
		return nil
	})
	_ = g.Wait()

	score := p.scorer.Analyze(text)

	msg, err := p.messages.InsertMessage(ctx, storage.NewMessage{
		OriginalMessage: text,
		Summary:         summary,
		AutoResponse:    reply,
		Sentiment:       score.Label,
		SentimentScore:  score.Score,
	})
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("persist_error").Inc()
		p.logger.Error("storing message failed", zap.Error(err))
		return Result{}, &PersistenceError{Op: "storing message", Err: err}
	}

	p.indexMessage(ctx, msg.ID, text)

	res := Result{
		ID:             msg.ID,
		Summary:        summary,
		AutoResponse:   reply,
		Sentiment:      score.Label,
		SentimentScore: score.Score,
	}
	for _, d := range []*Diagnostic{summaryDiag, replyDiag} {
		if d != nil {
			res.Diagnostics = append(res.Diagnostics, *d)
		}
	}

	status := "ok"
	if len(res.Diagnostics) > 0 {
		status = "degraded"
	}
	metrics.MessagesProcessed.WithLabelValues(status).Inc()
	p.logger.Debug("message processed",
		zap.Int64("id", msg.ID),
		zap.String("sentiment", string(score.Label)),
		zap.Int("diagnostics", len(res.Diagnostics)),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

// enrich runs one optional generation step. A failure yields "" and a
// diagnostic.
func (p *Pipeline) enrich(ctx context.Context, op provider.Operation, text string) (string, *Diagnostic) {
	out, err := p.text.Generate(ctx, op, provider.Params{Text: text})
	if err != nil {
		metrics.EnrichmentDegraded.WithLabelValues(string(op)).Inc()
		p.logger.Warn("enrichment step failed, continuing without it",
			zap.String("step", string(op)),
			zap.Error(err),
		)
		return "", &Diagnostic{Step: string(op), Message: err.Error()}
	}
	return out, nil
}

// indexMessage schedules or runs the embedding write for id.
func (p *Pipeline) indexMessage(ctx context.Context, id int64, text string) {
	if p.indexMode == IndexSync {
		p.writeEmbedding(ctx, id, text)
		return
	}

	// The write outlives the request; keep its values but not its deadline.
	detached := context.WithoutCancel(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.IndexWrites.WithLabelValues("skipped").Inc()
		p.logger.Warn("pipeline closed, skipping index write", zap.Int64("id", id))
		return
	}
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		p.writeEmbedding(detached, id, text)
	})
	if err != nil {
		p.wg.Done()
		metrics.IndexWrites.WithLabelValues("failed").Inc()
		p.logger.Warn("could not schedule index write", zap.Int64("id", id), zap.Error(err))
	}
}

// writeEmbedding embeds text and stores it under id. It returns the outcome
// label recorded on the index write counter.
func (p *Pipeline) writeEmbedding(ctx context.Context, id int64, text string) string {
	outcome := p.embedAndUpsert(ctx, id, text)
	metrics.IndexWrites.WithLabelValues(outcome).Inc()
	return outcome
}

func (p *Pipeline) embedAndUpsert(ctx context.Context, id int64, text string) string {
	if p.index.State() == vectorindex.Degraded {
		return "skipped"
	}

	ctx, cancel := context.WithTimeout(ctx, p.indexTimeout)
	defer cancel()

	vec, err := p.text.Embed(ctx, text)
	if err != nil {
		p.logger.Warn("embedding failed, message will not be searchable",
			zap.Int64("id", id),
			zap.Error(err),
		)
		return "failed"
	}
	if !p.index.Upsert(ctx, id, vec) {
		p.logger.Warn("index write dropped", zap.Int64("id", id))
		return "failed"
	}
	return "ok"
}
