package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/metrics"
	"github.com/kalambet/sentio/internal/storage"
	"github.com/kalambet/sentio/internal/vectorindex"
)

// SemanticSearch returns up to topK stored messages closest to query, in the
// order the index ranks them. A degraded index or a failed query embedding
// yields an empty result. Keys that no longer resolve to a message are
// dropped. Only store failures are returned.
func (p *Pipeline) SemanticSearch(ctx context.Context, query string, topK int) ([]storage.Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	topK = p.clampTopK(topK)

	if p.index.State() == vectorindex.Degraded {
		metrics.SearchRequests.WithLabelValues("degraded").Inc()
		return []storage.Message{}, nil
	}

	vec, err := p.text.Embed(ctx, query)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("embed_failed").Inc()
		p.logger.Warn("embedding search query failed, returning no results", zap.Error(err))
		return []storage.Message{}, nil
	}

	keys := p.index.Query(ctx, vec, topK)
	if len(keys) == 0 {
		metrics.SearchRequests.WithLabelValues("empty").Inc()
		return []storage.Message{}, nil
	}

	msgs, err := p.messages.GetMessages(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("resolving search results: %w", err)
	}
	if dropped := len(keys) - len(msgs); dropped > 0 {
		p.logger.Debug("search keys without a stored message", zap.Int("dropped", dropped))
	}
	if msgs == nil {
		msgs = []storage.Message{}
	}
	metrics.SearchRequests.WithLabelValues("hit").Inc()
	return msgs, nil
}

func (p *Pipeline) clampTopK(k int) int {
	if k <= 0 {
		return p.defaultTopK
	}
	if k > p.maxTopK {
		return p.maxTopK
	}
	return k
}
