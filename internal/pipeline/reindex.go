package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/vectorindex"
)

const defaultReindexBatch = 100

// ErrIndexUnavailable is returned by Reindex when the index is degraded.
var ErrIndexUnavailable = errors.New("vector index is unavailable")

// ReindexResult counts the outcome of a backfill run.
type ReindexResult struct {
	Scanned int `json:"scanned"`
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

// Reindex re-embeds every stored message into the vector index, paging
// through the store batch messages at a time. Messages written before the
// index was reachable become searchable afterwards. Individual embedding
// failures are counted, not returned; the run stops early if ctx is
// cancelled or the index degrades mid-run.
func (p *Pipeline) Reindex(ctx context.Context, batch int) (ReindexResult, error) {
	if batch <= 0 {
		batch = defaultReindexBatch
	}
	var res ReindexResult
	if p.index.State() == vectorindex.Degraded {
		return res, ErrIndexUnavailable
	}

	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := p.messages.ListMessagesAfter(ctx, after, batch)
		if err != nil {
			return res, fmt.Errorf("loading messages after %d: %w", after, err)
		}
		if len(page) == 0 {
			break
		}

		for _, m := range page {
			res.Scanned++
			switch p.writeEmbedding(ctx, m.ID, m.OriginalMessage) {
			case "ok":
				res.Indexed++
			case "skipped":
				p.logger.Warn("index degraded during reindex",
					zap.Int("scanned", res.Scanned),
					zap.Int("indexed", res.Indexed),
				)
				return res, ErrIndexUnavailable
			default:
				res.Failed++
			}
		}
		after = page[len(page)-1].ID
	}

	p.logger.Info("reindex finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("indexed", res.Indexed),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
