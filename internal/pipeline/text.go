package pipeline

import (
	"context"

	"github.com/kalambet/sentio/internal/provider"
	"github.com/kalambet/sentio/internal/sentiment"
	"github.com/kalambet/sentio/internal/storage"
)

// Direct text operations. These return provider errors: the caller asked
// for the text itself, so there is nothing to fall back to.

func (p *Pipeline) Summarize(ctx context.Context, text string) (string, error) {
	return p.text.Generate(ctx, provider.Summarize, provider.Params{Text: text})
}

func (p *Pipeline) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	return p.text.Generate(ctx, provider.Translate, provider.Params{Text: text, TargetLanguage: targetLanguage})
}

func (p *Pipeline) GenerateCode(ctx context.Context, description, language string) (string, error) {
	return p.text.Generate(ctx, provider.GenerateCode, provider.Params{Text: description, ProgrammingLanguage: language})
}

// History returns stored messages newest first. limit <= 0 returns all.
func (p *Pipeline) History(ctx context.Context, limit int) ([]storage.Message, error) {
	return p.messages.ListMessages(ctx, limit)
}

func (p *Pipeline) BySentiment(ctx context.Context, label sentiment.Label, limit int) ([]storage.Message, error) {
	return p.messages.ListMessagesBySentiment(ctx, label, limit)
}
