package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/metrics"
	"github.com/kalambet/sentio/internal/pipeline"
	"github.com/kalambet/sentio/internal/sentiment"
	"github.com/kalambet/sentio/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Service is the part of the pipeline the HTTP and MCP layers drive.
type Service interface {
	ProcessMessage(ctx context.Context, text string) (pipeline.Result, error)
	SemanticSearch(ctx context.Context, query string, topK int) ([]storage.Message, error)
	History(ctx context.Context, limit int) ([]storage.Message, error)
	BySentiment(ctx context.Context, label sentiment.Label, limit int) ([]storage.Message, error)
	CreateProduct(ctx context.Context, in pipeline.ProductInput) (storage.Product, error)
	Products(ctx context.Context) ([]storage.Product, error)
	ProductsByCategory(ctx context.Context, category string) ([]storage.Product, error)
	Summarize(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	GenerateCode(ctx context.Context, description, language string) (string, error)
	Stats(ctx context.Context) (pipeline.Stats, error)
	Reindex(ctx context.Context, batch int) (pipeline.ReindexResult, error)
}

type Deps struct {
	Service Service
	Logger  *zap.Logger
	// Token enables bearer auth on /api routes when non-empty.
	Token string
}

// NewHandler wires the REST routes, health and metrics endpoints.
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{svc: deps.Service, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Route("/ai", func(r chi.Router) {
			r.Post("/summarize", h.summarize)
			r.Post("/translate", h.translate)
			r.Post("/generate-code", h.generateCode)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/process", h.processMessage)
			r.Get("/history", h.history)
			r.Get("/sentiment/{sentiment}", h.bySentiment)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.createProduct)
			r.Get("/", h.listProducts)
			r.Get("/category/{category}", h.productsByCategory)
		})

		r.Post("/search/semantic", h.semanticSearch)
		r.Post("/index/reindex", h.reindex)
	})

	return r
}
