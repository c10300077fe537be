package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/metrics"
	"github.com/kalambet/sentio/internal/provider"
	"github.com/kalambet/sentio/internal/storage"
)

type ProductInput struct {
	Name        string
	Description string
	Price       float64
	Category    string
}

func (in ProductInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case strings.TrimSpace(in.Category) == "":
		return fmt.Errorf("%w: category is required", ErrInvalidProduct)
	case !(in.Price > 0):
		return fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	return nil
}

// CreateProduct asks the provider for a marketing description and stores the
// product with both descriptions.
func (p *Pipeline) CreateProduct(ctx context.Context, in ProductInput) (storage.Product, error) {
	if err := in.validate(); err != nil {
		return storage.Product{}, err
	}

	generated, err := p.text.Generate(ctx, provider.ProductDescription, provider.Params{
		ProductName:     in.Name,
		ProductCategory: in.Category,
		ProductPrice:    in.Price,
	})
	if err != nil {
		if !p.productFallback {
			metrics.ProductsCreated.WithLabelValues("provider_error").Inc()
			return storage.Product{}, err
		}
		metrics.EnrichmentDegraded.WithLabelValues(string(provider.ProductDescription)).Inc()
		p.logger.Warn("product description generation failed, storing without it",
			zap.String("product", in.Name),
			zap.Error(err),
		)
		generated = ""
	}

	prod, err := p.products.InsertProduct(ctx, storage.NewProduct{
		Name:                 in.Name,
		Description:          in.Description,
		GeneratedDescription: generated,
		Price:                in.Price,
		Category:             in.Category,
	})
	if err != nil {
		metrics.ProductsCreated.WithLabelValues("persist_error").Inc()
		p.logger.Error("storing product failed", zap.Error(err))
		return storage.Product{}, &PersistenceError{Op: "storing product", Err: err}
	}
	metrics.ProductsCreated.WithLabelValues("ok").Inc()
	return prod, nil
}

func (p *Pipeline) Products(ctx context.Context) ([]storage.Product, error) {
	return p.products.ListProducts(ctx)
}

func (p *Pipeline) ProductsByCategory(ctx context.Context, category string) ([]storage.Product, error) {
	return p.products.ListProductsByCategory(ctx, category)
}
