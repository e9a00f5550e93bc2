package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/internal/stacapi"
	"github.com/rkm/s2-parcels/internal/translate"
	"github.com/rkm/s2-parcels/pkg/geojson"
)

// STACBackend implements Catalogue for a STAC API item search.
type STACBackend struct {
	client     *stacapi.Client
	collection string
	pageSize   int
	logger     *slog.Logger
}

// NewSTACBackend creates a new STAC backend searching collection.
func NewSTACBackend(client *stacapi.Client, collection string, logger *slog.Logger) *STACBackend {
	if collection == "" {
		collection = stacapi.DefaultCollection
	}
	return &STACBackend{
		client:     client,
		collection: collection,
		pageSize:   stacapi.DefaultPageSize,
		logger:     logger,
	}
}

// Name returns the backend name.
func (b *STACBackend) Name() string {
	return "stac"
}

// Search executes an item search against the STAC API.
func (b *STACBackend) Search(ctx context.Context, params *SearchParams) (*SearchResult, error) {
	query, err := b.toSTACParams(params)
	if err != nil {
		return nil, fmt.Errorf("failed to convert search params: %w", err)
	}

	features, err := b.client.SearchAll(ctx, query, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("STAC search failed: %w", err)
	}

	result := &SearchResult{Products: make([]product.Product, 0, len(features))}
	for i := range features {
		p, err := translate.STACFeatureToProduct(&features[i])
		if err != nil {
			b.logger.Warn("failed to translate STAC item",
				slog.String("item_id", features[i].ID),
				slog.String("error", err.Error()),
			)
			result.Skipped++
			continue
		}
		result.Products = append(result.Products, p)
	}
	result.Products = dedupe(result.Products)

	b.logger.DebugContext(ctx, "STAC search complete",
		slog.Int("products", len(result.Products)),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// toSTACParams converts backend SearchParams to a STAC item search.
func (b *STACBackend) toSTACParams(params *SearchParams) (*stacapi.SearchParams, error) {
	if params == nil {
		return nil, fmt.Errorf("search params are nil")
	}
	if len(params.AOI) == 0 {
		return nil, fmt.Errorf("area of interest is empty")
	}

	intersects, err := geojson.Marshal(params.AOI)
	if err != nil {
		return nil, fmt.Errorf("failed to encode area of interest: %w", err)
	}

	query := &stacapi.SearchParams{
		Collections:   []string{b.collection},
		Intersects:    intersects,
		CloudCoverMin: &params.CloudCoverMin,
		CloudCoverMax: &params.CloudCoverMax,
		Limit:         b.pageSize,
	}
	if !params.Start.IsZero() {
		start := params.Start
		query.Start = &start
	}
	if !params.End.IsZero() {
		end := params.End
		query.End = &end
	}

	return query, nil
}
