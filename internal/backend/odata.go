package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rkm/s2-parcels/internal/odata"
	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/internal/translate"
	"github.com/rkm/s2-parcels/pkg/geojson"
)

// ODataBackend implements Catalogue for the CDSE OData API.
type ODataBackend struct {
	client     *odata.Client
	collection string
	logger     *slog.Logger
}

// NewODataBackend creates a new OData backend searching the Sentinel-2
// collection.
func NewODataBackend(client *odata.Client, logger *slog.Logger) *ODataBackend {
	return &ODataBackend{
		client:     client,
		collection: odata.CollectionSentinel2,
		logger:     logger,
	}
}

// Name returns the backend name.
func (b *ODataBackend) Name() string {
	return "odata"
}

// Search executes a search against the OData API.
func (b *ODataBackend) Search(ctx context.Context, params *SearchParams) (*SearchResult, error) {
	query, err := b.toODataParams(params)
	if err != nil {
		return nil, fmt.Errorf("failed to convert search params: %w", err)
	}

	entries, err := b.client.SearchAll(ctx, query, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("OData search failed: %w", err)
	}

	result := &SearchResult{Products: make([]product.Product, 0, len(entries))}
	for i := range entries {
		p, err := translate.ODataProductToProduct(&entries[i])
		if err != nil {
			b.logger.Warn("failed to translate OData product",
				slog.String("product_id", entries[i].ID),
				slog.String("error", err.Error()),
			)
			result.Skipped++
			continue
		}
		result.Products = append(result.Products, p)
	}
	result.Products = dedupe(result.Products)

	b.logger.DebugContext(ctx, "OData search complete",
		slog.Int("products", len(result.Products)),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// toODataParams converts backend SearchParams to OData-specific SearchParams.
func (b *ODataBackend) toODataParams(params *SearchParams) (odata.SearchParams, error) {
	if params == nil {
		return odata.SearchParams{}, fmt.Errorf("search params are nil")
	}
	if len(params.AOI) == 0 {
		return odata.SearchParams{}, fmt.Errorf("area of interest is empty")
	}

	query := odata.SearchParams{
		Collection:       b.collection,
		ProductType:      params.ProductType,
		Intersects:       geojson.ToWKT(params.AOI),
		CloudCoverMin:    &params.CloudCoverMin,
		CloudCoverMax:    &params.CloudCoverMax,
		OrderBy:          "ContentDate/Start asc",
		ExpandAttributes: true,
	}
	if !params.Start.IsZero() {
		start := params.Start
		query.Start = &start
	}
	if !params.End.IsZero() {
		end := params.End
		query.End = &end
	}
	if query.ProductType == "" {
		query.ProductType = odata.ProductTypeL2A
	}

	return query, nil
}
