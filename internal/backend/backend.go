// Package backend provides an abstraction over the product catalogues
// (CDSE OData, STAC API) used to find Sentinel-2 products.
package backend

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/rkm/s2-parcels/internal/product"
)

// Catalogue defines the interface for product search backends.
// Both the OData and STAC API backends implement this interface.
type Catalogue interface {
	// Search executes a search query and returns every matching product.
	Search(ctx context.Context, params *SearchParams) (*SearchResult, error)

	// Name returns the backend name (e.g., "odata", "stac").
	Name() string
}

// SearchParams contains parameters for search queries.
// These are backend-agnostic and will be translated to backend-specific formats.
type SearchParams struct {
	// AOI is the area of interest in EPSG:4326.
	AOI orb.Polygon

	// Sensing time bounds
	Start time.Time
	End   time.Time

	// Cloud cover bounds in percent (inclusive)
	CloudCoverMin float64
	CloudCoverMax float64

	// ProductType, e.g. "S2MSI2A". Ignored by backends whose collection
	// already fixes the product type.
	ProductType string

	// Limit caps the number of products returned (0 means no limit).
	Limit int
}

// SearchResult contains the results of a search query.
type SearchResult struct {
	// Products found, ordered by sensing date.
	Products []product.Product

	// Skipped counts catalogue entries that could not be converted.
	Skipped int
}

// dedupe removes repeated product ids, keeping the first occurrence.
func dedupe(products []product.Product) []product.Product {
	seen := make(map[string]bool, len(products))
	out := products[:0]
	for _, p := range products {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
