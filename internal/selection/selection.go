// Package selection picks the catalogue products whose footprint covers
// enough of a polygon of interest.
package selection

import (
	"fmt"
	"math"
	"sort"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/pkg/geojson"
)

// Default thresholds for the download and processing stages.
const (
	DownloadThreshold = 0.9
	ProcessThreshold  = 0.97
)

// Candidate is a product together with its coverage of a polygon.
type Candidate struct {
	Product  product.Product
	Coverage float64
}

// Coverage returns area(aoi ∩ footprint) / area(aoi). In regional mode the
// denominator is the footprint area instead, for polygons larger than a tile.
// Areas are planar in the geometries' own units. A zero-area denominator
// yields 0.
func Coverage(aoi orb.Polygon, footprint orb.Geometry, regional bool) (float64, error) {
	if footprint == nil {
		return 0, nil
	}

	denominator := planar.Area(aoi)
	if regional {
		denominator = planar.Area(footprint)
	}
	if denominator <= 0 {
		return 0, nil
	}

	b := footprint.Bound()
	if !b.Intersects(aoi.Bound()) {
		return 0, nil
	}

	inter, err := intersectionArea(aoi, footprint)
	if err != nil {
		return 0, err
	}
	return math.Min(inter/denominator, 1), nil
}

func intersectionArea(a, b orb.Geometry) (float64, error) {
	ga, err := godal.NewGeometryFromWKT(geojson.ToWKT(a), nil)
	if err != nil {
		return 0, fmt.Errorf("invalid polygon: %w", err)
	}
	defer ga.Close()

	gb, err := godal.NewGeometryFromWKT(geojson.ToWKT(b), nil)
	if err != nil {
		return 0, fmt.Errorf("invalid footprint: %w", err)
	}
	defer gb.Close()

	inter, err := ga.Intersection(gb)
	if err != nil {
		return 0, fmt.Errorf("intersection failed: %w", err)
	}
	defer inter.Close()

	return inter.Area(), nil
}

// Select returns the products covering at least threshold of aoi, highest
// coverage first and oldest first among equals.
func Select(products []product.Product, aoi orb.Polygon, threshold float64, regional bool) ([]Candidate, error) {
	var out []Candidate
	for _, p := range products {
		c, err := Coverage(aoi, p.Footprint, regional)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", p.Title, err)
		}
		if c >= threshold {
			out = append(out, Candidate{Product: p, Coverage: c})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Coverage != out[j].Coverage {
			return out[i].Coverage > out[j].Coverage
		}
		return out[i].Product.AcquisitionDate().Before(out[j].Product.AcquisitionDate())
	})
	return out, nil
}

// Products strips coverage information from candidates.
func Products(candidates []Candidate) []product.Product {
	out := make([]product.Product, len(candidates))
	for i, c := range candidates {
		out[i] = c.Product
	}
	return out
}
