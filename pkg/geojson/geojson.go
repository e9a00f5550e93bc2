// Package geojson provides geometry conversions shared by the catalogue
// clients, the product ledger and the HTTP API. Geometries are modelled with
// paulmach/orb; this package adds the WKT, GeoJSON and bounding box helpers
// the rest of the module needs.
package geojson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	orbgeojson "github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/encoding/wkt"
)

// ParseWKT parses a WKT string. An EWKT "SRID=4326;" prefix and the OData
// "geography'...'" wrapper are accepted and stripped.
func ParseWKT(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "geography'") {
		s = strings.TrimSuffix(s[len("geography'"):], "'")
	}
	if strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		if i := strings.Index(s, ";"); i >= 0 {
			s = s[i+1:]
		}
	}
	if s == "" {
		return nil, fmt.Errorf("empty WKT")
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WKT: %w", err)
	}
	return g, nil
}

// ToWKT converts a geometry to WKT. A nil geometry yields an empty string.
func ToWKT(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return wkt.MarshalString(g)
}

// Marshal encodes a geometry as a GeoJSON geometry object.
func Marshal(g orb.Geometry) (json.RawMessage, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}
	data, err := json.Marshal(orbgeojson.NewGeometry(g))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geometry: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a GeoJSON geometry object.
func Unmarshal(data []byte) (orb.Geometry, error) {
	g, err := orbgeojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal geometry: %w", err)
	}
	return g.Geometry(), nil
}

// BBox returns the bounding box of the geometry as [west, south, east, north].
func BBox(g orb.Geometry) ([]float64, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}
	b := g.Bound()
	return []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}, nil
}

// NewPolygonFromBBox creates a polygon from [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (orb.Polygon, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}
	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if west > east || south > north {
		return nil, fmt.Errorf("invalid bbox: %v", bbox)
	}
	return orb.Polygon{{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}}, nil
}

// Polygons flattens a geometry into its polygon parts. Polygons are returned
// as-is, multipolygons yield one entry per part and collections are walked
// recursively. Other geometry types contribute nothing.
func Polygons(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		out := make([]orb.Polygon, 0, len(v))
		for _, p := range v {
			out = append(out, p)
		}
		return out
	case orb.Collection:
		var out []orb.Polygon
		for _, c := range v {
			out = append(out, Polygons(c)...)
		}
		return out
	case orb.Bound:
		return []orb.Polygon{v.ToPolygon()}
	}
	return nil
}
