// Package aoi reads named polygons of interest from KML, ESRI shapefile and
// GeoJSON files and converts them to flattened GeoJSON.
package aoi

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/rkm/s2-parcels/pkg/geojson"
)

// WGS84 is the EPSG code every polygon is expressed in after reading.
const WGS84 = 4326

// ErrNoPolygon is returned when a source contains no polygon geometry.
var ErrNoPolygon = errors.New("no polygon found")

// Polygon is a named polygon of interest.
type Polygon struct {
	Name     string
	Geometry orb.Polygon
	// EPSG is the coordinate reference of Geometry.
	EPSG int
}

// WKT returns the polygon as WKT.
func (p Polygon) WKT() string {
	return geojson.ToWKT(p.Geometry)
}

// BBox returns the bounding box of the polygon as a polygon.
func (p Polygon) BBox() orb.Polygon {
	return p.Geometry.Bound().ToPolygon()
}

// feature is a raw geometry read from a source with its optional name.
type feature struct {
	name     string
	geometry orb.Geometry
}

// Read loads the polygons of a KML, shapefile or GeoJSON file. Features are
// named after the file (or <file>_<i> when there are several) unless a
// GeoJSON feature carries its own name. Multipolygons are flattened.
func Read(path string) ([]Polygon, error) {
	var (
		features []feature
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		features, err = readGeoJSON(path)
	default:
		features, err = readOGR(path)
	}
	if err != nil {
		return nil, err
	}

	polygons := flatten(BaseName(path), features)
	if len(polygons) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPolygon)
	}
	return polygons, nil
}

// ReadAll reads several sources and concatenates their polygons. Duplicate
// names are rejected since they would share an output directory.
func ReadAll(paths []string) ([]Polygon, error) {
	var all []Polygon
	seen := make(map[string]string)
	for _, path := range paths {
		polygons, err := Read(path)
		if err != nil {
			return nil, err
		}
		for _, p := range polygons {
			if prev, ok := seen[p.Name]; ok {
				return nil, fmt.Errorf("polygon name %q defined in both %s and %s", p.Name, prev, path)
			}
			seen[p.Name] = path
		}
		all = append(all, polygons...)
	}
	return all, nil
}

// BaseName returns the file name of path without its extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// flatten names raw features and splits multipolygons into one polygon per
// part named <name>_<k>. Non-polygon geometries are dropped.
func flatten(base string, features []feature) []Polygon {
	var polygons []Polygon
	for i, f := range features {
		name := f.name
		if name == "" {
			name = base
			if len(features) > 1 {
				name = base + "_" + strconv.Itoa(i)
			}
		}

		parts := geojson.Polygons(f.geometry)
		if len(parts) == 1 {
			polygons = append(polygons, Polygon{Name: name, Geometry: parts[0], EPSG: WGS84})
			continue
		}
		for k, part := range parts {
			polygons = append(polygons, Polygon{
				Name:     name + "_" + strconv.Itoa(k),
				Geometry: part,
				EPSG:     WGS84,
			})
		}
	}
	return polygons
}
