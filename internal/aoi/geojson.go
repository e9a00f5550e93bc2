package aoi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	orbgeojson "github.com/paulmach/orb/geojson"
)

// nameProperties are the feature properties used as polygon names.
var nameProperties = []string{"name", "Name", "NAME"}

func readGeoJSON(path string) ([]feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	features, err := parseGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return features, nil
}

func parseGeoJSON(data []byte) ([]feature, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := orbgeojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("invalid feature collection: %w", err)
		}
		features := make([]feature, 0, len(fc.Features))
		for _, f := range fc.Features {
			features = append(features, feature{name: featureName(f), geometry: f.Geometry})
		}
		return features, nil
	case "Feature":
		f, err := orbgeojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("invalid feature: %w", err)
		}
		return []feature{{name: featureName(f), geometry: f.Geometry}}, nil
	default:
		g, err := orbgeojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("invalid geometry: %w", err)
		}
		return []feature{{geometry: g.Geometry()}}, nil
	}
}

func featureName(f *orbgeojson.Feature) string {
	for _, key := range nameProperties {
		if s, ok := f.Properties[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// FeatureCollection builds a FeatureCollection with a "name" property on
// every feature.
func FeatureCollection(polygons []Polygon) *orbgeojson.FeatureCollection {
	fc := orbgeojson.NewFeatureCollection()
	for _, p := range polygons {
		f := orbgeojson.NewFeature(p.Geometry)
		f.Properties["name"] = p.Name
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes polygons to path as a FeatureCollection.
func WriteGeoJSON(polygons []Polygon, path string) error {
	data, err := json.MarshalIndent(FeatureCollection(polygons), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// geometryOf returns an orb geometry from a GeoJSON geometry string.
func geometryOf(s string) (orb.Geometry, error) {
	g, err := orbgeojson.UnmarshalGeometry([]byte(s))
	if err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}
