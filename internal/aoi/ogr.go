package aoi

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// readOGR reads every feature of every layer of a vector dataset (KML,
// shapefile, ...) and reprojects it to EPSG:4326.
func readOGR(path string) ([]feature, error) {
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(WGS84)
	if err != nil {
		return nil, fmt.Errorf("failed to create EPSG:%d: %w", WGS84, err)
	}
	defer wgs84.Close()

	var features []feature
	for _, layer := range ds.Layers() {
		sr := layer.SpatialRef()
		reproject := sr != nil && !sr.IsSame(wgs84)

		layer.ResetReading()
		for f := layer.NextFeature(); f != nil; f = layer.NextFeature() {
			g, err := featureGeometry(f, reproject, wgs84)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("%s: layer %s: %w", path, layer.Name(), err)
			}
			if g != nil {
				features = append(features, feature{geometry: g})
			}
		}
		if sr != nil {
			sr.Close()
		}
	}

	return features, nil
}

func featureGeometry(f *godal.Feature, reproject bool, to *godal.SpatialRef) (orb.Geometry, error) {
	g := f.Geometry()
	if g == nil {
		return nil, nil
	}
	defer g.Close()

	if reproject {
		if err := g.Reproject(to); err != nil {
			return nil, fmt.Errorf("failed to reproject geometry: %w", err)
		}
	}

	// orb ignores a third ordinate in GeoJSON; its WKT parser rejects one.
	js, err := g.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry: %w", err)
	}
	return geometryOf(js)
}
