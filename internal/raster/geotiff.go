package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

var geotiffOptions = godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE", "BIGTIFF=IF_SAFER")

// createGeoTIFF creates a georeferenced GeoTIFF.
func createGeoTIFF(path string, nBands int, dtype godal.DataType, width, height int, gt [6]float64, projection string) (*godal.Dataset, error) {
	ds, err := godal.Create(godal.GTiff, path, nBands, dtype, width, height, geotiffOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := ds.SetGeoTransform(gt); err != nil {
		ds.Close()
		return nil, fmt.Errorf("failed to set geotransform on %s: %w", path, err)
	}
	if projection != "" {
		if err := ds.SetProjection(projection); err != nil {
			ds.Close()
			return nil, fmt.Errorf("failed to set projection on %s: %w", path, err)
		}
	}
	return ds, nil
}

// createLike creates a GeoTIFF sharing the georeferencing of src.
func createLike(path string, src *godal.Dataset, nBands int, dtype godal.DataType, width, height int) (*godal.Dataset, error) {
	gt, err := src.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("source has no geotransform: %w", err)
	}
	return createGeoTIFF(path, nBands, dtype, width, height, gt, src.Projection())
}
