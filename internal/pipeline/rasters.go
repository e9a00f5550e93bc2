package pipeline

import (
	"github.com/paulmach/orb"

	"github.com/rkm/s2-parcels/internal/raster"
	"github.com/rkm/s2-parcels/internal/workspace"
)

// Rasters is the raster work done per product.
type Rasters interface {
	// ImgDataPath locates the IMG_DATA folder of an unpacked product.
	ImgDataPath(databaseDir, folder string) (string, error)
	// Source returns the raster clipped for kind, deriving it when needed.
	Source(imgPath string, kind workspace.Kind) (string, error)
	// Clip writes src masked to polygon into dst.
	Clip(src string, polygon orb.Polygon, epsg int, dst string) error
}

// GDALRasters implements Rasters with the raster package.
type GDALRasters struct{}

func (GDALRasters) ImgDataPath(databaseDir, folder string) (string, error) {
	return raster.ImgDataPath(databaseDir, folder)
}

func (GDALRasters) Source(imgPath string, kind workspace.Kind) (string, error) {
	switch kind {
	case workspace.NDVI:
		return raster.GenerateNDVI(imgPath, false)
	case workspace.NDRE:
		return raster.GenerateNDRE(imgPath, false)
	default:
		return raster.BandFile(imgPath, raster.R10m, raster.BandTCI)
	}
}

func (GDALRasters) Clip(src string, polygon orb.Polygon, epsg int, dst string) error {
	return raster.Clip(src, polygon, epsg, dst)
}
