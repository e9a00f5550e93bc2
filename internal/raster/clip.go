package raster

import (
	"fmt"
	"math"
	"os"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/rkm/s2-parcels/pkg/geojson"
)

// window is a pixel rectangle of a raster.
type window struct {
	col, row   int
	cols, rows int
}

// Clip crops the raster at src to the pixel window of polygon, whose
// coordinates are in EPSG epsg, masks pixels whose centre falls outside the
// polygon and writes the result to dst as a GeoTIFF. Band count, data type
// and CRS are preserved. Masked pixels get the band nodata value, or 0 when
// the band has none.
func Clip(src string, polygon orb.Polygon, epsg int, dst string) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return fmt.Errorf("%s has no geotransform: %w", src, err)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return fmt.Errorf("%s: rotated rasters are not supported", src)
	}

	shape, err := toRasterCRS(polygon, epsg, ds)
	if err != nil {
		return err
	}

	st := ds.Structure()
	w, ok := pixelWindow(shape.Bound(), gt, st.SizeX, st.SizeY)
	if !ok {
		return fmt.Errorf("%s: %w", src, ErrOutsideRaster)
	}
	mask := centreMask(shape, gt, w)

	clipGT := [6]float64{
		gt[0] + float64(w.col)*gt[1], gt[1], 0,
		gt[3] + float64(w.row)*gt[5], 0, gt[5],
	}

	tmp := dst + ".part"
	out, err := createGeoTIFF(tmp, st.NBands, st.DataType, w.cols, w.rows, clipGT, ds.Projection())
	if err != nil {
		return err
	}

	buf := make([]float64, w.cols*w.rows)
	outBands := out.Bands()
	for i, band := range ds.Bands() {
		if err := band.Read(w.col, w.row, buf, w.cols, w.rows); err != nil {
			out.Close()
			return fmt.Errorf("failed to read band %d of %s: %w", i+1, src, err)
		}
		nodata, ok := band.NoData()
		if !ok {
			nodata = 0
		}
		for j := range buf {
			if !mask[j] {
				buf[j] = nodata
			}
		}
		if err := outBands[i].SetNoData(nodata); err != nil {
			out.Close()
			return fmt.Errorf("failed to set nodata: %w", err)
		}
		if err := outBands[i].Write(0, 0, buf, w.cols, w.rows); err != nil {
			out.Close()
			return fmt.Errorf("failed to write band %d of %s: %w", i+1, dst, err)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	return nil
}

// toRasterCRS reprojects polygon from EPSG epsg into the CRS of ds. A raster
// without CRS, or an epsg of 0, leaves the polygon untouched.
func toRasterCRS(polygon orb.Polygon, epsg int, ds *godal.Dataset) (orb.Geometry, error) {
	if epsg == 0 || ds.Projection() == "" {
		return polygon, nil
	}

	from, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return nil, fmt.Errorf("unknown EPSG:%d: %w", epsg, err)
	}
	defer from.Close()

	to := ds.SpatialRef()
	defer to.Close()
	if from.IsSame(to) {
		return polygon, nil
	}

	g, err := godal.NewGeometryFromWKT(geojson.ToWKT(polygon), from)
	if err != nil {
		return nil, fmt.Errorf("invalid polygon: %w", err)
	}
	defer g.Close()

	if err := g.Reproject(to); err != nil {
		return nil, fmt.Errorf("failed to reproject polygon: %w", err)
	}
	wkt, err := g.WKT()
	if err != nil {
		return nil, fmt.Errorf("failed to export polygon: %w", err)
	}
	return geojson.ParseWKT(wkt)
}

// pixelWindow returns the pixels covering bound, clamped to the raster.
func pixelWindow(bound orb.Bound, gt [6]float64, width, height int) (window, bool) {
	c0 := (bound.Min[0] - gt[0]) / gt[1]
	c1 := (bound.Max[0] - gt[0]) / gt[1]
	r0 := (bound.Max[1] - gt[3]) / gt[5]
	r1 := (bound.Min[1] - gt[3]) / gt[5]
	if c0 > c1 {
		c0, c1 = c1, c0
	}
	if r0 > r1 {
		r0, r1 = r1, r0
	}

	col0 := max(int(math.Floor(c0)), 0)
	col1 := min(int(math.Ceil(c1)), width)
	row0 := max(int(math.Floor(r0)), 0)
	row1 := min(int(math.Ceil(r1)), height)
	if col0 >= col1 || row0 >= row1 {
		return window{}, false
	}
	return window{col: col0, row: row0, cols: col1 - col0, rows: row1 - row0}, true
}

// centreMask reports, per pixel of w, whether its centre lies inside shape.
func centreMask(shape orb.Geometry, gt [6]float64, w window) []bool {
	mask := make([]bool, w.cols*w.rows)
	for r := 0; r < w.rows; r++ {
		y := gt[3] + (float64(w.row+r)+0.5)*gt[5]
		for c := 0; c < w.cols; c++ {
			x := gt[0] + (float64(w.col+c)+0.5)*gt[1]
			mask[r*w.cols+c] = contains(shape, orb.Point{x, y})
		}
	}
	return mask
}

func contains(g orb.Geometry, pt orb.Point) bool {
	switch s := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(s, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(s, pt)
	}
	return false
}
